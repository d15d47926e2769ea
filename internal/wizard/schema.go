package wizard

import (
	"regexp"
)

// FieldKind selects the format check applied to a non-empty value.
type FieldKind int

const (
	KindText FieldKind = iota
	KindInt
	KindEmail
	KindPhone
	KindDate
	KindTime
	KindEnum
)

// Condition makes a rule depend on another field's value.
type Condition struct {
	Field string
	In    []string
	NotIn []string
}

func (c Condition) holds(values map[string]string) bool {
	v := values[c.Field]
	if len(c.In) > 0 && !contains(c.In, v) {
		return false
	}
	if len(c.NotIn) > 0 && contains(c.NotIn, v) {
		return false
	}
	return true
}

// Field describes one input and its rules.
type Field struct {
	Name         string
	Kind         FieldKind
	Required     bool
	RequiredWhen *Condition
	MinLen       int
	MaxLen       int
	Min          *int64
	Max          *int64
	OneOf        []string
	Pattern      *regexp.Regexp
	Upper        bool
	NotPast      bool
}

func (f Field) required(values map[string]string) bool {
	if f.Required {
		return true
	}
	return f.RequiredWhen != nil && f.RequiredWhen.holds(values)
}

// Step is one page of a form.
type Step struct {
	Name   string
	Fields []Field
}

// Schema is an ordered list of steps.
type Schema struct {
	Form  string
	Steps []Step
}

func (s *Schema) LastIndex() int {
	return len(s.Steps) - 1
}

// FieldNames lists every field of the form, in step order.
func (s *Schema) FieldNames() []string {
	var names []string
	for _, step := range s.Steps {
		for _, f := range step.Fields {
			names = append(names, f.Name)
		}
	}
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func intPtr(v int64) *int64 {
	return &v
}
