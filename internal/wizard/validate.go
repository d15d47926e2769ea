package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	validate     = validator.New()
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .()-]{5,19}$`)
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func validateStep(step Step, values map[string]string, now time.Time) []FieldError {
	var errs []FieldError
	for _, f := range step.Fields {
		if msg := validateField(f, values, now); msg != "" {
			errs = append(errs, FieldError{Field: f.Name, Message: msg})
		}
	}
	return errs
}

func validateField(f Field, values map[string]string, now time.Time) string {
	v := strings.TrimSpace(values[f.Name])
	if v == "" {
		if f.required(values) {
			return "is required"
		}
		return ""
	}

	length := utf8.RuneCountInString(v)
	if f.MinLen > 0 && length < f.MinLen {
		return fmt.Sprintf("must be at least %d characters", f.MinLen)
	}
	if f.MaxLen > 0 && length > f.MaxLen {
		return fmt.Sprintf("must be at most %d characters", f.MaxLen)
	}

	switch f.Kind {
	case KindInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "must be a whole number"
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Sprintf("must be at least %d", *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Sprintf("must be at most %d", *f.Max)
		}
	case KindEmail:
		if err := validate.Var(v, "required,email"); err != nil {
			return "must be a valid email address"
		}
	case KindPhone:
		if !phonePattern.MatchString(v) {
			return "must be a valid phone number"
		}
	case KindDate:
		d, err := time.ParseInLocation(dateLayout, v, now.Location())
		if err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if f.NotPast && d.Before(today) {
			return "must not be in the past"
		}
	case KindTime:
		if _, err := time.Parse(timeLayout, v); err != nil {
			return "must be a time (HH:MM)"
		}
	case KindEnum:
		if !contains(f.OneOf, v) {
			return fmt.Sprintf("must be one of %s", strings.Join(f.OneOf, ", "))
		}
	}

	if f.Pattern != nil && !f.Pattern.MatchString(v) {
		return "has an invalid format"
	}
	return ""
}
