package wizard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStepLocked     = errors.New("step is not reachable yet")
	ErrStepOutOfRange = errors.New("step index out of range")
	ErrFormMismatch   = errors.New("state belongs to another form")
)

// FieldError is one failed rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a step does not pass its rules.
type ValidationError struct {
	Step     int          `json:"step"`
	StepName string       `json:"step_name"`
	Fields   []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("step %q invalid: %s", e.StepName, strings.Join(parts, "; "))
}

// IsValidation reports whether err carries field errors.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
