package wizard

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"chauffeur/internal/models"
)

// Controller drives a FormState through a Schema. It holds no per-session data.
type Controller struct {
	schema *Schema
	now    func() time.Time
}

func NewController(schema *Schema) *Controller {
	return &Controller{schema: schema, now: time.Now}
}

// WithClock replaces the clock used for "not in the past" checks and timestamps.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

func (c *Controller) Schema() *Schema {
	return c.schema
}

// Start returns a fresh state on the first step.
func (c *Controller) Start(sessionID string) *models.FormState {
	now := c.now()
	return &models.FormState{
		SessionID: sessionID,
		Form:      c.schema.Form,
		Values:    make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Next merges values for the current step and validates that step only.
// On failure the step index does not move.
func (c *Controller) Next(state *models.FormState, values map[string]interface{}) error {
	if err := c.check(state); err != nil {
		return err
	}

	step := c.schema.Steps[state.CurrentStep]
	c.merge(state, step, values)
	state.UpdatedAt = c.now()

	if errs := validateStep(step, stringValues(state), c.now()); len(errs) > 0 {
		return &ValidationError{Step: state.CurrentStep, StepName: step.Name, Fields: errs}
	}

	state.MarkCompleted(state.CurrentStep)
	if state.CurrentStep < c.schema.LastIndex() {
		state.CurrentStep++
	}
	return nil
}

// Back is unconditional and stops at the first step.
func (c *Controller) Back(state *models.FormState) error {
	if err := c.check(state); err != nil {
		return err
	}
	if state.CurrentStep > 0 {
		state.CurrentStep--
	}
	state.UpdatedAt = c.now()
	return nil
}

// GoTo jumps to a completed step or stays on the current one.
func (c *Controller) GoTo(state *models.FormState, step int) error {
	if err := c.check(state); err != nil {
		return err
	}
	if step < 0 || step > c.schema.LastIndex() {
		return ErrStepOutOfRange
	}
	if step != state.CurrentStep && !state.IsCompleted(step) {
		return ErrStepLocked
	}
	state.CurrentStep = step
	state.UpdatedAt = c.now()
	return nil
}

// Validate checks every step and returns the first failing one.
func (c *Controller) Validate(state *models.FormState) error {
	if err := c.check(state); err != nil {
		return err
	}
	values := stringValues(state)
	for i, step := range c.schema.Steps {
		if errs := validateStep(step, values, c.now()); len(errs) > 0 {
			return &ValidationError{Step: i, StepName: step.Name, Fields: errs}
		}
	}
	return nil
}

func (c *Controller) IsLast(state *models.FormState) bool {
	return state.CurrentStep == c.schema.LastIndex()
}

// Progress is the completed share of steps, 0..1.
func (c *Controller) Progress(state *models.FormState) float64 {
	if len(c.schema.Steps) == 0 {
		return 0
	}
	return float64(len(state.Completed)) / float64(len(c.schema.Steps))
}

// View is the client-facing snapshot of a state.
type View struct {
	SessionID   string                 `json:"session_id"`
	Form        string                 `json:"form"`
	CurrentStep int                    `json:"current_step"`
	StepName    string                 `json:"step_name"`
	Steps       []string               `json:"steps"`
	Completed   []int                  `json:"completed"`
	Values      map[string]interface{} `json:"values"`
	IsLast      bool                   `json:"is_last"`
	Progress    float64                `json:"progress"`
}

func (c *Controller) Describe(state *models.FormState) View {
	steps := make([]string, 0, len(c.schema.Steps))
	for _, s := range c.schema.Steps {
		steps = append(steps, s.Name)
	}
	completed := state.Completed
	if completed == nil {
		completed = []int{}
	}
	var name string
	if state.CurrentStep >= 0 && state.CurrentStep < len(steps) {
		name = steps[state.CurrentStep]
	}
	return View{
		SessionID:   state.SessionID,
		Form:        state.Form,
		CurrentStep: state.CurrentStep,
		StepName:    name,
		Steps:       steps,
		Completed:   completed,
		Values:      state.Values,
		IsLast:      c.IsLast(state),
		Progress:    c.Progress(state),
	}
}

func (c *Controller) check(state *models.FormState) error {
	if state.Form != "" && state.Form != c.schema.Form {
		return ErrFormMismatch
	}
	if state.CurrentStep < 0 || state.CurrentStep > c.schema.LastIndex() {
		return ErrStepOutOfRange
	}
	return nil
}

// merge only accepts fields that belong to the step being submitted.
func (c *Controller) merge(state *models.FormState, step Step, values map[string]interface{}) {
	if state.Values == nil {
		state.Values = make(map[string]interface{})
	}
	for _, f := range step.Fields {
		raw, ok := values[f.Name]
		if !ok {
			continue
		}
		v, present := normalize(raw)
		if !present {
			delete(state.Values, f.Name)
			continue
		}
		if f.Upper {
			v = strings.ToUpper(v)
		}
		state.Values[f.Name] = v
	}
}

func normalize(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func stringValues(state *models.FormState) map[string]string {
	out := make(map[string]string, len(state.Values))
	for k := range state.Values {
		out[k] = state.GetString(k)
		if out[k] == "" {
			if n := state.GetInt64(k); n != 0 {
				out[k] = strconv.FormatInt(n, 10)
			}
		}
	}
	return out
}
