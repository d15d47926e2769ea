package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chauffeur/internal/domain"
	"chauffeur/internal/events"
	"chauffeur/internal/metrics"
	"chauffeur/internal/models"
	"chauffeur/internal/wizard"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownForm      = errors.New("unknown form")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotReady         = errors.New("form is not on its last step")
	ErrRateLimited      = errors.New("too many submissions")
	ErrSubmissionFailed = errors.New("submission failed")
)

type FormServiceOptions struct {
	SubmitDelay time.Duration
	RateLimit   int
	RateWindow  time.Duration
}

// FormService runs wizard sessions stored through a StateManager and hands
// finished forms to the dispatcher.
type FormService struct {
	controllers map[string]*wizard.Controller
	states      domain.StateManager
	estimator   domain.PriceEstimator
	eventBus    domain.EventPublisher
	dispatcher  domain.Dispatcher
	opts        FormServiceOptions
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewFormService(
	forms map[string]*wizard.Schema,
	states domain.StateManager,
	estimator domain.PriceEstimator,
	eventBus domain.EventPublisher,
	dispatcher domain.Dispatcher,
	opts FormServiceOptions,
	logger *zerolog.Logger,
) *FormService {
	if opts.RateLimit <= 0 {
		opts.RateLimit = models.SubmitRateLimit
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = models.SubmitRateWindow
	}

	controllers := make(map[string]*wizard.Controller, len(forms))
	for name, schema := range forms {
		controllers[name] = wizard.NewController(schema)
	}

	return &FormService{
		controllers: controllers,
		states:      states,
		estimator:   estimator,
		eventBus:    eventBus,
		dispatcher:  dispatcher,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock is used by tests to pin "today" for date validation.
func (s *FormService) WithClock(now func() time.Time) *FormService {
	s.now = now
	for _, c := range s.controllers {
		c.WithClock(now)
	}
	return s
}

func (s *FormService) Controller(form string) (*wizard.Controller, error) {
	c, ok := s.controllers[form]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownForm, form)
	}
	return c, nil
}

func (s *FormService) Start(ctx context.Context, form string) (*models.FormState, error) {
	c, err := s.Controller(form)
	if err != nil {
		return nil, err
	}

	state := c.Start(uuid.NewString())
	if err := s.states.SaveFormState(ctx, state); err != nil {
		return nil, err
	}

	_ = s.eventBus.PublishJSON(events.EventSessionStarted, map[string]string{
		"session_id": state.SessionID,
		"form":       form,
	})
	s.logger.Debug().Str("session_id", state.SessionID).Str("form", form).Msg("form session started")

	return state, nil
}

func (s *FormService) Get(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := s.states.GetFormState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

// Next stores the submitted values even when the step fails validation so the
// client gets them back with the field errors.
func (s *FormService) Next(ctx context.Context, sessionID string, values map[string]interface{}) (*models.FormState, error) {
	return s.transition(ctx, sessionID, "next", func(c *wizard.Controller, state *models.FormState) error {
		return c.Next(state, values)
	})
}

func (s *FormService) Back(ctx context.Context, sessionID string) (*models.FormState, error) {
	return s.transition(ctx, sessionID, "back", func(c *wizard.Controller, state *models.FormState) error {
		return c.Back(state)
	})
}

func (s *FormService) GoTo(ctx context.Context, sessionID string, step int) (*models.FormState, error) {
	return s.transition(ctx, sessionID, "goto", func(c *wizard.Controller, state *models.FormState) error {
		return c.GoTo(state, step)
	})
}

func (s *FormService) transition(
	ctx context.Context,
	sessionID, action string,
	apply func(*wizard.Controller, *models.FormState) error,
) (*models.FormState, error) {
	state, c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	applyErr := apply(c, state)
	if applyErr != nil && !wizard.IsValidation(applyErr) {
		metrics.IncFormStep(state.Form, action, "rejected")
		return state, applyErr
	}

	if err := s.states.SaveFormState(ctx, state); err != nil {
		return nil, err
	}

	if applyErr != nil {
		metrics.IncFormStep(state.Form, action, "invalid")
		return state, applyErr
	}
	metrics.IncFormStep(state.Form, action, "ok")
	return state, nil
}

// Submit finalises the session: every step must validate and the last one
// must be current. clientKey scopes the submission rate limit.
//
// The session is taken out of the store before the delay so a second submit of
// the same session gets ErrSessionNotFound. It is put back on any failure.
func (s *FormService) Submit(ctx context.Context, sessionID, clientKey string) (*models.Submission, error) {
	allowed, err := s.states.CheckRateLimit(ctx, "submit:"+clientKey, s.opts.RateLimit, s.opts.RateWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("submit rate limit check failed")
	} else if !allowed {
		return nil, ErrRateLimited
	}

	state, err := s.states.TakeFormState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}

	accepted := false
	defer func() {
		if !accepted {
			s.restore(ctx, state)
		}
	}()

	c, err := s.Controller(state.Form)
	if err != nil {
		return nil, err
	}
	if !c.IsLast(state) {
		return nil, ErrNotReady
	}
	if err := c.Validate(state); err != nil {
		metrics.IncSubmission(state.Form, "invalid")
		return nil, err
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	request := state.BookingRequest()
	submission := &models.Submission{
		Reference:   newReference(),
		Form:        state.Form,
		Request:     request,
		Estimate:    s.estimator.Estimate(ctx, request.Trip()),
		SubmittedAt: s.now().UTC(),
	}

	if err := s.dispatcher.Enqueue(ctx, *submission); err != nil {
		metrics.IncSubmission(state.Form, "failed")
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to enqueue submission")
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	accepted = true

	if err := s.eventBus.PublishJSON(events.RequestedEventType(state.Form), events.NewSubmissionPayload(*submission)); err != nil {
		s.logger.Warn().Err(err).Str("reference", submission.Reference).Msg("failed to publish submission event")
	}

	metrics.IncSubmission(state.Form, "ok")
	s.logger.Info().
		Str("reference", submission.Reference).
		Str("form", submission.Form).
		Float64("total", submission.Estimate.Total).
		Msg("submission accepted")

	return submission, nil
}

// restore puts a claimed session back after a failed submit, even when the
// request context is already cancelled.
func (s *FormService) restore(ctx context.Context, state *models.FormState) {
	if err := s.states.SaveFormState(context.WithoutCancel(ctx), state); err != nil {
		s.logger.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to restore form state")
	}
}

func (s *FormService) load(ctx context.Context, sessionID string) (*models.FormState, *wizard.Controller, error) {
	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.Controller(state.Form)
	if err != nil {
		return nil, nil, err
	}
	return state, c, nil
}

// wait is the simulated processing time before a submission is acknowledged.
func (s *FormService) wait(ctx context.Context) error {
	if s.opts.SubmitDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.SubmitDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newReference returns a short customer-facing reference such as CH-1A2B3C4D.
func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CH-" + strings.ToUpper(id[:8])
}

// Describe renders the client-facing view of a state.
func (s *FormService) Describe(state *models.FormState) (wizard.View, error) {
	c, err := s.Controller(state.Form)
	if err != nil {
		return wizard.View{}, err
	}
	return c.Describe(state), nil
}
