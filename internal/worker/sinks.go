package worker

import (
	"context"

	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

// Sink receives a submission. Deliver must be safe to call again after a failure.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, submission *models.Submission) error
}

// LogSink writes submissions to the application log. It is always enabled so a
// request is never lost when no other sink is configured.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Deliver(_ context.Context, submission *models.Submission) error {
	req := submission.Request
	s.logger.Info().
		Str("reference", submission.Reference).
		Str("form", submission.Form).
		Str("service_type", string(req.ServiceType)).
		Str("departure", req.Departure).
		Str("arrival", req.Arrival).
		Str("date", req.Date).
		Str("time", req.Time).
		Str("vehicle_class", submission.Estimate.VehicleClass).
		Float64("total", submission.Estimate.Total).
		Str("contact", req.Contact.FullName()).
		Str("email", req.Contact.Email).
		Str("phone", req.Contact.Phone).
		Msg("new request")
	return nil
}
