package domain

import (
	"context"
	"time"

	"chauffeur/internal/models"
	"chauffeur/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*models.FormState, error)
	SetState(ctx context.Context, state *models.FormState) error
	TakeState(ctx context.Context, sessionID string) (*models.FormState, error)
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetFormState(ctx context.Context, sessionID string) (*models.FormState, error)
	SaveFormState(ctx context.Context, state *models.FormState) error
	TakeFormState(ctx context.Context, sessionID string) (*models.FormState, error)
	ClearFormState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type PriceEstimator interface {
	Estimate(ctx context.Context, trip models.TripRequest) models.PriceEstimate
}

type AddressSearcher interface {
	Search(ctx context.Context, q string) ([]models.AddressSuggestion, error)
}

// Dispatcher hands a finished submission to the office sinks.
type Dispatcher interface {
	Enqueue(ctx context.Context, submission models.Submission) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot is the part of the Bot API the office bot needs.
type TelegramBot interface {
	TelegramSender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// DeadLetterSource lists submissions that could not be delivered.
type DeadLetterSource interface {
	DeadLetters(ctx context.Context) ([]models.DispatchTask, error)
}

type SheetsAppender interface {
	AppendSubmission(ctx context.Context, submission *models.Submission) error
}

type FormService interface {
	Start(ctx context.Context, form string) (*models.FormState, error)
	Get(ctx context.Context, sessionID string) (*models.FormState, error)
	Next(ctx context.Context, sessionID string, values map[string]interface{}) (*models.FormState, error)
	Back(ctx context.Context, sessionID string) (*models.FormState, error)
	GoTo(ctx context.Context, sessionID string, step int) (*models.FormState, error)
	Submit(ctx context.Context, sessionID, clientKey string) (*models.Submission, error)
	Describe(state *models.FormState) (wizard.View, error)
}
