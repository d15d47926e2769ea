package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventSessionStarted   = "session_started"
	EventQuoteRequested   = "quote_requested"
	EventBookingRequested = "booking_requested"
	EventDispatchFailed   = "dispatch_failed"

	// AnyEvent subscribes a handler to every event type.
	AnyEvent = "*"
)

// RequestedEventType maps a form kind to the event published on submission.
func RequestedEventType(form string) string {
	if form == models.FormQuote {
		return EventQuoteRequested
	}
	return EventBookingRequested
}

// SubmissionEventPayload is the submission snapshot handed to event consumers.
type SubmissionEventPayload struct {
	Reference    string    `json:"reference"`
	Form         string    `json:"form"`
	ServiceType  string    `json:"service_type"`
	VehicleClass string    `json:"vehicle_class,omitempty"`
	Departure    string    `json:"departure"`
	Arrival      string    `json:"arrival,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time,omitempty"`
	ContactName  string    `json:"contact_name"`
	ContactEmail string    `json:"contact_email"`
	Total        float64   `json:"total"`
	Currency     string    `json:"currency"`
	Airport      string    `json:"airport,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

func NewSubmissionPayload(s models.Submission) SubmissionEventPayload {
	return SubmissionEventPayload{
		Reference:    s.Reference,
		Form:         s.Form,
		ServiceType:  string(s.Request.ServiceType),
		VehicleClass: s.Estimate.VehicleClass,
		Departure:    s.Request.Departure,
		Arrival:      s.Request.Arrival,
		Date:         s.Request.Date,
		Time:         s.Request.Time,
		ContactName:  s.Request.Contact.FullName(),
		ContactEmail: s.Request.Contact.Email,
		Total:        s.Estimate.Total,
		Currency:     s.Estimate.Currency,
		Airport:      s.Estimate.Airport,
		SubmittedAt:  s.SubmittedAt,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged when logger is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type, or AnyEvent.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type, then AnyEvent subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AnyEvent]...)
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Int64("event_id", event.ID).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
