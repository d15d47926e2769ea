package models

import "time"

// DispatchTask represents a queued delivery of a submission to the office sinks.
type DispatchTask struct {
	ID         string     `json:"id"`
	Submission Submission `json:"submission"`
	Attempt    int        `json:"attempt"`
	Delivered  []string   `json:"delivered,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	NextTryAt  *time.Time `json:"next_try_at,omitempty"`
}

// IsDelivered reports whether the sink already accepted this task.
func (t *DispatchTask) IsDelivered(sink string) bool {
	for _, s := range t.Delivered {
		if s == sink {
			return true
		}
	}
	return false
}

// MarkDelivered records a successful sink.
func (t *DispatchTask) MarkDelivered(sink string) {
	if !t.IsDelivered(sink) {
		t.Delivered = append(t.Delivered, sink)
	}
}
