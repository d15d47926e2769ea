package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// FormState is one visitor's progress through a multi-step form.
type FormState struct {
	SessionID   string                 `json:"session_id"`
	Form        string                 `json:"form"`
	CurrentStep int                    `json:"current_step"`
	Completed   []int                  `json:"completed"`
	Values      map[string]interface{} `json:"values"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// IsCompleted reports whether step has passed validation at least once.
func (s *FormState) IsCompleted(step int) bool {
	for _, c := range s.Completed {
		if c == step {
			return true
		}
	}
	return false
}

// MarkCompleted adds step to the completed set, keeping it sorted.
func (s *FormState) MarkCompleted(step int) {
	if s.IsCompleted(step) {
		return
	}
	s.Completed = append(s.Completed, step)
	sort.Ints(s.Completed)
}

func (s *FormState) GetInt64(key string) int64 {
	if s.Values == nil {
		return 0
	}
	val, ok := s.Values[key]
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func (s *FormState) GetString(key string) string {
	if s.Values == nil {
		return ""
	}
	val, ok := s.Values[key]
	if !ok {
		return ""
	}
	if str, ok := val.(string); ok {
		return strings.TrimSpace(str)
	}
	return ""
}

// GetTime combines a YYYY-MM-DD date field with an optional HH:MM time field.
func (s *FormState) GetTime(dateKey, timeKey string) time.Time {
	date := s.GetString(dateKey)
	if date == "" {
		return time.Time{}
	}
	clock := s.GetString(timeKey)
	if clock == "" {
		clock = "00:00"
	}
	t, err := time.Parse("2006-01-02 15:04", date+" "+clock)
	if err != nil {
		return time.Time{}
	}
	return t
}

// BookingRequest assembles the typed request from the collected values.
func (s *FormState) BookingRequest() BookingRequest {
	return BookingRequest{
		ServiceType:  ServiceType(s.GetString("service_type")),
		Departure:    s.GetString("departure"),
		Arrival:      s.GetString("arrival"),
		Date:         s.GetString("date"),
		Time:         s.GetString("time"),
		Passengers:   s.GetInt64("passengers"),
		Luggage:      s.GetInt64("luggage"),
		VehicleClass: s.GetString("vehicle_class"),
		FlightNumber: strings.ToUpper(s.GetString("flight_number")),
		Message:      s.GetString("message"),
		Contact: Contact{
			FirstName: s.GetString("first_name"),
			LastName:  s.GetString("last_name"),
			Name:      s.GetString("name"),
			Email:     s.GetString("email"),
			Phone:     s.GetString("phone"),
			Company:   s.GetString("company"),
		},
	}
}
