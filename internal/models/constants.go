package models

import "time"

// ServiceType is the kind of ride the customer asks for.
type ServiceType string

const (
	ServiceTransfer    ServiceType = "transfer"
	ServiceDisposition ServiceType = "disposition"
	ServiceCorporate   ServiceType = "corporate"
)

// TripMode is what pricing cares about: a ride from A to B or a booked duration.
type TripMode string

const (
	ModeTransfer    TripMode = "transfer"
	ModeDisposition TripMode = "disposition"
)

// Mode maps a service type onto its pricing mode. Corporate rides are priced as transfers.
func (s ServiceType) Mode() TripMode {
	if s == ServiceDisposition {
		return ModeDisposition
	}
	return ModeTransfer
}

// Valid reports whether s is one of the known service types.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceTransfer, ServiceDisposition, ServiceCorporate:
		return true
	default:
		return false
	}
}

const (
	VehicleBusiness = "business"
	VehicleFirst    = "first"
	VehicleVan      = "van"
)

const (
	FormBooking = "booking"
	FormQuote   = "quote"
)

const (
	StepTrip    = "trip"
	StepDetails = "details"
	StepContact = "contact"
	StepSummary = "summary"
)

const (
	CurrencyEUR = "EUR"

	// DispositionHours is the fixed duration of an hourly booking.
	DispositionHours = 3

	// SyntheticKmPerChar turns address text length into a pseudo distance.
	SyntheticKmPerChar = 3.7

	// DefaultFormStateTTL время жизни сессии формы в Redis
	DefaultFormStateTTL = 24 * time.Hour

	// MinQueryLength below this many characters no address lookup is made.
	MinQueryLength = 3

	// DefaultDebounce quiescence window before an address lookup fires.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultSuggestionLimit number of suggestions requested from the geocoder.
	DefaultSuggestionLimit = 5

	// DispatchQueueSize размер очереди воркера
	DispatchQueueSize = 128

	// DefaultSubmitDelay simulated processing time before a submission is acknowledged.
	DefaultSubmitDelay = 1500 * time.Millisecond

	// SubmitRateLimit submissions allowed per client in SubmitRateWindow.
	SubmitRateLimit  = 5
	SubmitRateWindow = 10 * time.Minute
)

const (
	ParseModeMarkdown = "Markdown"
)
