package models

import "time"

// BookingRequest is the complete set of values collected by the booking or quote form.
type BookingRequest struct {
	ServiceType  ServiceType `json:"service_type"`
	Departure    string      `json:"departure"`
	Arrival      string      `json:"arrival,omitempty"`
	Date         string      `json:"date"`
	Time         string      `json:"time,omitempty"`
	Passengers   int64       `json:"passengers,omitempty"`
	Luggage      int64       `json:"luggage,omitempty"`
	VehicleClass string      `json:"vehicle_class,omitempty"`
	FlightNumber string      `json:"flight_number,omitempty"`
	Message      string      `json:"message,omitempty"`
	Contact      Contact     `json:"contact"`
}

// Trip extracts the pricing input of the request.
func (r BookingRequest) Trip() TripRequest {
	vehicle := r.VehicleClass
	if vehicle == "" {
		vehicle = VehicleBusiness
	}
	return TripRequest{
		Mode:         r.ServiceType.Mode(),
		Departure:    r.Departure,
		Arrival:      r.Arrival,
		VehicleClass: vehicle,
	}
}

// Submission is a finished form handed over to the office.
type Submission struct {
	Reference   string         `json:"reference"`
	Form        string         `json:"form"`
	Request     BookingRequest `json:"request"`
	Estimate    PriceEstimate  `json:"estimate"`
	SubmittedAt time.Time      `json:"submitted_at"`
}
