package models

// TripRequest is the pricing input.
type TripRequest struct {
	Mode         TripMode `json:"mode"`
	Departure    string   `json:"departure"`
	Arrival      string   `json:"arrival"`
	VehicleClass string   `json:"vehicle_class"`
}

// PriceEstimate is the result of pricing a trip.
type PriceEstimate struct {
	Mode              TripMode `json:"mode"`
	VehicleClass      string   `json:"vehicle_class"`
	BasePrice         float64  `json:"base_price"`
	Supplement        float64  `json:"supplement"`
	Total             float64  `json:"total"`
	Currency          string   `json:"currency"`
	IsAirportTransfer bool     `json:"is_airport_transfer"`
	Airport           string   `json:"airport,omitempty"`
	DistanceKm        float64  `json:"distance_km,omitempty"`
	Hours             int      `json:"hours,omitempty"`
}

// AddressSuggestion is one geocoder hit, taken verbatim from the feature properties.
type AddressSuggestion struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	Postcode  string  `json:"postcode"`
	Longitude float64 `json:"longitude,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
}

// HasCoordinates reports whether the suggestion carries a usable position.
func (s AddressSuggestion) HasCoordinates() bool {
	return s.Longitude != 0 || s.Latitude != 0
}
