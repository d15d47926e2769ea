package models

// VehicleClass is one service tier of the fleet with its tariff.
type VehicleClass struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Model       string             `yaml:"model" json:"model"`
	Description string             `yaml:"description" json:"description,omitempty"`
	Passengers  int                `yaml:"passengers" json:"passengers"`
	Luggage     int                `yaml:"luggage" json:"luggage"`
	BasePrice   float64            `yaml:"base_price" json:"base_price"`
	PerKm       float64            `yaml:"per_km" json:"per_km"`
	Hourly      float64            `yaml:"hourly" json:"hourly"`
	Forfaits    map[string]float64 `yaml:"forfaits" json:"forfaits"`
	SortOrder   int64              `yaml:"sort_order" json:"sort_order"`
}

// Forfait returns the flat fare for an airport code.
func (v VehicleClass) Forfait(airport string) (float64, bool) {
	if v.Forfaits == nil {
		return 0, false
	}
	fare, ok := v.Forfaits[airport]
	return fare, ok
}
