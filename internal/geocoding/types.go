package geocoding

import "chauffeur/internal/models"

type searchRQ struct {
	Query        string `url:"q"`
	Limit        int    `url:"limit"`
	Type         string `url:"type,omitempty"`
	Autocomplete int    `url:"autocomplete,omitempty"`
}

// featureCollection is the GeoJSON body returned by /search/.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string     `json:"type"`
	Geometry   geometry   `json:"geometry"`
	Properties properties `json:"properties"`
}

type geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type properties struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Name     string  `json:"name"`
	City     string  `json:"city"`
	Postcode string  `json:"postcode"`
	Score    float64 `json:"score"`
}

func (f feature) suggestion() models.AddressSuggestion {
	s := models.AddressSuggestion{
		ID:       f.Properties.ID,
		Label:    f.Properties.Label,
		Name:     f.Properties.Name,
		City:     f.Properties.City,
		Postcode: f.Properties.Postcode,
	}
	// GeoJSON positions are [longitude, latitude]
	if len(f.Geometry.Coordinates) >= 2 {
		s.Longitude = f.Geometry.Coordinates[0]
		s.Latitude = f.Geometry.Coordinates[1]
	}
	return s
}
