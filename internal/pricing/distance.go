package pricing

import (
	"context"
	"math"
	"unicode/utf8"

	"chauffeur/internal/models"

	"github.com/rs/zerolog"
)

// DistanceEstimator yields the km used for transfer pricing. It never fails.
type DistanceEstimator interface {
	Distance(ctx context.Context, departure, arrival string) float64
}

// SyntheticDistance is the placeholder formula: combined address length × 3.7.
type SyntheticDistance struct{}

func (SyntheticDistance) Distance(_ context.Context, departure, arrival string) float64 {
	return syntheticDistance(departure, arrival)
}

func syntheticDistance(departure, arrival string) float64 {
	chars := utf8.RuneCountInString(departure) + utf8.RuneCountInString(arrival)
	return float64(chars) * models.SyntheticKmPerChar
}

// Geocoder resolves a free-text address to its best match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.AddressSuggestion, error)
}

const (
	earthRadiusKm     = 6371.0
	DefaultRoadFactor = 1.3
)

// GeocodedDistance estimates road distance from geocoded endpoints.
// Any lookup failure falls back to the synthetic distance.
type GeocodedDistance struct {
	geocoder   Geocoder
	roadFactor float64
	logger     *zerolog.Logger
}

func NewGeocodedDistance(geocoder Geocoder, roadFactor float64, logger *zerolog.Logger) *GeocodedDistance {
	if roadFactor <= 0 {
		roadFactor = DefaultRoadFactor
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &GeocodedDistance{geocoder: geocoder, roadFactor: roadFactor, logger: logger}
}

func (g *GeocodedDistance) Distance(ctx context.Context, departure, arrival string) float64 {
	from, err := g.geocoder.Geocode(ctx, departure)
	if err != nil || !from.HasCoordinates() {
		g.logger.Debug().Err(err).Str("address", departure).Msg("departure not geocoded, using synthetic distance")
		return syntheticDistance(departure, arrival)
	}
	to, err := g.geocoder.Geocode(ctx, arrival)
	if err != nil || !to.HasCoordinates() {
		g.logger.Debug().Err(err).Str("address", arrival).Msg("arrival not geocoded, using synthetic distance")
		return syntheticDistance(departure, arrival)
	}

	km := Haversine(from.Latitude, from.Longitude, to.Latitude, to.Longitude) * g.roadFactor
	return math.Round(km*10) / 10
}

// Haversine returns the great-circle distance in km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
