package pricing

import (
	"context"
	"math"
	"strings"

	"chauffeur/internal/metrics"
	"chauffeur/internal/models"
)

// Estimate prices a trip with the synthetic distance. It is pure and cannot fail;
// an unknown vehicle class is priced as the fleet's fallback class.
func Estimate(fleet *Fleet, trip models.TripRequest) models.PriceEstimate {
	return estimate(fleet, trip, func() float64 {
		return syntheticDistance(trip.Departure, trip.Arrival)
	})
}

// Calculator prices trips with a pluggable distance source.
type Calculator struct {
	fleet    *Fleet
	distance DistanceEstimator
}

func NewCalculator(fleet *Fleet, distance DistanceEstimator) *Calculator {
	if distance == nil {
		distance = SyntheticDistance{}
	}
	return &Calculator{fleet: fleet, distance: distance}
}

func (c *Calculator) Fleet() *Fleet {
	return c.fleet
}

func (c *Calculator) Estimate(ctx context.Context, trip models.TripRequest) models.PriceEstimate {
	result := estimate(c.fleet, trip, func() float64 {
		return c.distance.Distance(ctx, trip.Departure, trip.Arrival)
	})
	metrics.IncEstimate(string(result.Mode), result.Airport)
	return result
}

// distance is only evaluated for plain transfers.
func estimate(fleet *Fleet, trip models.TripRequest, distance func() float64) models.PriceEstimate {
	vehicle := fleet.Resolve(trip.VehicleClass)
	result := models.PriceEstimate{
		Mode:         trip.Mode,
		VehicleClass: vehicle.ID,
		Currency:     models.CurrencyEUR,
	}

	if trip.Mode == models.ModeDisposition {
		result.Hours = models.DispositionHours
		result.BasePrice = vehicle.Hourly * models.DispositionHours
		result.Total = result.BasePrice
		return result
	}
	result.Mode = models.ModeTransfer

	if airport, fare, ok := matchAirport(vehicle, trip.Departure, trip.Arrival); ok {
		result.IsAirportTransfer = true
		result.Airport = airport.Name
		result.BasePrice = fare
		result.Total = fare
		return result
	}

	km := distance()
	result.DistanceKm = km
	result.BasePrice = vehicle.BasePrice
	result.Supplement = math.Round(km * vehicle.PerKm)
	result.Total = result.BasePrice + result.Supplement
	return result
}

func matchAirport(vehicle models.VehicleClass, departure, arrival string) (Airport, float64, bool) {
	text := strings.ToLower(departure + " " + arrival)
	for _, airport := range Airports {
		if !containsAny(text, airport.Keywords) {
			continue
		}
		if fare, ok := vehicle.Forfait(airport.Code); ok {
			return airport, fare, true
		}
	}
	return Airport{}, 0, false
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
