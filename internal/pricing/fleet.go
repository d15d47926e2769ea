package pricing

import (
	"errors"
	"fmt"
	"sort"

	"chauffeur/internal/models"
)

var ErrUnknownVehicle = errors.New("unknown vehicle class")

// Airport is a forfait destination recognised from free-text addresses.
type Airport struct {
	Code     string
	Name     string
	Keywords []string
}

// Airports are matched in order; CDG wins when both appear.
var Airports = []Airport{
	{Code: "cdg", Name: "Paris-Charles de Gaulle (CDG)", Keywords: []string{"cdg", "roissy", "charles de gaulle"}},
	{Code: "orly", Name: "Paris-Orly (ORY)", Keywords: []string{"orly"}},
}

// DefaultClasses is the built-in tariff used when no fleet file is provided.
func DefaultClasses() []models.VehicleClass {
	return []models.VehicleClass{
		{
			ID:         models.VehicleBusiness,
			Name:       "Business",
			Model:      "Mercedes-Benz E-Class",
			Passengers: 3,
			Luggage:    3,
			BasePrice:  65,
			PerKm:      2.2,
			Hourly:     70,
			Forfaits:   map[string]float64{"cdg": 95, "orly": 80},
			SortOrder:  1,
		},
		{
			ID:         models.VehicleFirst,
			Name:       "First",
			Model:      "Mercedes-Benz S-Class",
			Passengers: 3,
			Luggage:    2,
			BasePrice:  95,
			PerKm:      3.0,
			Hourly:     110,
			Forfaits:   map[string]float64{"cdg": 140, "orly": 120},
			SortOrder:  2,
		},
		{
			ID:         models.VehicleVan,
			Name:       "Van",
			Model:      "Mercedes-Benz V-Class",
			Passengers: 7,
			Luggage:    7,
			BasePrice:  85,
			PerKm:      2.6,
			Hourly:     90,
			Forfaits:   map[string]float64{"cdg": 120, "orly": 100},
			SortOrder:  3,
		},
	}
}

// Fleet indexes vehicle classes by id.
type Fleet struct {
	classes  map[string]models.VehicleClass
	ordered  []models.VehicleClass
	fallback string
}

// NewFleet builds a fleet. The first class after sorting is the fallback for unknown ids.
func NewFleet(classes []models.VehicleClass) (*Fleet, error) {
	if len(classes) == 0 {
		return nil, errors.New("fleet has no vehicle classes")
	}

	ordered := append([]models.VehicleClass(nil), classes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	f := &Fleet{classes: make(map[string]models.VehicleClass, len(ordered)), ordered: ordered}
	for _, c := range ordered {
		if c.ID == "" {
			return nil, fmt.Errorf("vehicle class %q has empty id", c.Name)
		}
		if _, dup := f.classes[c.ID]; dup {
			return nil, fmt.Errorf("duplicate vehicle class id: %s", c.ID)
		}
		if c.BasePrice < 0 || c.PerKm < 0 || c.Hourly < 0 {
			return nil, fmt.Errorf("vehicle class %s has negative rates", c.ID)
		}
		f.classes[c.ID] = c
	}

	f.fallback = ordered[0].ID
	if _, ok := f.classes[models.VehicleBusiness]; ok {
		f.fallback = models.VehicleBusiness
	}
	return f, nil
}

// DefaultFleet never fails: the built-in classes are valid.
func DefaultFleet() *Fleet {
	f, err := NewFleet(DefaultClasses())
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Fleet) Get(id string) (models.VehicleClass, error) {
	c, ok := f.classes[id]
	if !ok {
		return models.VehicleClass{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, id)
	}
	return c, nil
}

// Resolve returns the class for id, or the fallback class.
func (f *Fleet) Resolve(id string) models.VehicleClass {
	if c, ok := f.classes[id]; ok {
		return c
	}
	return f.classes[f.fallback]
}

func (f *Fleet) Classes() []models.VehicleClass {
	return append([]models.VehicleClass(nil), f.ordered...)
}

func (f *Fleet) IDs() []string {
	ids := make([]string, 0, len(f.ordered))
	for _, c := range f.ordered {
		ids = append(ids, c.ID)
	}
	return ids
}
