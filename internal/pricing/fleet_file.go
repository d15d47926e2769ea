package pricing

import (
	"fmt"
	"os"

	"chauffeur/internal/models"

	"gopkg.in/yaml.v2"
)

type fleetFile struct {
	Vehicles []models.VehicleClass `yaml:"vehicles"`
}

// ParseFleet reads a fleet catalog in YAML.
func ParseFleet(data []byte) (*Fleet, error) {
	var file fleetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fleet: %w", err)
	}
	return NewFleet(file.Vehicles)
}

// LoadFleet reads the catalog from path.
func LoadFleet(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFleet(data)
}
