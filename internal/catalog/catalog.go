// Package catalog loads a static price list and technician roster from YAML,
// for salons that do not keep them in the spreadsheet.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"gopkg.in/yaml.v2"
)

type fileCatalog struct {
	Technicians []models.Technician `yaml:"technicians"`
	Services    []models.Service    `yaml:"services"`
}

// Static serves a catalog that was read once at startup.
type Static struct {
	technicians []models.Technician
	services    []models.Service
}

var _ domain.CatalogSource = (*Static)(nil)

// LoadFile reads and validates a catalog file. ${VAR} references are expanded
// from the environment so chat IDs can stay out of the file.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var fc fileCatalog
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &fc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if err := Validate(fc.Technicians, fc.Services); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	return NewStatic(fc.Technicians, fc.Services), nil
}

func NewStatic(technicians []models.Technician, services []models.Service) *Static {
	return &Static{technicians: technicians, services: services}
}

// Validate checks names are present and unique and prices are not negative.
func Validate(technicians []models.Technician, services []models.Service) error {
	seenTech := make(map[string]struct{}, len(technicians))
	for i, t := range technicians {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("technician #%d has no name", i+1)
		}
		if _, dup := seenTech[name]; dup {
			return fmt.Errorf("duplicate technician %q", name)
		}
		seenTech[name] = struct{}{}
	}

	seenSvc := make(map[string]struct{}, len(services))
	for i, s := range services {
		if strings.TrimSpace(s.MainName) == "" {
			return fmt.Errorf("service #%d has no main name", i+1)
		}
		if s.Price < 0 {
			return fmt.Errorf("service %q has negative price", models.PriceKey(s.MainName, s.SubName))
		}
		key := models.PriceKey(s.MainName, s.SubName)
		if _, dup := seenSvc[key]; dup {
			return fmt.Errorf("duplicate service %q", key)
		}
		seenSvc[key] = struct{}{}
	}
	return nil
}

func (s *Static) ListTechnicians(context.Context) ([]models.Technician, error) {
	return append([]models.Technician(nil), s.technicians...), nil
}

func (s *Static) ListServices(context.Context) ([]models.Service, error) {
	return append([]models.Service(nil), s.services...), nil
}
