package catalog

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vaidashi/service-desk-api/internal/models"
)

// Writer is the write side used to load catalog records
type Writer interface {
	UpsertClient(ctx context.Context, c models.Client) error
	UpsertTechnician(ctx context.Context, t models.Technician) error
	UpsertProduct(ctx context.Context, p models.Product) error
	UpsertService(ctx context.Context, s models.Service) error
}

// Fixture is a YAML document describing catalog records
type Fixture struct {
	Clients     []models.Client     `yaml:"clients"`
	Technicians []models.Technician `yaml:"technicians"`
	Products    []models.Product    `yaml:"products"`
	Services    []models.Service    `yaml:"services"`
}

// LoadFixtureFile reads a fixture from path
func LoadFixtureFile(path string) (*Fixture, error) {
	f, err := os.Open(path)

	if err != nil {
		return nil, fmt.Errorf("catalog: open fixture: %w", err)
	}
	defer f.Close()

	return DecodeFixture(f)
}

// DecodeFixture parses and validates a fixture
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture

	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return nil, fmt.Errorf("catalog: decode fixture: %w", err)
	}

	if err := fx.validate(); err != nil {
		return nil, err
	}

	return &fx, nil
}

func (fx *Fixture) validate() error {
	for _, c := range fx.Clients {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("catalog: client needs id and name: %+v", c)
		}
	}
	for _, t := range fx.Technicians {
		if t.ID == "" || t.Name == "" {
			return fmt.Errorf("catalog: technician needs id and name: %+v", t)
		}
		if t.Role != models.RoleAdmin && t.Role != models.RoleTechnician {
			return fmt.Errorf("catalog: technician %s has unknown role %q", t.ID, t.Role)
		}
	}
	for _, p := range fx.Products {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("catalog: product needs id and name: %+v", p)
		}
		if p.Qty < 0 {
			return fmt.Errorf("catalog: product %s has negative qty", p.ID)
		}
	}
	for _, s := range fx.Services {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("catalog: service needs id and name: %+v", s)
		}
	}
	return nil
}

// Apply upserts every record of the fixture through w
func (fx *Fixture) Apply(ctx context.Context, w Writer) error {
	for _, c := range fx.Clients {
		if err := w.UpsertClient(ctx, c); err != nil {
			return fmt.Errorf("catalog: client %s: %w", c.ID, err)
		}
	}
	for _, t := range fx.Technicians {
		if err := w.UpsertTechnician(ctx, t); err != nil {
			return fmt.Errorf("catalog: technician %s: %w", t.ID, err)
		}
	}
	for _, p := range fx.Products {
		if err := w.UpsertProduct(ctx, p); err != nil {
			return fmt.Errorf("catalog: product %s: %w", p.ID, err)
		}
	}
	for _, s := range fx.Services {
		if err := w.UpsertService(ctx, s); err != nil {
			return fmt.Errorf("catalog: service %s: %w", s.ID, err)
		}
	}
	return nil
}
