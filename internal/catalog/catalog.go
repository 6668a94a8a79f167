// Package catalog resolves the clients, technicians, products and services
// a service order refers to. Orders copy the resolved display fields at
// write time (snapshot semantics) instead of linking to live records.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaidashi/service-desk-api/internal/models"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

// Directory is the read side of the catalog collaborators
type Directory interface {
	GetClient(ctx context.Context, id string) (models.Client, error)
	GetTechnician(ctx context.Context, id string) (models.Technician, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)
	GetService(ctx context.Context, id string) (models.Service, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// Lookup validates identifiers before delegating to a Directory
type Lookup struct {
	dir Directory
}

// NewLookup creates a Lookup over dir
func NewLookup(dir Directory) *Lookup {
	return &Lookup{dir: dir}
}

// Client resolves a client for the intake name snapshot
func (l *Lookup) Client(ctx context.Context, id string) (models.Client, error) {
	if err := requireID("client", id); err != nil {
		return models.Client{}, err
	}
	return l.dir.GetClient(ctx, id)
}

// Technician resolves the user who is claiming an order
func (l *Lookup) Technician(ctx context.Context, id string) (models.Technician, error) {
	if err := requireID("technician", id); err != nil {
		return models.Technician{}, err
	}
	return l.dir.GetTechnician(ctx, id)
}

// Product resolves a stocked part
func (l *Lookup) Product(ctx context.Context, id string) (models.Product, error) {
	if err := requireID("product", id); err != nil {
		return models.Product{}, err
	}
	return l.dir.GetProduct(ctx, id)
}

// Service resolves a billable labor item
func (l *Lookup) Service(ctx context.Context, id string) (models.Service, error) {
	if err := requireID("service", id); err != nil {
		return models.Service{}, err
	}
	return l.dir.GetService(ctx, id)
}

// Products lists every stocked part
func (l *Lookup) Products(ctx context.Context) ([]models.Product, error) {
	return l.dir.ListProducts(ctx)
}

// NotFound builds the error directories return for a missing entity
func NotFound(entity, id string) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("%s %s not found", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id)
}

func requireID(entity, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.NewValidationError(entity + " id is required")
	}
	return nil
}
