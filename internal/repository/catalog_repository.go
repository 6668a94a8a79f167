package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

const productColumns = `id, reference, name, qty, min_qty, cost, location, created_at`

// CatalogRepository reads and seeds clients, technicians, products and services
type CatalogRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *database.Database, logger logger.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// GetClient retrieves a client by ID
func (r *CatalogRepository) GetClient(ctx context.Context, id string) (models.Client, error) {
	var c models.Client
	err := r.get(ctx, &c, "client", id, `SELECT id, name, phone, email, created_at FROM clients WHERE id = $1`)
	return c, err
}

// GetTechnician retrieves a technician by ID
func (r *CatalogRepository) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	var t models.Technician
	err := r.get(ctx, &t, "technician", id, `SELECT id, name, email, role, created_at FROM technicians WHERE id = $1`)
	return t, err
}

// GetProduct retrieves a product by ID
func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var p models.Product
	err := r.get(ctx, &p, "product", id, `SELECT `+productColumns+` FROM products WHERE id = $1`)
	return p, err
}

// GetService retrieves a billable service by ID
func (r *CatalogRepository) GetService(ctx context.Context, id string) (models.Service, error) {
	var s models.Service
	err := r.get(ctx, &s, "service", id, `SELECT id, name, price, created_at FROM services WHERE id = $1`)
	return s, err
}

// ListProducts retrieves every product ordered by reference
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := make([]models.Product, 0)

	err := r.db.DB.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY reference`)

	if err != nil {
		r.logger.Error("Failed to list products", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return products, nil
}

func (r *CatalogRepository) get(ctx context.Context, dest interface{}, entity, id, query string) error {
	err := r.db.DB.GetContext(ctx, dest, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %w", ErrNotFound, catalog.NotFound(entity, id))
		}
		r.logger.Error("Failed to get "+entity, "error", err, "id", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// UpsertClient inserts or refreshes a client
func (r *CatalogRepository) UpsertClient(ctx context.Context, c models.Client) error {
	return r.exec(ctx, "client", c.ID, `
		INSERT INTO clients (id, name, phone, email) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email`,
		c.ID, c.Name, c.Phone, c.Email)
}

// UpsertTechnician inserts or refreshes a technician
func (r *CatalogRepository) UpsertTechnician(ctx context.Context, t models.Technician) error {
	return r.exec(ctx, "technician", t.ID, `
		INSERT INTO technicians (id, name, email, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`,
		t.ID, t.Name, t.Email, t.Role)
}

// UpsertProduct inserts or refreshes a product, including its stock level
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p models.Product) error {
	return r.exec(ctx, "product", p.ID, `
		INSERT INTO products (id, reference, name, qty, min_qty, cost, location) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			reference = EXCLUDED.reference, name = EXCLUDED.name, qty = EXCLUDED.qty,
			min_qty = EXCLUDED.min_qty, cost = EXCLUDED.cost, location = EXCLUDED.location`,
		p.ID, p.Reference, p.Name, p.Qty, p.MinQty, p.Cost, p.Location)
}

// UpsertService inserts or refreshes a billable service
func (r *CatalogRepository) UpsertService(ctx context.Context, s models.Service) error {
	return r.exec(ctx, "service", s.ID, `
		INSERT INTO services (id, name, price) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`,
		s.ID, s.Name, s.Price)
}

func (r *CatalogRepository) exec(ctx context.Context, entity, id, query string, args ...interface{}) error {
	_, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to upsert "+entity, "error", err, "id", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

var (
	_ catalog.Directory = (*CatalogRepository)(nil)
	_ catalog.Writer    = (*CatalogRepository)(nil)
)
