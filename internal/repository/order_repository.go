package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/service"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrDatabase = errors.New("database error")
)

const orderColumns = `
	id, order_number, client_id, client_name, status, entry_date,
	diagnosis_initial, initial_photos, technician_id, technician_name,
	warranty_days, delivery_date, warranty_expires_at, created_at, updated_at`

// OrderRepository handles database operations for service orders
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// WithTx runs fn inside one database transaction
func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(ctx, &orderTx{tx: tx, logger: r.logger})
	})
}

// GetOrder retrieves a service order with its line items
func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*models.ServiceOrder, error) {
	var order models.ServiceOrder

	err := r.db.DB.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM service_orders WHERE id = $1`, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderNotFound(id)
		}
		r.logger.Error("Failed to get service order", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	orders := []*models.ServiceOrder{&order}
	if err := loadItems(ctx, r.db.DB, orders); err != nil {
		r.logger.Error("Failed to load service order items", "error", err, "orderID", id)
		return nil, err
	}

	return &order, nil
}

// ListOrdersByStatus retrieves every order in status
func (r *OrderRepository) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.ServiceOrder, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM service_orders WHERE status = $1 ORDER BY entry_date, created_at, id`, status)
}

// ListOrdersByTechnician retrieves every order claimed by technicianID
func (r *OrderRepository) ListOrdersByTechnician(ctx context.Context, technicianID string) ([]*models.ServiceOrder, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM service_orders WHERE technician_id = $1 ORDER BY entry_date DESC`, technicianID)
}

// CountOrdersByStatus tallies orders per status
func (r *OrderRepository) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	var rows []struct {
		Status models.OrderStatus `db:"status"`
		Count  int                `db:"count"`
	}

	err := r.db.DB.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM service_orders GROUP BY status`)

	if err != nil {
		r.logger.Error("Failed to count service orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	counts := make(map[models.OrderStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ServiceOrder, error) {
	orders := make([]*models.ServiceOrder, 0)

	if err := r.db.DB.SelectContext(ctx, &orders, query, args...); err != nil {
		r.logger.Error("Failed to list service orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if err := loadItems(ctx, r.db.DB, orders); err != nil {
		r.logger.Error("Failed to load service order items", "error", err)
		return nil, err
	}

	return orders, nil
}

// loadItems fills Products and Services of orders with two batched queries
func loadItems(ctx context.Context, q sqlx.QueryerContext, orders []*models.ServiceOrder) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*models.ServiceOrder, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Products = []models.LineItem{}
		o.Services = []models.ServiceCharge{}
	}

	var items []models.LineItem
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT id, order_id, product_id, product_name, product_reference, qty, unit_cost, created_at
		FROM service_order_products
		WHERE order_id = ANY($1)
		ORDER BY created_at, id`, pq.Array(ids))

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	var charges []models.ServiceCharge
	err = sqlx.SelectContext(ctx, q, &charges, `
		SELECT id, order_id, service_id, service_name, price, created_at
		FROM service_order_services
		WHERE order_id = ANY($1)
		ORDER BY created_at, id`, pq.Array(ids))

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, item := range items {
		o := byID[item.OrderID]
		o.Products = append(o.Products, item)
	}
	for _, charge := range charges {
		o := byID[charge.OrderID]
		o.Services = append(o.Services, charge)
	}

	return nil
}

// orderTx implements service.Tx over one sqlx transaction
type orderTx struct {
	tx     *sqlx.Tx
	logger logger.Logger
}

func (t *orderTx) fail(msg string, err error, keyvals ...interface{}) error {
	t.logger.Error(msg, append([]interface{}{"error", err}, keyvals...)...)
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

// NextOrderSequence bumps the per-year counter; the row lock it takes is
// held until commit so concurrent creates serialize on it.
func (t *orderTx) NextOrderSequence(ctx context.Context, year int) (int64, error) {
	var seq int64

	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO order_number_counters (year, last_seq) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_seq = order_number_counters.last_seq + 1
		RETURNING last_seq`, year).Scan(&seq)

	if err != nil {
		return 0, t.fail("Failed to draw order number", err, "year", year)
	}

	return seq, nil
}

func (t *orderTx) InsertOrder(ctx context.Context, order *models.ServiceOrder) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO service_orders (`+orderColumns+`)
		VALUES (
			:id, :order_number, :client_id, :client_name, :status, :entry_date,
			:diagnosis_initial, :initial_photos, :technician_id, :technician_name,
			:warranty_days, :delivery_date, :warranty_expires_at, :created_at, :updated_at
		)`, order)

	if err != nil {
		return t.fail("Failed to create service order", err, "orderID", order.ID)
	}

	return nil
}

func (t *orderTx) GetOrderForUpdate(ctx context.Context, id string) (*models.ServiceOrder, error) {
	var order models.ServiceOrder

	err := t.tx.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM service_orders WHERE id = $1 FOR UPDATE`, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderNotFound(id)
		}
		return nil, t.fail("Failed to lock service order", err, "orderID", id)
	}

	if err := loadItems(ctx, t.tx, []*models.ServiceOrder{&order}); err != nil {
		t.logger.Error("Failed to load service order items", "error", err, "orderID", id)
		return nil, err
	}

	return &order, nil
}

func (t *orderTx) AssignIfOpen(ctx context.Context, orderID string, tech models.Technician, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE service_orders
		SET status = $1, technician_id = $2, technician_name = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		models.OrderStatusInProgress, tech.ID, tech.Name, at, orderID, models.OrderStatusOpen)

	if err != nil {
		return false, t.fail("Failed to assign service order", err, "orderID", orderID)
	}

	return affectedOne(res)
}

func (t *orderTx) UpdateStatusIf(ctx context.Context, order *models.ServiceOrder, expected models.OrderStatus) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE service_orders
		SET status = $1, updated_at = $2, delivery_date = $3, warranty_expires_at = $4
		WHERE id = $5 AND status = $6`,
		order.Status, order.UpdatedAt, order.DeliveryDate, order.WarrantyExpiresAt, order.ID, expected)

	if err != nil {
		return false, t.fail("Failed to update service order status", err, "orderID", order.ID)
	}

	return affectedOne(res)
}

func (t *orderTx) InsertServiceCharge(ctx context.Context, charge models.ServiceCharge) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO service_order_services (id, order_id, service_id, service_name, price, created_at)
		VALUES (:id, :order_id, :service_id, :service_name, :price, :created_at)`, charge)

	if err != nil {
		return t.fail("Failed to attach service", err, "orderID", charge.OrderID, "serviceID", charge.ServiceID)
	}

	return nil
}

func (t *orderTx) InsertOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error {
	return createOutboxMessage(ctx, t.tx, msg)
}

func (t *orderTx) GetProductForUpdate(ctx context.Context, productID string) (models.Product, error) {
	var p models.Product

	err := t.tx.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, catalog.NotFound("product", productID)
		}
		return models.Product{}, t.fail("Failed to lock product", err, "productID", productID)
	}

	return p, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE products SET qty = qty - $1 WHERE id = $2 AND qty >= $1`, qty, productID)

	if err != nil {
		return false, t.fail("Failed to decrement stock", err, "productID", productID)
	}

	return affectedOne(res)
}

func (t *orderTx) InsertLineItem(ctx context.Context, item models.LineItem) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO service_order_products (id, order_id, product_id, product_name, product_reference, qty, unit_cost, created_at)
		VALUES (:id, :order_id, :product_id, :product_name, :product_reference, :qty, :unit_cost, :created_at)`, item)

	if err != nil {
		return t.fail("Failed to attach product", err, "orderID", item.OrderID, "productID", item.ProductID)
	}

	return nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()

	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return n == 1, nil
}

func orderNotFound(id string) error {
	return fmt.Errorf("%w: %w", ErrNotFound, catalog.NotFound("service order", id))
}

var (
	_ service.Store = (*OrderRepository)(nil)
	_ service.Tx    = (*orderTx)(nil)
)
