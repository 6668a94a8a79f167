package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/service"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// SERVICE_DESK_TEST_DSN points at a disposable PostgreSQL database; the
// tests below truncate every table they touch.
func openTestDB(t *testing.T) *database.Database {
	t.Helper()

	dsn := os.Getenv("SERVICE_DESK_TEST_DSN")
	if dsn == "" {
		t.Skip("SERVICE_DESK_TEST_DSN not set")
	}

	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db := database.Wrap(conn, logger.NewNop())
	_, err = conn.Exec(database.Schema)
	require.NoError(t, err)

	_, err = conn.Exec(`TRUNCATE service_order_products, service_order_services, service_orders,
		order_number_counters, outbox_messages, dead_letter_messages,
		products, services, technicians, clients`)
	require.NoError(t, err)

	return db
}

type pgFixture struct {
	orders  *OrderRepository
	catalog *CatalogRepository
	svc     *service.OrderService
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()

	db := openTestDB(t)
	log := logger.NewNop()
	ctx := context.Background()

	orders := NewOrderRepository(db, log)
	cat := NewCatalogRepository(db, log)

	require.NoError(t, cat.UpsertClient(ctx, models.Client{ID: "C1", Name: "John Doe"}))
	require.NoError(t, cat.UpsertTechnician(ctx, models.Technician{ID: "T1", Name: "Ana", Role: models.RoleTechnician}))
	require.NoError(t, cat.UpsertTechnician(ctx, models.Technician{ID: "T2", Name: "Bruno", Role: models.RoleAdmin}))
	require.NoError(t, cat.UpsertProduct(ctx, models.Product{ID: "P", Reference: "SSD-512", Name: "SSD", Qty: 5, Cost: 50}))
	require.NoError(t, cat.UpsertService(ctx, models.Service{ID: "S1", Name: "Cleaning", Price: 80}))

	return &pgFixture{
		orders:  orders,
		catalog: cat,
		svc:     service.NewOrderService(orders, cat, log),
	}
}

func TestPostgresLifecycle(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, service.CreateOrderInput{ClientID: "C1", InitialPhotos: []string{"a.jpg"}})
	require.NoError(t, err)
	assert.Regexp(t, `^OS-\d{4}-001$`, order.OrderNumber)

	_, err = f.svc.AssignOrder(ctx, order.ID, "T1")
	require.NoError(t, err)
	_, err = f.svc.AssignOrder(ctx, order.ID, "T2")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = f.svc.AttachProduct(ctx, order.ID, "P", 3)
	require.NoError(t, err)
	_, err = f.svc.AttachProduct(ctx, order.ID, "P", 3)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	_, err = f.svc.AttachService(ctx, order.ID, "S1")
	require.NoError(t, err)

	_, err = f.svc.SetOrderStatus(ctx, order.ID, models.OrderStatusClosed)
	require.NoError(t, err)

	stored, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusClosed, stored.Status)
	assert.Equal(t, []string{"a.jpg"}, []string(stored.InitialPhotos))
	require.Len(t, stored.Products, 1)
	assert.Equal(t, 3, stored.Products[0].Qty)
	require.Len(t, stored.Services, 1)
	assert.NotNil(t, stored.DeliveryDate)

	p, err := f.catalog.GetProduct(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Qty)

	_, err = f.orders.GetOrder(ctx, "so-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresConcurrentAssign(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, service.CreateOrderInput{ClientID: "C1"})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, tech := range []string{"T1", "T2", "T1", "T2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AssignOrder(ctx, order.ID, tech)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestPostgresOrderNumbersAreUnique(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]bool)
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := f.svc.CreateOrder(ctx, service.CreateOrderInput{ClientID: "C1"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[order.OrderNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, 10)
}

type failingQueryer struct{ err error }

func (q failingQueryer) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, q.err
}

func (q failingQueryer) QueryxContext(context.Context, string, ...interface{}) (*sqlx.Rows, error) {
	return nil, q.err
}

func (q failingQueryer) QueryRowxContext(context.Context, string, ...interface{}) *sqlx.Row {
	return nil
}

func TestLoadItemsWrapsDatabaseErrorOnce(t *testing.T) {
	orders := []*models.ServiceOrder{{ID: "os-1"}}

	err := loadItems(context.Background(), failingQueryer{err: errors.New("connection reset")}, orders)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatabase))
	assert.Equal(t, "database error: connection reset", err.Error())
}
