package service

import (
	"context"
	"time"

	"github.com/vaidashi/service-desk-api/internal/inventory"
	"github.com/vaidashi/service-desk-api/internal/models"
)

// Store abstracts persistence of service orders. Every mutation runs inside
// WithTx: the callback's writes are committed together or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrder(ctx context.Context, id string) (*models.ServiceOrder, error)
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.ServiceOrder, error)
	ListOrdersByTechnician(ctx context.Context, technicianID string) ([]*models.ServiceOrder, error)
	CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
}

// Tx exposes the transactional writes of the order lifecycle.
//
// AssignIfOpen and UpdateStatusIf are conditional updates: they report
// false, without error, when the order's status no longer matches, which
// is how two racing claims on the same ticket are told apart.
type Tx interface {
	inventory.Tx

	NextOrderSequence(ctx context.Context, year int) (int64, error)
	InsertOrder(ctx context.Context, order *models.ServiceOrder) error
	GetOrderForUpdate(ctx context.Context, id string) (*models.ServiceOrder, error)
	AssignIfOpen(ctx context.Context, orderID string, tech models.Technician, at time.Time) (bool, error)
	UpdateStatusIf(ctx context.Context, order *models.ServiceOrder, expected models.OrderStatus) (bool, error)
	InsertServiceCharge(ctx context.Context, charge models.ServiceCharge) error
	InsertOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error
}
