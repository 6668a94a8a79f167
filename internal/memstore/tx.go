package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/service"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

// Names accepted by FailNext
const (
	OpNextOrderSequence   = "NextOrderSequence"
	OpInsertOrder         = "InsertOrder"
	OpAssignIfOpen        = "AssignIfOpen"
	OpUpdateStatusIf      = "UpdateStatusIf"
	OpDecrementStock      = "DecrementStock"
	OpInsertLineItem      = "InsertLineItem"
	OpInsertServiceCharge = "InsertServiceCharge"
	OpInsertOutboxMessage = "InsertOutboxMessage"
)

// tx mutates a cloned state while the store mutex is held. Row locks are
// implicit: nothing else can run until the transaction ends.
type tx struct {
	store *Store
	state *state
}

func (t *tx) NextOrderSequence(ctx context.Context, year int) (int64, error) {
	if err := t.store.fault(OpNextOrderSequence); err != nil {
		return 0, err
	}

	t.state.counters[year]++
	return t.state.counters[year], nil
}

func (t *tx) InsertOrder(ctx context.Context, order *models.ServiceOrder) error {
	if err := t.store.fault(OpInsertOrder); err != nil {
		return err
	}

	for _, o := range t.state.orders {
		if o.OrderNumber == order.OrderNumber {
			return apperrors.NewConflictError(fmt.Sprintf("order number %s already exists", order.OrderNumber))
		}
	}
	if _, ok := t.state.orders[order.ID]; ok {
		return apperrors.NewConflictError(fmt.Sprintf("order %s already exists", order.ID))
	}

	t.state.orders[order.ID] = order.Clone()
	return nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id string) (*models.ServiceOrder, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, orderNotFound(id)
	}
	return o.Clone(), nil
}

func (t *tx) AssignIfOpen(ctx context.Context, orderID string, tech models.Technician, at time.Time) (bool, error) {
	if err := t.store.fault(OpAssignIfOpen); err != nil {
		return false, err
	}

	o, ok := t.state.orders[orderID]
	if !ok || o.Status != models.OrderStatusOpen {
		return false, nil
	}

	id, name := tech.ID, tech.Name
	o.TechnicianID = &id
	o.TechnicianName = &name
	o.Status = models.OrderStatusInProgress
	o.UpdatedAt = at
	return true, nil
}

func (t *tx) UpdateStatusIf(ctx context.Context, order *models.ServiceOrder, expected models.OrderStatus) (bool, error) {
	if err := t.store.fault(OpUpdateStatusIf); err != nil {
		return false, err
	}

	o, ok := t.state.orders[order.ID]
	if !ok || o.Status != expected {
		return false, nil
	}

	o.Status = order.Status
	o.UpdatedAt = order.UpdatedAt
	o.DeliveryDate = order.DeliveryDate
	o.WarrantyExpiresAt = order.WarrantyExpiresAt
	return true, nil
}

func (t *tx) InsertServiceCharge(ctx context.Context, charge models.ServiceCharge) error {
	if err := t.store.fault(OpInsertServiceCharge); err != nil {
		return err
	}

	o, ok := t.state.orders[charge.OrderID]
	if !ok {
		return orderNotFound(charge.OrderID)
	}

	o.Services = append(o.Services, charge)
	return nil
}

func (t *tx) InsertOutboxMessage(ctx context.Context, msg *models.OutboxMessage) error {
	if err := t.store.fault(OpInsertOutboxMessage); err != nil {
		return err
	}

	t.state.outboxSeq++
	msg.ID = t.state.outboxSeq

	cp := *msg
	t.state.outbox[cp.ID] = &cp
	return nil
}

func (t *tx) GetProductForUpdate(ctx context.Context, productID string) (models.Product, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return models.Product{}, catalog.NotFound("product", productID)
	}
	return p, nil
}

func (t *tx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	if err := t.store.fault(OpDecrementStock); err != nil {
		return false, err
	}

	p, ok := t.state.products[productID]
	if !ok || p.Qty < qty {
		return false, nil
	}

	p.Qty -= qty
	t.state.products[productID] = p
	return true, nil
}

func (t *tx) InsertLineItem(ctx context.Context, item models.LineItem) error {
	if err := t.store.fault(OpInsertLineItem); err != nil {
		return err
	}

	o, ok := t.state.orders[item.OrderID]
	if !ok {
		return orderNotFound(item.OrderID)
	}

	o.Products = append(o.Products, item)
	return nil
}

func orderNotFound(id string) *apperrors.AppError {
	return catalog.NotFound("service order", id)
}

var _ service.Tx = (*tx)(nil)
