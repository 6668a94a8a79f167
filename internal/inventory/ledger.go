// Package inventory guards part stock consumed by service orders.
package inventory

import (
	"context"
	"fmt"

	"github.com/vaidashi/service-desk-api/internal/models"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// Tx is the slice of a store transaction the ledger needs. Implementations
// must hold the product row locked between GetProductForUpdate and the end
// of the transaction, and DecrementStock must only succeed while qty >= n.
type Tx interface {
	GetProductForUpdate(ctx context.Context, productID string) (models.Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	InsertLineItem(ctx context.Context, item models.LineItem) error
}

// Ledger consumes stock into order line items
type Ledger struct {
	logger logger.Logger
}

// NewLedger creates a Ledger
func NewLedger(logger logger.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// ReserveAndAttach decrements the product's stock by qty and appends a
// snapshot line item to the order, both through tx. Any error leaves the
// caller's transaction to be rolled back, so neither write survives alone.
func (l *Ledger) ReserveAndAttach(ctx context.Context, tx Tx, orderID, productID string, qty int) (models.LineItem, error) {
	if qty <= 0 {
		return models.LineItem{}, apperrors.NewValidationError("qty must be greater than zero").
			WithContext("qty", qty)
	}

	product, err := tx.GetProductForUpdate(ctx, productID)

	if err != nil {
		return models.LineItem{}, err
	}

	if product.Qty < qty {
		return models.LineItem{}, insufficient(product, qty)
	}

	ok, err := tx.DecrementStock(ctx, product.ID, qty)

	if err != nil {
		return models.LineItem{}, err
	}

	// The guarded update lost a race with another consumer
	if !ok {
		return models.LineItem{}, insufficient(product, qty)
	}

	item := models.NewLineItem(orderID, product, qty)

	if err := tx.InsertLineItem(ctx, item); err != nil {
		return models.LineItem{}, err
	}

	l.logger.Debug("Stock consumed",
		"productID", product.ID,
		"orderID", orderID,
		"qty", qty,
		"remaining", product.Qty-qty)

	return item, nil
}

// LowStock returns the products whose quantity fell under their configured minimum
func LowStock(products []models.Product) []models.Product {
	alerts := make([]models.Product, 0)

	for _, p := range products {
		if p.BelowMinimum() {
			alerts = append(alerts, p)
		}
	}

	return alerts
}

func insufficient(product models.Product, requested int) *apperrors.AppError {
	return apperrors.NewInsufficientStockError(
		fmt.Sprintf("product %s has %d in stock, %d requested", product.Reference, product.Qty, requested),
	).WithContext("product_id", product.ID).
		WithContext("available", product.Qty).
		WithContext("requested", requested)
}
