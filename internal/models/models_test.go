package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

func TestCanSetStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr error
	}{
		{"in progress to pending parts", OrderStatusInProgress, OrderStatusPendingParts, nil},
		{"in progress to itself", OrderStatusInProgress, OrderStatusInProgress, nil},
		{"in progress straight to closed", OrderStatusInProgress, OrderStatusClosed, nil},
		{"pending parts back to work", OrderStatusPendingParts, OrderStatusInProgress, nil},
		{"resolved reopened for rework", OrderStatusResolved, OrderStatusInProgress, nil},
		{"resolved to pending parts", OrderStatusResolved, OrderStatusPendingParts, nil},
		{"resolved to closed", OrderStatusResolved, OrderStatusClosed, nil},
		{"open cannot be moved freely", OrderStatusOpen, OrderStatusInProgress, apperrors.ErrInvalidTransition},
		{"nothing goes back to open", OrderStatusInProgress, OrderStatusOpen, apperrors.ErrInvalidTransition},
		{"closed is terminal", OrderStatusClosed, OrderStatusInProgress, apperrors.ErrInvalidTransition},
		{"unknown target", OrderStatusInProgress, OrderStatus("Shipped"), apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanSetStatus(tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("PendingParts")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingParts, st)

	_, err = ParseOrderStatus("pending")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewServiceOrderDefaults(t *testing.T) {
	order := NewServiceOrder(NewServiceOrderParams{
		Client:        Client{ID: "cli-1", Name: "John Doe"},
		OrderNumber:   "OS-2026-001",
		InitialPhotos: []string{"front.jpg"},
	})

	assert.Equal(t, OrderStatusOpen, order.Status)
	assert.Equal(t, "John Doe", order.ClientName)
	assert.False(t, order.IsAssigned())
	assert.Empty(t, order.Products)
	assert.Empty(t, order.Services)
	assert.Equal(t, DateOnly(order.CreatedAt), order.EntryDate)
	assert.Equal(t, []string{"front.jpg"}, []string(order.InitialPhotos))
}

func TestCloseStampsWarranty(t *testing.T) {
	at := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	order := &ServiceOrder{WarrantyDays: 90}
	order.Close(at)
	require.NotNil(t, order.DeliveryDate)
	require.NotNil(t, order.WarrantyExpiresAt)
	assert.Equal(t, at.AddDate(0, 0, 90), *order.WarrantyExpiresAt)

	noWarranty := &ServiceOrder{}
	noWarranty.Close(at)
	assert.Nil(t, noWarranty.WarrantyExpiresAt)
}

func TestTotals(t *testing.T) {
	order := &ServiceOrder{
		Products: []LineItem{{Qty: 2, UnitCost: 35}, {Qty: 1, UnitCost: 50}},
		Services: []ServiceCharge{{Price: 120}},
	}

	totals := order.Totals()
	assert.InDelta(t, 120.0, totals.Parts, 0.001)
	assert.InDelta(t, 120.0, totals.Labor, 0.001)
	assert.InDelta(t, 240.0, totals.Total, 0.001)
}

func TestServiceOrderJSONCarriesTotals(t *testing.T) {
	order := ServiceOrder{
		ID:       "os-1",
		Products: []LineItem{{Qty: 3, UnitCost: 50}},
		Services: []ServiceCharge{{Price: 120}},
	}

	raw, err := json.Marshal(order)
	require.NoError(t, err)

	var out struct {
		ID     string `json:"id"`
		Totals Totals `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "os-1", out.ID)
	assert.Equal(t, Totals{Parts: 150, Labor: 120, Total: 270}, out.Totals)

	// Pointers marshal the same way
	viaPtr, err := json.Marshal(&order)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(viaPtr))
}

func TestCloneDoesNotShareState(t *testing.T) {
	tech := "usr-1"
	order := &ServiceOrder{TechnicianID: &tech, Products: []LineItem{{ID: "li-1"}}}

	c := order.Clone()
	c.Products = append(c.Products, LineItem{ID: "li-2"})
	*c.TechnicianID = "usr-2"

	assert.Len(t, order.Products, 1)
	assert.Equal(t, "usr-1", *order.TechnicianID)
}

func TestStatusChangedEventPayload(t *testing.T) {
	tech := "usr-9"
	order := &ServiceOrder{ID: "so-1", OrderNumber: "OS-2026-004", ClientID: "cli-1", Status: OrderStatusResolved, TechnicianID: &tech}

	msg, err := NewOrderStatusChangedEvent(order, OrderStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, EventOrderStatusChanged, msg.EventType)
	assert.Equal(t, "so-1", msg.AggregateID)
	assert.Equal(t, OutboxStatusPending, msg.Status)

	var event struct {
		OrderNumber string       `json:"order_number"`
		Data        StatusChange `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "OS-2026-004", event.OrderNumber)
	assert.Equal(t, OrderStatusInProgress, event.Data.OldStatus)
	assert.Equal(t, OrderStatusResolved, event.Data.NewStatus)
	assert.Equal(t, "usr-9", event.Data.TechnicianID)
}
