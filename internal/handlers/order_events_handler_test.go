package handlers

import (
	"context"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

type captureNotifier struct {
	notices []PickupNotice
}

func (c *captureNotifier) NotifyPickup(_ context.Context, n PickupNotice) error {
	c.notices = append(c.notices, n)
	return nil
}

func statusMessage(t *testing.T, from, to models.OrderStatus) *sarama.ConsumerMessage {
	t.Helper()

	tech := "T1"
	order := &models.ServiceOrder{
		ID:           "so-1",
		OrderNumber:  "OS-2025-007",
		ClientID:     "C1",
		ClientName:   "John Doe",
		Status:       to,
		TechnicianID: &tech,
	}
	msg, err := models.NewOrderStatusChangedEvent(order, from)
	require.NoError(t, err)

	return &sarama.ConsumerMessage{Topic: "service-orders", Key: []byte(order.ID), Value: msg.Payload}
}

func TestResolvedOrderTriggersPickupNotice(t *testing.T) {
	notifier := &captureNotifier{}
	h := NewOrderEventsHandler(notifier, logger.NewNop())

	err := h.HandleMessage(context.Background(), statusMessage(t, models.OrderStatusInProgress, models.OrderStatusResolved))
	require.NoError(t, err)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, PickupNotice{
		OrderID:     "so-1",
		OrderNumber: "OS-2025-007",
		ClientID:    "C1",
		ClientName:  "John Doe",
	}, notifier.notices[0])
}

func TestOtherEventsAreOnlyLogged(t *testing.T) {
	notifier := &captureNotifier{}
	h := NewOrderEventsHandler(notifier, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, statusMessage(t, models.OrderStatusInProgress, models.OrderStatusPendingParts)))

	created, err := models.NewOrderCreatedEvent(&models.ServiceOrder{ID: "so-2", OrderNumber: "OS-2025-008"})
	require.NoError(t, err)
	require.NoError(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{Value: created.Payload}))

	require.NoError(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{Value: []byte(`{"event_type":"something_else"}`)}))

	assert.Empty(t, notifier.notices)
}

func TestMalformedEventIsRejected(t *testing.T) {
	h := NewOrderEventsHandler(NewLogNotifier(logger.NewNop()), logger.NewNop())
	ctx := context.Background()

	assert.Error(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{Value: []byte(`not json`)}))
	assert.Error(t, h.HandleMessage(ctx, &sarama.ConsumerMessage{
		Value: []byte(`{"event_type":"service_order_status_changed","data":"oops"}`),
	}))
}
