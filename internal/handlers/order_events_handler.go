package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// PickupNotifier tells a client their equipment is ready
type PickupNotifier interface {
	NotifyPickup(ctx context.Context, notice PickupNotice) error
}

// PickupNotice is sent when an order reaches Resolved
type PickupNotice struct {
	OrderID     string
	OrderNumber string
	ClientID    string
	ClientName  string
}

// LogNotifier writes pickup notices to the log
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyPickup logs the notice
func (n *LogNotifier) NotifyPickup(_ context.Context, notice PickupNotice) error {
	n.logger.Info("Equipment ready for pickup",
		"orderID", notice.OrderID,
		"orderNumber", notice.OrderNumber,
		"clientID", notice.ClientID,
		"clientName", notice.ClientName)
	return nil
}

// OrderEventsHandler consumes service order lifecycle events from Kafka
type OrderEventsHandler struct {
	notifier PickupNotifier
	logger   logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(notifier PickupNotifier, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// event mirrors models.OrderEvent but keeps Data raw until the type is known
type event struct {
	models.OrderEvent
	Data json.RawMessage `json:"data"`
}

// HandleMessage handles one lifecycle event
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt event

	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("Failed to unmarshal order event", "error", err, "offset", msg.Offset)
		return fmt.Errorf("failed to unmarshal order event: %w", err)
	}

	h.logger.Info("Handling order event",
		"eventType", evt.EventType,
		"eventID", evt.EventID,
		"orderID", evt.AggregateID,
		"orderNumber", evt.OrderNumber,
		"occurredAt", evt.OccurredAt)

	switch evt.EventType {
	case models.EventOrderStatusChanged:
		return h.handleStatusChanged(ctx, evt)
	case models.EventOrderCreated,
		models.EventOrderAssigned,
		models.EventOrderProductAttached,
		models.EventOrderServiceAttached:
		return nil
	default:
		h.logger.Warn("Unknown event type", "eventType", evt.EventType)
		return nil
	}
}

func (h *OrderEventsHandler) handleStatusChanged(ctx context.Context, evt event) error {
	var change models.StatusChange

	if err := json.Unmarshal(evt.Data, &change); err != nil {
		h.logger.Error("Invalid status change payload", "error", err, "eventID", evt.EventID)
		return fmt.Errorf("invalid status change payload: %w", err)
	}

	h.logger.Info("Order status changed",
		"orderNumber", evt.OrderNumber,
		"oldStatus", change.OldStatus,
		"newStatus", change.NewStatus)

	if change.NewStatus != models.OrderStatusResolved {
		return nil
	}

	return h.notifier.NotifyPickup(ctx, PickupNotice{
		OrderID:     evt.AggregateID,
		OrderNumber: evt.OrderNumber,
		ClientID:    change.ClientID,
		ClientName:  change.ClientName,
	})
}
