package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// LoggingHandler writes order events to the log instead of a broker. It is
// the publisher when Kafka is disabled or the store is in memory.
type LoggingHandler struct {
	log logger.Logger
}

func NewLoggingHandler(log logger.Logger) *LoggingHandler {
	return &LoggingHandler{log: log.With("publisher", "log")}
}

// HandleMessage fails only on an undecodable payload, which then follows the
// normal retry and dead-letter path
func (h *LoggingHandler) HandleMessage(_ context.Context, msg *models.OutboxMessage) error {
	var ev models.OrderEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("decode outbox message %d: %w", msg.ID, err)
	}

	h.log.Info("Order event published",
		"messageID", msg.ID,
		"eventType", ev.EventType,
		"eventID", ev.EventID,
		"orderID", ev.AggregateID,
		"orderNumber", ev.OrderNumber,
		"occurredAt", ev.OccurredAt)
	return nil
}
