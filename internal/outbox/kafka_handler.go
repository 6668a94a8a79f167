package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/pkg/circuitbreaker"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// Publisher sends one keyed record to a topic. *kafka.Producer implements it.
type Publisher interface {
	SendMessage(ctx context.Context, topic string, key string, value []byte) error
}

// KafkaHandler publishes outbox messages to Kafka behind a circuit breaker
type KafkaHandler struct {
	publisher Publisher
	topic     string
	breaker   *circuitbreaker.CircuitBreaker
	logger    logger.Logger
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher Publisher, topic string, breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		breaker:   breaker,
		logger:    logger,
	}
}

// HandleMessage publishes the payload keyed by order ID so every event of an
// order lands on the same partition. An open breaker fails fast with a
// retryable service-unavailable error.
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	err := h.breaker.Execute(func() error {
		return h.publisher.SendMessage(ctx, h.topic, message.AggregateID, message.Payload)
	})

	if err != nil {
		h.logger.Warn("Failed to publish order event",
			"error", err,
			"topic", h.topic,
			"messageID", message.ID,
			"orderID", message.AggregateID,
			"breakerState", h.breaker.GetState().String())
		return fmt.Errorf("publish %s: %w", message.EventType, err)
	}

	h.logger.Debug("Published order event",
		"topic", h.topic,
		"messageID", message.ID,
		"orderID", message.AggregateID,
		"eventType", message.EventType)

	return nil
}
