package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/service-desk-api/internal/models"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Processor publishes pending outbox messages and dead-letters the ones that
// keep failing
type Processor struct {
	repo            Repository
	dlq             DeadLetterRepository
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	logger          logger.Logger
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
}

// NewProcessor creates a new Processor
func NewProcessor(repo Repository, dlq DeadLetterRepository, config ProcessorConfig, logger logger.Logger) *Processor {
	if config.PollingInterval <= 0 {
		config.PollingInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	return &Processor{
		repo:            repo,
		dlq:             dlq,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		logger:          logger,
	}
}

// RegisterHandler registers handler for each of eventTypes
func (p *Processor) RegisterHandler(handler MessageHandler, eventTypes ...string) {
	for _, eventType := range eventTypes {
		p.handlers[eventType] = handler
	}
}

// Run polls the outbox until ctx is canceled
func (p *Processor) Run(ctx context.Context) error {
	return poll(ctx, "Outbox processor", p.pollingInterval, p.logger, p.ProcessBatch)
}

// ProcessBatch handles up to one batch of pending messages and returns how
// many were published. A breaker rejection ends the batch early since the
// remaining messages would be rejected too.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := p.repo.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to get pending messages: %w", err)
	}

	published := 0

	for _, msg := range messages {
		err := p.processMessage(ctx, msg)

		if err == nil {
			published++
			continue
		}

		p.logger.Error("Failed to process message",
			"error", err,
			"messageID", msg.ID,
			"aggregateID", msg.AggregateID,
			"eventType", msg.EventType)

		if errors.Is(err, apperrors.ErrServiceUnavailable) {
			break
		}
	}

	return published, nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	if err := p.repo.MarkAsProcessing(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}
	attempts := msg.ProcessingAttempts + 1

	handler, exists := p.handlers[msg.EventType]

	if !exists {
		err := fmt.Errorf("no handler registered for event type %s", msg.EventType)
		p.deadLetter(ctx, msg, err, "no handler")
		return err
	}

	err := handler.HandleMessage(ctx, msg)

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrServiceUnavailable):
		// A breaker rejection never dead-letters a message.
		p.retryLater(ctx, msg, err)
		return err
	case attempts >= p.maxRetries:
		p.deadLetter(ctx, msg, err, fmt.Sprintf("max retries reached after %d attempts", attempts))
		return fmt.Errorf("message failed after %d attempts: %w", attempts, err)
	default:
		p.logger.Warn("Message processing failed, will retry",
			"error", err,
			"messageID", msg.ID,
			"attempt", attempts)
		p.retryLater(ctx, msg, err)
		return err
	}

	if err := p.repo.MarkAsCompleted(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Info("Published outbox message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

func (p *Processor) retryLater(ctx context.Context, msg *models.OutboxMessage, cause error) {
	if err := p.repo.MarkForRetry(ctx, msg.ID, cause.Error()); err != nil {
		p.logger.Error("Failed to mark message for retry", "error", err, "messageID", msg.ID)
	}
}

func (p *Processor) deadLetter(ctx context.Context, msg *models.OutboxMessage, cause error, reason string) {
	if err := p.repo.MarkAsFailed(ctx, msg.ID, cause.Error()); err != nil {
		p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		return
	}

	dead := models.NewDeadLetterMessage(msg, cause.Error(), reason)

	if err := p.dlq.Create(ctx, dead); err != nil {
		p.logger.Error("Failed to move message to dead letter queue", "error", err, "messageID", msg.ID)
		return
	}

	p.logger.Warn("Moved message to dead letter queue",
		"messageID", msg.ID,
		"deadLetterID", dead.ID,
		"reason", reason)
}
