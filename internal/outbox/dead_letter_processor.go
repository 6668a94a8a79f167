package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/service-desk-api/internal/models"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
	"github.com/vaidashi/service-desk-api/pkg/logger"
	"github.com/vaidashi/service-desk-api/pkg/retry"
)

// errDeferred marks a dead letter put back in the queue untouched because
// the round was interrupted or the broker breaker is open
var errDeferred = errors.New("dead letter deferred")

// DeadLetterProcessor gives dead letters a last round of publish attempts
// with backoff and discards the ones that still fail
type DeadLetterProcessor struct {
	dlq             DeadLetterRepository
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	backoffStrategy retry.BackoffStrategy
	logger          logger.Logger
}

// DeadLetterProcessorConfig holds the configuration for the DeadLetterProcessor
type DeadLetterProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxRetries      int
	BackoffStrategy retry.BackoffStrategy
}

// NewDeadLetterProcessor creates a new dead letter processor
func NewDeadLetterProcessor(dlq DeadLetterRepository, config DeadLetterProcessorConfig, logger logger.Logger) *DeadLetterProcessor {
	if config.PollingInterval <= 0 {
		config.PollingInterval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffStrategy == nil {
		config.BackoffStrategy = retry.NewDefaultExponentialBackoff()
	}

	return &DeadLetterProcessor{
		dlq:             dlq,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxRetries:      config.MaxRetries,
		backoffStrategy: config.BackoffStrategy,
		logger:          logger,
	}
}

// RegisterHandler registers handler for each of eventTypes
func (p *DeadLetterProcessor) RegisterHandler(handler MessageHandler, eventTypes ...string) {
	for _, eventType := range eventTypes {
		p.handlers[eventType] = handler
	}
}

// Run polls the dead-letter queue until ctx is canceled
func (p *DeadLetterProcessor) Run(ctx context.Context) error {
	return poll(ctx, "Dead letter processor", p.pollingInterval, p.logger, p.ProcessBatch)
}

// ProcessBatch retries up to one batch of pending dead letters and returns
// how many were resolved. The batch stops at the first deferred message.
func (p *DeadLetterProcessor) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := p.dlq.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return 0, fmt.Errorf("failed to get pending dead letters: %w", err)
	}

	resolved := 0

	for _, msg := range messages {
		err := p.processMessage(ctx, msg)

		if err == nil {
			resolved++
			continue
		}

		if errors.Is(err, errDeferred) {
			p.logger.Warn("Dead letter round interrupted, message requeued",
				"error", err,
				"messageID", msg.ID)
			break
		}

		p.logger.Error("Failed to process dead letter message",
			"error", err,
			"messageID", msg.ID,
			"aggregateID", msg.AggregateID,
			"eventType", msg.EventType,
			"retryCount", msg.RetryCount)
	}

	return resolved, nil
}

func (p *DeadLetterProcessor) processMessage(ctx context.Context, msg *models.DeadLetterMessage) error {
	if err := p.dlq.MarkAsRetrying(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as retrying: %w", err)
	}

	handler, exists := p.handlers[msg.EventType]

	if !exists {
		p.discard(ctx, msg, "No handler available")
		return fmt.Errorf("no handler registered for event type %s", msg.EventType)
	}

	outboxMsg := msg.ToOutboxMessage()

	retryConfig := &retry.RetryConfig{
		MaxAttempts:        p.maxRetries,
		BackoffStrategy:    p.backoffStrategy,
		Logger:             p.logger,
		NonRetryableErrors: []error{apperrors.ErrServiceUnavailable},
	}

	err := retry.RetryWithDiscard(ctx,
		func() error { return handler.HandleMessage(ctx, outboxMsg) },
		retryConfig,
		func(err error) error {
			if ctx.Err() != nil || errors.Is(err, apperrors.ErrServiceUnavailable) {
				return p.requeue(ctx, msg, err)
			}
			p.discard(ctx, msg, fmt.Sprintf("Failed to process message after %d attempts: %v", p.maxRetries, err))
			return fmt.Errorf("message discarded after %d retries: %w", p.maxRetries, err)
		})

	if err != nil {
		return err
	}

	if err := p.dlq.MarkAsResolved(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as resolved: %w", err)
	}

	p.logger.Info("Resolved dead letter message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}

// requeue survives the cancellation of ctx so an interrupted round never
// leaves the message stuck in retrying
func (p *DeadLetterProcessor) requeue(ctx context.Context, msg *models.DeadLetterMessage, cause error) error {
	if err := p.dlq.Requeue(context.WithoutCancel(ctx), msg.ID); err != nil {
		p.logger.Error("Failed to requeue dead letter", "error", err, "messageID", msg.ID)
	}
	return fmt.Errorf("%w: %v", errDeferred, cause)
}

func (p *DeadLetterProcessor) discard(ctx context.Context, msg *models.DeadLetterMessage, reason string) {
	if err := p.dlq.MarkAsDiscarded(ctx, msg.ID, reason); err != nil {
		p.logger.Error("Failed to mark message as discarded", "error", err, "messageID", msg.ID)
	}
}
