package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/outbox"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type, payload,
	created_at, processed_at, processing_attempts, last_error, status`

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// createOutboxMessage inserts message with q, which is the transaction of
// the change the message describes.
func createOutboxMessage(ctx context.Context, q sqlx.QueryerContext, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			aggregate_type, aggregate_id, event_type, payload,
			created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	var id int64

	err := q.QueryRowxContext(
		ctx,
		query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		string(message.Payload),
		message.CreatedAt,
		message.Status,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("%w: failed to create outbox message: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending outbox messages, oldest first
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(ctx, &messages, query, models.OutboxStatusPending, limit)

	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// MarkAsProcessing updates the status of an outbox message to processing
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	return r.exec(ctx, "Failed to mark outbox message as processing", id, `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1
		WHERE id = $2`,
		models.OutboxStatusProcessing, id)
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	return r.exec(ctx, "Failed to mark outbox message as completed", id, `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2
		WHERE id = $3`,
		models.OutboxStatusCompleted, time.Now().UTC(), id)
}

// MarkForRetry puts a message back in the pending queue after a failed attempt
func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	return r.exec(ctx, "Failed to mark outbox message for retry", id, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3`,
		models.OutboxStatusPending, errorMessage, id)
}

// MarkAsFailed updates the status of an outbox message to failed
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return r.exec(ctx, "Failed to mark outbox message as failed", id, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3`,
		models.OutboxStatusFailed, errorMessage, id)
}

func (r *OutboxRepository) exec(ctx context.Context, msg string, id int64, query string, args ...interface{}) error {
	_, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error(msg, "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
