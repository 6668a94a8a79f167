package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/service-desk-api/internal/database"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/outbox"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

const deadLetterColumns = `
	id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
	error_message, failure_reason, retry_count, last_retry_at, status, created_at, resolved_at`

// DeadLetterRepository handles database operations related to dead letter messages
type DeadLetterRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewDeadLetterRepository creates a new DeadLetterRepository
func NewDeadLetterRepository(db *database.Database, logger logger.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new dead letter message
func (r *DeadLetterRepository) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	query := `
		INSERT INTO dead_letter_messages (
			original_message_id, aggregate_type, aggregate_id, event_type, payload,
			error_message, failure_reason, retry_count, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		) RETURNING id
	`

	var id int64

	err := r.db.DB.QueryRowContext(
		ctx,
		query,
		message.OriginalMessageID,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		string(message.Payload),
		message.ErrorMessage,
		message.FailureReason,
		message.RetryCount,
		message.Status,
		message.CreatedAt,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create dead letter message", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending dead letter messages
func (r *DeadLetterRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	return r.List(ctx, models.DeadLetterStatusPending, limit, 0)
}

// List retrieves dead letters oldest first; an empty status matches all
func (r *DeadLetterRepository) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	query := `SELECT ` + deadLetterColumns + `
		FROM dead_letter_messages
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	messages := make([]*models.DeadLetterMessage, 0)

	err := r.db.DB.SelectContext(ctx, &messages, query, string(status), limit, offset)

	if err != nil {
		r.logger.Error("Failed to list dead letter messages", "error", err, "status", status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// GetMessage retrieves a message by ID
func (r *DeadLetterRepository) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letter_messages WHERE id = $1`

	var message models.DeadLetterMessage
	err := r.db.DB.GetContext(ctx, &message, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, deadLetterNotFound(id)
		}
		r.logger.Error("Failed to get dead letter message", "error", err, "messageID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &message, nil
}

// MarkAsRetrying marks a message as being retried
func (r *DeadLetterRepository) MarkAsRetrying(ctx context.Context, id int64) error {
	_, err := r.update(ctx, "Failed to mark dead letter message as retrying", id, `
		UPDATE dead_letter_messages
		SET status = $1, retry_count = retry_count + 1, last_retry_at = $2
		WHERE id = $3`,
		models.DeadLetterStatusRetrying, time.Now().UTC(), id)
	return err
}

// MarkAsResolved marks a message as resolved
func (r *DeadLetterRepository) MarkAsResolved(ctx context.Context, id int64) error {
	_, err := r.update(ctx, "Failed to mark dead letter message as resolved", id, `
		UPDATE dead_letter_messages
		SET status = $1, resolved_at = $2
		WHERE id = $3`,
		models.DeadLetterStatusResolved, time.Now().UTC(), id)
	return err
}

// MarkAsDiscarded marks a message as permanently discarded. Resolved
// messages are left alone.
func (r *DeadLetterRepository) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	n, err := r.update(ctx, "Failed to mark dead letter message as discarded", id, `
		UPDATE dead_letter_messages
		SET status = $1, failure_reason = CONCAT(failure_reason, ' | Discarded: ', $2::text), resolved_at = $3
		WHERE id = $4 AND status <> $5`,
		models.DeadLetterStatusDiscarded, reason, time.Now().UTC(), id, models.DeadLetterStatusResolved)

	if err != nil {
		return err
	}

	if n == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

// Requeue puts a discarded or stuck message back in the pending queue
func (r *DeadLetterRepository) Requeue(ctx context.Context, id int64) error {
	n, err := r.update(ctx, "Failed to requeue dead letter message", id, `
		UPDATE dead_letter_messages
		SET status = $1, resolved_at = NULL
		WHERE id = $2 AND status <> $3`,
		models.DeadLetterStatusPending, id, models.DeadLetterStatusResolved)

	if err != nil {
		return err
	}

	if n == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

func (r *DeadLetterRepository) update(ctx context.Context, msg string, id int64, query string, args ...interface{}) (int64, error) {
	res, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error(msg, "error", err, "messageID", id)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	n, err := res.RowsAffected()

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return n, nil
}

// explainMiss tells a missing message apart from one that is already resolved
func (r *DeadLetterRepository) explainMiss(ctx context.Context, id int64) error {
	if _, err := r.GetMessage(ctx, id); err != nil {
		return err
	}
	return apperrors.NewConflictError(fmt.Sprintf("dead letter message %d is already resolved", id))
}

func deadLetterNotFound(id int64) error {
	return fmt.Errorf("%w: %w", ErrNotFound,
		apperrors.NewNotFoundError(fmt.Sprintf("dead letter message %d not found", id)))
}

var _ outbox.DeadLetterRepository = (*DeadLetterRepository)(nil)
