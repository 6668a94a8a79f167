package outbox

import (
	"context"

	"github.com/vaidashi/service-desk-api/internal/models"
)

// Repository is the outbox table as seen by the Processor
type Repository interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) error
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkForRetry(ctx context.Context, id int64, errorMessage string) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
}

// DeadLetterRepository stores messages that exhausted their publish attempts
type DeadLetterRepository interface {
	Create(ctx context.Context, message *models.DeadLetterMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error)
	GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error)
	List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	MarkAsRetrying(ctx context.Context, id int64) error
	MarkAsResolved(ctx context.Context, id int64) error
	MarkAsDiscarded(ctx context.Context, id int64, reason string) error
	Requeue(ctx context.Context, id int64) error
}
