package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/outbox"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

// OutboxRepository is the in-memory outbox table
type OutboxRepository struct {
	s *Store
}

// Outbox returns the store's outbox table
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{s: s}
}

// Messages returns a copy of every outbox message, oldest first
func (r *OutboxRepository) Messages() []*models.OutboxMessage {
	out := make([]*models.OutboxMessage, 0)

	r.s.read(func(st *state) {
		for _, m := range st.outbox {
			cp := *m
			out = append(out, &cp)
		}
	})

	slices.SortFunc(out, func(a, b *models.OutboxMessage) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	pending := make([]*models.OutboxMessage, 0)

	for _, m := range r.Messages() {
		if m.Status == models.OutboxStatusPending {
			pending = append(pending, m)
		}
	}

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	return r.update(id, func(m *models.OutboxMessage) {
		now := models.GetCurrentTime()
		m.Status = models.OutboxStatusCompleted
		m.ProcessedAt = &now
	})
}

func (r *OutboxRepository) MarkForRetry(ctx context.Context, id int64, errorMessage string) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
	})
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return r.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

func (r *OutboxRepository) update(id int64, fn func(m *models.OutboxMessage)) error {
	var err error

	r.s.write(func(st *state) {
		m, ok := st.outbox[id]
		if !ok {
			err = apperrors.NewNotFoundError(fmt.Sprintf("outbox message %d not found", id))
			return
		}
		fn(m)
	})

	return err
}

// DeadLetterRepository is the in-memory dead-letter table
type DeadLetterRepository struct {
	s *Store
}

// DeadLetters returns the store's dead-letter table
func (s *Store) DeadLetters() *DeadLetterRepository {
	return &DeadLetterRepository{s: s}
}

func (r *DeadLetterRepository) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	r.s.write(func(st *state) {
		st.deadSeq++
		message.ID = st.deadSeq

		cp := *message
		st.deadLetters[cp.ID] = &cp
	})
	return nil
}

func (r *DeadLetterRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	return r.List(ctx, models.DeadLetterStatusPending, limit, 0)
}

func (r *DeadLetterRepository) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	var msg *models.DeadLetterMessage

	r.s.read(func(st *state) {
		if m, ok := st.deadLetters[id]; ok {
			cp := *m
			msg = &cp
		}
	})

	if msg == nil {
		return nil, deadLetterNotFound(id)
	}
	return msg, nil
}

// List returns dead letters oldest first; an empty status matches all
func (r *DeadLetterRepository) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	out := make([]*models.DeadLetterMessage, 0)

	r.s.read(func(st *state) {
		for _, m := range st.deadLetters {
			if status == "" || m.Status == status {
				cp := *m
				out = append(out, &cp)
			}
		}
	})

	slices.SortFunc(out, func(a, b *models.DeadLetterMessage) int { return cmp.Compare(a.ID, b.ID) })

	if offset >= len(out) {
		return []*models.DeadLetterMessage{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DeadLetterRepository) MarkAsRetrying(ctx context.Context, id int64) error {
	return r.update(id, func(m *models.DeadLetterMessage) error {
		now := models.GetCurrentTime()
		m.Status = models.DeadLetterStatusRetrying
		m.RetryCount++
		m.LastRetryAt = &now
		return nil
	})
}

func (r *DeadLetterRepository) MarkAsResolved(ctx context.Context, id int64) error {
	return r.update(id, func(m *models.DeadLetterMessage) error {
		now := models.GetCurrentTime()
		m.Status = models.DeadLetterStatusResolved
		m.ResolvedAt = &now
		return nil
	})
}

func (r *DeadLetterRepository) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	return r.update(id, func(m *models.DeadLetterMessage) error {
		if m.Status == models.DeadLetterStatusResolved {
			return resolvedConflict(id)
		}
		now := models.GetCurrentTime()
		m.Status = models.DeadLetterStatusDiscarded
		m.FailureReason = m.FailureReason + " | Discarded: " + reason
		m.ResolvedAt = &now
		return nil
	})
}

func (r *DeadLetterRepository) Requeue(ctx context.Context, id int64) error {
	return r.update(id, func(m *models.DeadLetterMessage) error {
		if m.Status == models.DeadLetterStatusResolved {
			return resolvedConflict(id)
		}
		m.Status = models.DeadLetterStatusPending
		m.ResolvedAt = nil
		return nil
	})
}

func (r *DeadLetterRepository) update(id int64, fn func(m *models.DeadLetterMessage) error) error {
	var err error

	r.s.write(func(st *state) {
		m, ok := st.deadLetters[id]
		if !ok {
			err = deadLetterNotFound(id)
			return
		}
		err = fn(m)
	})

	return err
}

func deadLetterNotFound(id int64) *apperrors.AppError {
	return apperrors.NewNotFoundError(fmt.Sprintf("dead letter message %d not found", id))
}

func resolvedConflict(id int64) *apperrors.AppError {
	return apperrors.NewConflictError(fmt.Sprintf("dead letter message %d is already resolved", id))
}

var (
	_ outbox.Repository           = (*OutboxRepository)(nil)
	_ outbox.DeadLetterRepository = (*DeadLetterRepository)(nil)
)
