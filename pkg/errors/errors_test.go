package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("order so-1 not found"), http.StatusNotFound},
		{"invalid transition", NewInvalidTransitionError("order is closed"), http.StatusConflict},
		{"insufficient stock", NewInsufficientStockError("only 2 left"), http.StatusConflict},
		{"validation", NewValidationError("qty must be positive"), http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"wrapped app error", fmt.Errorf("assign: %w", NewInvalidTransitionError("taken")), http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := NewInsufficientStockError("not enough SSDs").WithContext("product_id", "prd-1")

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "not enough SSDs", err.Error())
	assert.Equal(t, "prd-1", err.Context["product_id"])
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTemporaryError("broker down")))
	assert.True(t, IsRetryable(fmt.Errorf("publish: %w", ErrServiceUnavailable)))
	assert.False(t, IsRetryable(NewValidationError("bad input")))
}
