package models

import (
	"fmt"

	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
)

// OrderStatus represents the lifecycle state of a service order
type OrderStatus string

const (
	OrderStatusOpen         OrderStatus = "Open"
	OrderStatusInProgress   OrderStatus = "InProgress"
	OrderStatusPendingParts OrderStatus = "PendingParts"
	OrderStatusResolved     OrderStatus = "Resolved"
	OrderStatusClosed       OrderStatus = "Closed"
)

// AllOrderStatuses lists every status in lifecycle order
var AllOrderStatuses = []OrderStatus{
	OrderStatusOpen,
	OrderStatusInProgress,
	OrderStatusPendingParts,
	OrderStatusResolved,
	OrderStatusClosed,
}

// ParseOrderStatus converts a wire value into an OrderStatus
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AllOrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown order status %q", s))
}

// IsValid reports whether s is one of the known statuses
func (s OrderStatus) IsValid() bool {
	_, err := ParseOrderStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no transition leaves s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusClosed
}

// CanSetStatus validates a free-form status change requested by a technician.
// Leaving Open is reserved to assignment and Open is never a valid target;
// every other in-flight state may move to any in-flight state or to Closed.
func CanSetStatus(from, to OrderStatus) error {
	if !to.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown order status %q", to))
	}

	switch {
	case to == OrderStatusOpen:
		return apperrors.NewInvalidTransitionError("an order cannot be moved back to Open")
	case from == OrderStatusOpen:
		return apperrors.NewInvalidTransitionError("order must be assigned before its status can change")
	case from.IsTerminal():
		return apperrors.NewInvalidTransitionError(fmt.Sprintf("order is %s and can no longer change", from))
	}

	return nil
}
