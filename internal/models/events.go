package models

import (
	"encoding/json"
	"time"
)

// Lifecycle event types written to the outbox
const (
	EventOrderCreated         = "service_order_created"
	EventOrderAssigned        = "service_order_assigned"
	EventOrderStatusChanged   = "service_order_status_changed"
	EventOrderProductAttached = "service_order_product_attached"
	EventOrderServiceAttached = "service_order_service_attached"
)

// OrderEventTypes lists every event the outbox must know how to publish
var OrderEventTypes = []string{
	EventOrderCreated,
	EventOrderAssigned,
	EventOrderStatusChanged,
	EventOrderProductAttached,
	EventOrderServiceAttached,
}

const aggregateServiceOrder = "service_order"

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxMessage is a lifecycle event stored in the same transaction as the change it describes
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OrderEvent is the envelope published for every lifecycle change
type OrderEvent struct {
	EventType   string      `json:"event_type"`
	EventID     string      `json:"event_id"`
	AggregateID string      `json:"aggregate_id"`
	OrderNumber string      `json:"order_number"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Data        interface{} `json:"data"`
}

// StatusChange is the payload of a status-changed event
type StatusChange struct {
	OldStatus    OrderStatus `json:"old_status"`
	NewStatus    OrderStatus `json:"new_status"`
	ClientID     string      `json:"client_id"`
	ClientName   string      `json:"client_name"`
	TechnicianID string      `json:"technician_id,omitempty"`
}

func newOrderEvent(eventType string, order *ServiceOrder, data interface{}) (*OutboxMessage, error) {
	now := GetCurrentTime()

	event := OrderEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: order.ID,
		OrderNumber: order.OrderNumber,
		OccurredAt:  now,
		Data:        data,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType: aggregateServiceOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent creates the intake event
func NewOrderCreatedEvent(order *ServiceOrder) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderCreated, order, order)
}

// NewOrderAssignedEvent creates the event for a technician claiming an order
func NewOrderAssignedEvent(order *ServiceOrder) (*OutboxMessage, error) {
	data := map[string]interface{}{
		"technician_id":   order.TechnicianID,
		"technician_name": order.TechnicianName,
		"status":          order.Status,
	}
	return newOrderEvent(EventOrderAssigned, order, data)
}

// NewOrderStatusChangedEvent creates the event for a free-form status change
func NewOrderStatusChangedEvent(order *ServiceOrder, oldStatus OrderStatus) (*OutboxMessage, error) {
	change := StatusChange{
		OldStatus:  oldStatus,
		NewStatus:  order.Status,
		ClientID:   order.ClientID,
		ClientName: order.ClientName,
	}
	if order.TechnicianID != nil {
		change.TechnicianID = *order.TechnicianID
	}
	return newOrderEvent(EventOrderStatusChanged, order, change)
}

// NewProductAttachedEvent creates the event for a part consumed by an order
func NewProductAttachedEvent(order *ServiceOrder, item LineItem) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderProductAttached, order, item)
}

// NewServiceAttachedEvent creates the event for a labor charge added to an order
func NewServiceAttachedEvent(order *ServiceOrder, charge ServiceCharge) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderServiceAttached, order, charge)
}

// DeadLetterStatus represents the status of a dead letter message
type DeadLetterStatus string

const (
	DeadLetterStatusPending   DeadLetterStatus = "pending"
	DeadLetterStatusRetrying  DeadLetterStatus = "retrying"
	DeadLetterStatusResolved  DeadLetterStatus = "resolved"
	DeadLetterStatusDiscarded DeadLetterStatus = "discarded"
)

// DeadLetterMessage is an outbox message that exhausted its publish attempts
type DeadLetterMessage struct {
	ID                int64            `db:"id" json:"id"`
	OriginalMessageID int64            `db:"original_message_id" json:"original_message_id"`
	AggregateType     string           `db:"aggregate_type" json:"aggregate_type"`
	AggregateID       string           `db:"aggregate_id" json:"aggregate_id"`
	EventType         string           `db:"event_type" json:"event_type"`
	Payload           []byte           `db:"payload" json:"payload"`
	ErrorMessage      string           `db:"error_message" json:"error_message"`
	FailureReason     string           `db:"failure_reason" json:"failure_reason"`
	RetryCount        int              `db:"retry_count" json:"retry_count"`
	LastRetryAt       *time.Time       `db:"last_retry_at" json:"last_retry_at,omitempty"`
	Status            DeadLetterStatus `db:"status" json:"status"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	ResolvedAt        *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
}

// NewDeadLetterMessage moves a failed outbox message into the dead-letter queue
func NewDeadLetterMessage(msg *OutboxMessage, errorMsg, reason string) *DeadLetterMessage {
	return &DeadLetterMessage{
		OriginalMessageID: msg.ID,
		AggregateType:     msg.AggregateType,
		AggregateID:       msg.AggregateID,
		EventType:         msg.EventType,
		Payload:           msg.Payload,
		ErrorMessage:      errorMsg,
		FailureReason:     reason,
		Status:            DeadLetterStatusPending,
		CreatedAt:         GetCurrentTime(),
	}
}

// ToOutboxMessage rebuilds a publishable message from a dead letter
func (d *DeadLetterMessage) ToOutboxMessage() *OutboxMessage {
	return &OutboxMessage{
		ID:            d.OriginalMessageID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       d.Payload,
		CreatedAt:     GetCurrentTime(),
		Status:        OutboxStatusPending,
	}
}
