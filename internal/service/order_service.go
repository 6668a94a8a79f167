package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/inventory"
	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/numbering"
	"github.com/vaidashi/service-desk-api/internal/queue"
	apperrors "github.com/vaidashi/service-desk-api/pkg/errors"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// CreateOrderInput is what intake captures for a new ticket
type CreateOrderInput struct {
	ClientID         string    `json:"client_id" validate:"required"`
	EntryDate        time.Time `json:"entry_date"`
	DiagnosisInitial string    `json:"diagnosis_initial"`
	InitialPhotos    []string  `json:"initial_photos" validate:"dive,required"`
	WarrantyDays     int       `json:"warranty_days" validate:"gte=0"`
}

// Option configures an OrderService
type Option func(*OrderService)

// WithSequencer draws order numbers from seq instead of the store's own counter
func WithSequencer(seq numbering.Sequencer) Option {
	return func(s *OrderService) {
		s.sequencer = seq
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		s.now = now
	}
}

// OrderService runs the service order lifecycle
type OrderService struct {
	store     Store
	lookup    *catalog.Lookup
	ledger    *inventory.Ledger
	sequencer numbering.Sequencer
	validate  *validator.Validate
	now       func() time.Time
	logger    logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	store Store,
	directory catalog.Directory,
	logger logger.Logger,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		store:    store,
		lookup:   catalog.NewLookup(directory),
		ledger:   inventory.NewLedger(logger),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      models.GetCurrentTime,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateOrder opens a ticket for a client and records the intake event
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.ServiceOrder, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)

	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	client, err := s.lookup.Client(ctx, in.ClientID)

	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	year := now.Year()

	// An external sequencer is consulted outside the transaction; a gap left
	// by a failed create is acceptable, a duplicate is not.
	var seq int64
	if s.sequencer != nil {
		seq, err = s.sequencer.Next(ctx, year)

		if err != nil {
			s.logger.Error("Failed to draw order number", "year", year, "error", err)
			return nil, fmt.Errorf("failed to draw order number: %w", err)
		}
	}

	var order *models.ServiceOrder

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if s.sequencer == nil {
			n, err := tx.NextOrderSequence(ctx, year)

			if err != nil {
				return err
			}
			seq = n
		}

		order = models.NewServiceOrder(models.NewServiceOrderParams{
			Client:           client,
			OrderNumber:      numbering.Format(year, seq),
			EntryDate:        in.EntryDate,
			DiagnosisInitial: in.DiagnosisInitial,
			InitialPhotos:    in.InitialPhotos,
			WarrantyDays:     in.WarrantyDays,
			CreatedAt:        now,
		})

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		msg, err := models.NewOrderCreatedEvent(order)
		return s.emit(ctx, tx, msg, err)
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("Service order created",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"clientID", order.ClientID)

	return order, nil
}

// AssignOrder lets a technician claim an open ticket, moving it to InProgress.
// Of several concurrent claims on the same order exactly one wins.
func (s *OrderService) AssignOrder(ctx context.Context, orderID, technicianID string) (*models.ServiceOrder, error) {
	tech, err := s.lookup.Technician(ctx, technicianID)

	if err != nil {
		return nil, err
	}

	var order *models.ServiceOrder

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)

		if err != nil {
			return err
		}

		if current.Status != models.OrderStatusOpen {
			return alreadyClaimed(current)
		}

		at := s.now().UTC()
		ok, err := tx.AssignIfOpen(ctx, current.ID, tech, at)

		if err != nil {
			return err
		}

		// Another claim committed between our read and the guarded update
		if !ok {
			return alreadyClaimed(current)
		}

		current.Status = models.OrderStatusInProgress
		current.TechnicianID = &tech.ID
		current.TechnicianName = &tech.Name
		current.UpdatedAt = at
		order = current

		msg, err := models.NewOrderAssignedEvent(order)
		return s.emit(ctx, tx, msg, err)
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("Service order assigned",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"technicianID", tech.ID)

	return order, nil
}

// SetOrderStatus applies a technician's free-form status change to a claimed order.
// Setting the status the order already has succeeds without writing anything.
func (s *OrderService) SetOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.ServiceOrder, error) {
	if !status.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown order status %q", status))
	}

	var (
		order     *models.ServiceOrder
		oldStatus models.OrderStatus
		changed   bool
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)

		if err != nil {
			return err
		}

		if err := models.CanSetStatus(current.Status, status); err != nil {
			return withOrder(err, current)
		}

		order = current
		oldStatus = current.Status

		if current.Status == status {
			return nil
		}

		at := s.now().UTC()
		current.Status = status
		current.UpdatedAt = at

		if status == models.OrderStatusClosed {
			current.Close(at)
		}

		ok, err := tx.UpdateStatusIf(ctx, current, oldStatus)

		if err != nil {
			return err
		}

		if !ok {
			return apperrors.NewInvalidTransitionError("order status changed concurrently").
				WithContext("order_id", current.ID)
		}

		changed = true
		msg, err := models.NewOrderStatusChangedEvent(current, oldStatus)
		return s.emit(ctx, tx, msg, err)
	})

	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("Service order status updated",
			"orderID", order.ID,
			"orderNumber", order.OrderNumber,
			"oldStatus", oldStatus,
			"newStatus", order.Status)
	}

	return order, nil
}

// AttachProduct consumes qty units of a product into the order. Stock and
// line items are written together; on any failure neither changes.
func (s *OrderService) AttachProduct(ctx context.Context, orderID, productID string, qty int) (*models.ServiceOrder, error) {
	if qty <= 0 {
		return nil, apperrors.NewValidationError("qty must be greater than zero").
			WithContext("qty", qty)
	}
	if strings.TrimSpace(productID) == "" {
		return nil, apperrors.NewValidationError("product id is required")
	}

	var (
		order *models.ServiceOrder
		item  models.LineItem
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)

		if err != nil {
			return err
		}

		if err := requireEditable(current); err != nil {
			return err
		}

		item, err = s.ledger.ReserveAndAttach(ctx, tx, current.ID, productID, qty)

		if err != nil {
			return err
		}

		current.Products = append(current.Products, item)
		order = current

		msg, err := models.NewProductAttachedEvent(order, item)
		return s.emit(ctx, tx, msg, err)
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("Product attached to service order",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"productID", item.ProductID,
		"qty", item.Qty)

	return order, nil
}

// AttachService adds a labor charge to the order at the service's current price
func (s *OrderService) AttachService(ctx context.Context, orderID, serviceID string) (*models.ServiceOrder, error) {
	svc, err := s.lookup.Service(ctx, serviceID)

	if err != nil {
		return nil, err
	}

	var (
		order  *models.ServiceOrder
		charge models.ServiceCharge
	)

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)

		if err != nil {
			return err
		}

		if err := requireEditable(current); err != nil {
			return err
		}

		charge = models.NewServiceCharge(current.ID, svc)

		if err := tx.InsertServiceCharge(ctx, charge); err != nil {
			return err
		}

		current.Services = append(current.Services, charge)
		order = current

		msg, err := models.NewServiceAttachedEvent(order, charge)
		return s.emit(ctx, tx, msg, err)
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("Service attached to service order",
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"serviceID", charge.ServiceID,
		"price", charge.Price)

	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.ServiceOrder, error) {
	return s.store.GetOrder(ctx, id)
}

// ListOpenOrdersOrdered returns the unclaimed orders, oldest entry first
func (s *OrderService) ListOpenOrdersOrdered(ctx context.Context) ([]*models.ServiceOrder, error) {
	open, err := s.store.ListOrdersByStatus(ctx, models.OrderStatusOpen)

	if err != nil {
		return nil, err
	}

	return collect(queue.Ordered(open)), nil
}

// NextOpenOrder returns the ticket a technician should take next
func (s *OrderService) NextOpenOrder(ctx context.Context) (*models.ServiceOrder, error) {
	open, err := s.store.ListOrdersByStatus(ctx, models.OrderStatusOpen)

	if err != nil {
		return nil, err
	}

	next, ok := queue.Next(open)

	if !ok {
		return nil, apperrors.NewNotFoundError("no open service orders")
	}

	return next, nil
}

// ListOrdersForTechnician returns the orders a technician has claimed, most recent first
func (s *OrderService) ListOrdersForTechnician(ctx context.Context, technicianID string) ([]*models.ServiceOrder, error) {
	if strings.TrimSpace(technicianID) == "" {
		return nil, apperrors.NewValidationError("technician id is required")
	}

	orders, err := s.store.ListOrdersByTechnician(ctx, technicianID)

	if err != nil {
		return nil, err
	}

	return collect(queue.ForTechnician(orders, technicianID)), nil
}

// Dashboard summarizes the desk: orders per status and parts to restock
type Dashboard struct {
	OpenOrders     int                        `json:"open_orders"`
	InFlightOrders int                        `json:"in_flight_orders"`
	ByStatus       map[models.OrderStatus]int `json:"by_status"`
	StockAlerts    []models.Product           `json:"stock_alerts"`
	StockValue     float64                    `json:"stock_value"`
}

// Dashboard computes the desk summary
func (s *OrderService) Dashboard(ctx context.Context) (*Dashboard, error) {
	counts, err := s.store.CountOrdersByStatus(ctx)

	if err != nil {
		return nil, err
	}

	products, err := s.lookup.Products(ctx)

	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		ByStatus:    make(map[models.OrderStatus]int, len(models.AllOrderStatuses)),
		StockAlerts: inventory.LowStock(products),
	}

	for _, st := range models.AllOrderStatuses {
		n := counts[st]
		d.ByStatus[st] = n

		switch st {
		case models.OrderStatusOpen:
			d.OpenOrders = n
		case models.OrderStatusClosed:
		default:
			d.InFlightOrders += n
		}
	}

	for _, p := range products {
		d.StockValue += float64(p.Qty) * p.Cost
	}

	return d, nil
}

func (s *OrderService) emit(ctx context.Context, tx Tx, msg *models.OutboxMessage, err error) error {
	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err)
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	return tx.InsertOutboxMessage(ctx, msg)
}

func (s *OrderService) validateInput(in CreateOrderInput) error {
	err := s.validate.Struct(in)

	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(err.Error())
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}

	return apperrors.NewValidationError("invalid order: " + strings.Join(fields, ", "))
}

func requireEditable(order *models.ServiceOrder) error {
	if order.Status.IsTerminal() {
		return apperrors.NewInvalidTransitionError(
			fmt.Sprintf("order %s is %s and can no longer change", order.OrderNumber, order.Status),
		).WithContext("order_id", order.ID)
	}
	return nil
}

func alreadyClaimed(order *models.ServiceOrder) error {
	return apperrors.NewInvalidTransitionError(
		fmt.Sprintf("order %s is %s and cannot be assigned", order.OrderNumber, order.Status),
	).WithContext("order_id", order.ID).
		WithContext("status", order.Status)
}

func withOrder(err error, order *models.ServiceOrder) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.WithContext("order_id", order.ID)
	}
	return err
}

func collect(seq iter.Seq[*models.ServiceOrder]) []*models.ServiceOrder {
	out := slices.Collect(seq)
	if out == nil {
		out = []*models.ServiceOrder{}
	}
	return out
}
