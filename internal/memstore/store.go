// Package memstore keeps the whole service desk in process memory. A single
// mutex serializes transactions; each one works on a cloned state that
// replaces the live state only when the callback returns nil.
package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/service"
)

type state struct {
	orders      map[string]*models.ServiceOrder
	clients     map[string]models.Client
	technicians map[string]models.Technician
	products    map[string]models.Product
	services    map[string]models.Service
	counters    map[int]int64

	outbox      map[int64]*models.OutboxMessage
	deadLetters map[int64]*models.DeadLetterMessage
	outboxSeq   int64
	deadSeq     int64
}

func newState() *state {
	return &state{
		orders:      make(map[string]*models.ServiceOrder),
		clients:     make(map[string]models.Client),
		technicians: make(map[string]models.Technician),
		products:    make(map[string]models.Product),
		services:    make(map[string]models.Service),
		counters:    make(map[int]int64),
		outbox:      make(map[int64]*models.OutboxMessage),
		deadLetters: make(map[int64]*models.DeadLetterMessage),
	}
}

func (st *state) clone() *state {
	c := &state{
		orders:      make(map[string]*models.ServiceOrder, len(st.orders)),
		clients:     maps.Clone(st.clients),
		technicians: maps.Clone(st.technicians),
		products:    maps.Clone(st.products),
		services:    maps.Clone(st.services),
		counters:    maps.Clone(st.counters),
		outbox:      make(map[int64]*models.OutboxMessage, len(st.outbox)),
		deadLetters: make(map[int64]*models.DeadLetterMessage, len(st.deadLetters)),
		outboxSeq:   st.outboxSeq,
		deadSeq:     st.deadSeq,
	}

	for id, o := range st.orders {
		c.orders[id] = o.Clone()
	}
	for id, m := range st.outbox {
		cp := *m
		c.outbox[id] = &cp
	}
	for id, d := range st.deadLetters {
		cp := *d
		c.deadLetters[id] = &cp
	}

	return c
}

// Store is an in-memory implementation of every persistence port
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]error
}

// New creates an empty Store
func New() *Store {
	return &Store{
		state:  newState(),
		faults: make(map[string]error),
	}
}

// FailNext makes the next call to the named transactional write return err.
// Used by tests to check that a failing step rolls back the whole unit.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

// WithTx runs fn against a private copy of the state and publishes the copy
// only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s, state: s.state.clone()}

	if err := fn(ctx, t); err != nil {
		return err
	}

	s.state = t.state
	return nil
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.state)
}

// GetOrder returns a copy of the order with its line items
func (s *Store) GetOrder(ctx context.Context, id string) (*models.ServiceOrder, error) {
	var (
		order *models.ServiceOrder
		err   error
	)

	s.read(func(st *state) {
		o, ok := st.orders[id]
		if !ok {
			err = orderNotFound(id)
			return
		}
		order = o.Clone()
	})

	return order, err
}

// ListOrdersByStatus returns copies of every order in status
func (s *Store) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]*models.ServiceOrder, error) {
	out := make([]*models.ServiceOrder, 0)

	s.read(func(st *state) {
		for _, o := range st.orders {
			if o.Status == status {
				out = append(out, o.Clone())
			}
		}
	})

	return out, nil
}

// ListOrdersByTechnician returns copies of every order claimed by technicianID
func (s *Store) ListOrdersByTechnician(ctx context.Context, technicianID string) ([]*models.ServiceOrder, error) {
	out := make([]*models.ServiceOrder, 0)

	s.read(func(st *state) {
		for _, o := range st.orders {
			if o.IsAssigned() && *o.TechnicianID == technicianID {
				out = append(out, o.Clone())
			}
		}
	})

	return out, nil
}

// CountOrdersByStatus tallies orders per status
func (s *Store) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	counts := make(map[models.OrderStatus]int)

	s.read(func(st *state) {
		for _, o := range st.orders {
			counts[o.Status]++
		}
	})

	return counts, nil
}

var _ service.Store = (*Store)(nil)
