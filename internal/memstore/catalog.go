package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/vaidashi/service-desk-api/internal/catalog"
	"github.com/vaidashi/service-desk-api/internal/models"
)

func (s *Store) GetClient(ctx context.Context, id string) (models.Client, error) {
	var (
		c  models.Client
		ok bool
	)
	s.read(func(st *state) { c, ok = st.clients[id] })

	if !ok {
		return models.Client{}, catalog.NotFound("client", id)
	}
	return c, nil
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	var (
		t  models.Technician
		ok bool
	)
	s.read(func(st *state) { t, ok = st.technicians[id] })

	if !ok {
		return models.Technician{}, catalog.NotFound("technician", id)
	}
	return t, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var (
		p  models.Product
		ok bool
	)
	s.read(func(st *state) { p, ok = st.products[id] })

	if !ok {
		return models.Product{}, catalog.NotFound("product", id)
	}
	return p, nil
}

func (s *Store) GetService(ctx context.Context, id string) (models.Service, error) {
	var (
		svc models.Service
		ok  bool
	)
	s.read(func(st *state) { svc, ok = st.services[id] })

	if !ok {
		return models.Service{}, catalog.NotFound("service", id)
	}
	return svc, nil
}

// ListProducts returns every product ordered by reference
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	out := make([]models.Product, 0)

	s.read(func(st *state) {
		for _, p := range st.products {
			out = append(out, p)
		}
	})

	slices.SortFunc(out, func(a, b models.Product) int {
		return cmp.Compare(a.Reference, b.Reference)
	})
	return out, nil
}

func (s *Store) UpsertClient(ctx context.Context, c models.Client) error {
	s.write(func(st *state) {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = models.GetCurrentTime()
		}
		st.clients[c.ID] = c
	})
	return nil
}

func (s *Store) UpsertTechnician(ctx context.Context, t models.Technician) error {
	s.write(func(st *state) {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = models.GetCurrentTime()
		}
		st.technicians[t.ID] = t
	})
	return nil
}

func (s *Store) UpsertProduct(ctx context.Context, p models.Product) error {
	s.write(func(st *state) {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = models.GetCurrentTime()
		}
		st.products[p.ID] = p
	})
	return nil
}

func (s *Store) UpsertService(ctx context.Context, svc models.Service) error {
	s.write(func(st *state) {
		if svc.CreatedAt.IsZero() {
			svc.CreatedAt = models.GetCurrentTime()
		}
		st.services[svc.ID] = svc
	})
	return nil
}

func (s *Store) write(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.state)
}

var (
	_ catalog.Directory = (*Store)(nil)
	_ catalog.Writer    = (*Store)(nil)
)
