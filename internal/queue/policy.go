// Package queue defines the "next ticket to take" view over open orders.
// Nothing is persisted: the view is recomputed from the order set on every
// query because orders are created and claimed concurrently.
package queue

import (
	"cmp"
	"iter"
	"slices"

	"github.com/vaidashi/service-desk-api/internal/models"
	"github.com/vaidashi/service-desk-api/internal/numbering"
)

// Ordered yields the open orders of orders, oldest entry date first. Ties
// fall back to creation time, then to the order number's per-year sequence
// (numerically, so OS-2026-010 follows OS-2026-002) and finally to id.
// The returned sequence is lazy and can be ranged over any number of times.
func Ordered(orders []*models.ServiceOrder) iter.Seq[*models.ServiceOrder] {
	return func(yield func(*models.ServiceOrder) bool) {
		open := make([]*models.ServiceOrder, 0, len(orders))
		for _, o := range orders {
			if o.Status == models.OrderStatusOpen {
				open = append(open, o)
			}
		}

		slices.SortStableFunc(open, compareOpen)

		for _, o := range open {
			if !yield(o) {
				return
			}
		}
	}
}

// Next returns the head of the open queue, or false when nothing is waiting
func Next(orders []*models.ServiceOrder) (*models.ServiceOrder, bool) {
	for o := range Ordered(orders) {
		return o, true
	}
	return nil, false
}

// ForTechnician yields the claimed orders of technicianID, most recent entry first
func ForTechnician(orders []*models.ServiceOrder, technicianID string) iter.Seq[*models.ServiceOrder] {
	return func(yield func(*models.ServiceOrder) bool) {
		mine := make([]*models.ServiceOrder, 0)
		for _, o := range orders {
			if o.Status != models.OrderStatusOpen && o.IsAssigned() && *o.TechnicianID == technicianID {
				mine = append(mine, o)
			}
		}

		slices.SortStableFunc(mine, func(a, b *models.ServiceOrder) int {
			return compareOpen(b, a)
		})

		for _, o := range mine {
			if !yield(o) {
				return
			}
		}
	}
}

func compareOpen(a, b *models.ServiceOrder) int {
	if c := a.EntryDate.Compare(b.EntryDate); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if c := compareNumbers(a.OrderNumber, b.OrderNumber); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// compareNumbers is 0 unless both numbers parse
func compareNumbers(a, b string) int {
	ay, as, aok := numbering.Parse(a)
	by, bs, bok := numbering.Parse(b)
	if !aok || !bok {
		return 0
	}
	if c := cmp.Compare(ay, by); c != 0 {
		return c
	}
	return cmp.Compare(as, bs)
}
