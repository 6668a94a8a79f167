package queue

import (
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/service-desk-api/internal/models"
)

func order(id string, status models.OrderStatus, entry time.Time, tech string) *models.ServiceOrder {
	o := &models.ServiceOrder{ID: id, Status: status, EntryDate: entry, CreatedAt: entry}
	if tech != "" {
		o.TechnicianID = &tech
	}
	return o
}

func ids(seq iter.Seq[*models.ServiceOrder]) []string {
	var out []string
	for o := range seq {
		out = append(out, o.ID)
	}
	return out
}

func TestOrderedOldestFirst(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }

	orders := []*models.ServiceOrder{
		order("so-c", models.OrderStatusOpen, day(3), ""),
		order("so-a", models.OrderStatusOpen, day(1), ""),
		order("so-x", models.OrderStatusInProgress, day(1), "usr-1"),
		order("so-b2", models.OrderStatusOpen, day(2), ""),
		order("so-b1", models.OrderStatusOpen, day(2), ""),
	}

	got := ids(Ordered(orders))
	assert.Equal(t, []string{"so-a", "so-b1", "so-b2", "so-c"}, got)

	// Restartable with no intervening mutation
	assert.Equal(t, got, ids(Ordered(orders)))
}

func TestOrderedSameInstantFollowsOrderNumber(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	numbered := func(id, number string) *models.ServiceOrder {
		o := order(id, models.OrderStatusOpen, at, "")
		o.OrderNumber = number
		return o
	}

	// ids sort against intake order and "OS-2026-1000" < "OS-2026-010" as text
	orders := []*models.ServiceOrder{
		numbered("so-a", "OS-2026-1000"),
		numbered("so-b", "OS-2026-010"),
		numbered("so-c", "OS-2026-002"),
		numbered("so-d", "OS-2025-999"),
	}

	assert.Equal(t, []string{"so-d", "so-c", "so-b", "so-a"}, ids(Ordered(orders)))
}

func TestNext(t *testing.T) {
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	head, ok := Next([]*models.ServiceOrder{
		order("so-2", models.OrderStatusOpen, day.AddDate(0, 0, 1), ""),
		order("so-1", models.OrderStatusOpen, day, ""),
	})
	require.True(t, ok)
	assert.Equal(t, "so-1", head.ID)

	_, ok = Next([]*models.ServiceOrder{order("so-3", models.OrderStatusClosed, day, "usr-1")})
	assert.False(t, ok)
}

func TestOrderedStopsEarly(t *testing.T) {
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	orders := []*models.ServiceOrder{
		order("so-1", models.OrderStatusOpen, day, ""),
		order("so-2", models.OrderStatusOpen, day.AddDate(0, 0, 1), ""),
	}

	count := 0
	for range Ordered(orders) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestForTechnician(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }

	orders := []*models.ServiceOrder{
		order("so-1", models.OrderStatusInProgress, day(1), "usr-1"),
		order("so-2", models.OrderStatusResolved, day(4), "usr-1"),
		order("so-3", models.OrderStatusInProgress, day(2), "usr-2"),
		order("so-4", models.OrderStatusOpen, day(3), ""),
	}

	assert.Equal(t, []string{"so-2", "so-1"}, ids(ForTechnician(orders, "usr-1")))
	assert.Empty(t, ids(ForTechnician(orders, "usr-9")))
}
