package numbering

import (
	"context"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "OS-2024-001", Format(2024, 1))
	assert.Equal(t, "OS-2024-042", Format(2024, 42))
	assert.Equal(t, "OS-2024-1000", Format(2024, 1000))
}

func TestNextOrderNumber(t *testing.T) {
	assert.Equal(t, "OS-2026-001", NextOrderNumber(2026, 0))
	assert.Equal(t, "OS-2026-003", NextOrderNumber(2026, 2))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("OS-2026-007"))
	assert.True(t, Valid("OS-2026-1234"))
	assert.False(t, Valid("OS-26-007"))
	assert.False(t, Valid("OS-2026-7"))
}

func TestParse(t *testing.T) {
	year, seq, ok := Parse("OS-2026-010")
	require.True(t, ok)
	assert.Equal(t, 2026, year)
	assert.Equal(t, int64(10), seq)

	_, seq, ok = Parse(Format(2025, 1234))
	require.True(t, ok)
	assert.Equal(t, int64(1234), seq)

	_, _, ok = Parse("OS-2026-7")
	assert.False(t, ok)
}

func newRedisSequencer(t *testing.T) *RedisSequencer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSequencer(client, "")
}

func TestRedisSequencerPerYear(t *testing.T) {
	seq := newRedisSequencer(t)
	ctx := context.Background()

	first, err := seq.Next(ctx, 2025)
	require.NoError(t, err)
	second, err := seq.Next(ctx, 2025)
	require.NoError(t, err)
	otherYear, err := seq.Next(ctx, 2026)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, int64(1), otherYear)
}

func TestRedisSequencerConcurrentUnique(t *testing.T) {
	seq := newRedisSequencer(t)
	ctx := context.Background()

	const workers = 20
	results := make(chan int64, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := seq.Next(ctx, 2026)
			if err == nil {
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for n := range results {
		assert.False(t, seen[n], "duplicate sequence %d", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}
