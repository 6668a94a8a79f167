// Package numbering assigns human-readable service order numbers of the
// form OS-<year>-<seq>.
//
// Computing seq as "existing orders + 1" races under concurrent intake, so
// production paths draw seq from a Sequencer that serializes increments per
// year. NextOrderNumber is kept for callers that already hold a count.
package numbering

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

var orderNumberPattern = regexp.MustCompile(`^OS-(\d{4})-(\d{3,})$`)

// Sequencer hands out strictly increasing per-year sequence values starting at 1
type Sequencer interface {
	Next(ctx context.Context, year int) (int64, error)
}

// Format renders an order number; seq is zero-padded to three digits.
func Format(year int, seq int64) string {
	return fmt.Sprintf("OS-%d-%03d", year, seq)
}

// NextOrderNumber formats the number following existingCountForYear orders.
func NextOrderNumber(year int, existingCountForYear int) string {
	return Format(year, int64(existingCountForYear)+1)
}

// Valid reports whether s looks like an order number
func Valid(s string) bool {
	return orderNumberPattern.MatchString(s)
}

// Parse splits an order number into its year and sequence
func Parse(s string) (year int, seq int64, ok bool) {
	m := orderNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}

	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}

	return year, seq, true
}
