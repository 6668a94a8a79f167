package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a short prefixed identifier such as "so-1a2b3c4d"
func GenerateID(prefix string) string {
	id := uuid.New().String()

	return fmt.Sprintf("%s-%s", prefix, id[:8])
}

// GetCurrentTime returns the current time in UTC
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// DateOnly truncates t to midnight UTC; entry dates carry no time of day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
