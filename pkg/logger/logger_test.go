package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "json").With("component", "orders")

	l.Info("Order assigned", "orderID", "so-1", "technicianID", "usr-7")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Order assigned", entry["msg"])
	assert.Equal(t, "orders", entry["component"])
	assert.Equal(t, "so-1", entry["orderID"])
	assert.Equal(t, "usr-7", entry["technicianID"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "text")

	l.Debug("hidden")
	l.Info("hidden too")
	assert.Zero(t, buf.Len())

	l.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}
