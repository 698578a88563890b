package telemetry_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valinor-ai/rolegate/internal/platform/telemetry"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.Component(telemetry.NewLogger("info", "json", &buf), "staff")

	logger.Info("role created", "role_id", "r-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "role created", entry["msg"])
	assert.Equal(t, "r-1", entry["role_id"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "rolegate", entry["service"])
	assert.Equal(t, "staff", entry["component"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	telemetry.NewLogger("debug", "TEXT", &buf).Debug("resolving", "employee_id", "emp-1")

	assert.Contains(t, buf.String(), "msg=resolving")
	assert.Contains(t, buf.String(), "employee_id=emp-1")
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger("warn", "json", &buf)

	logger.Info("should not appear")

	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, telemetry.ParseLevel(in), in)
	}
}
