package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestInitWithFile(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)
	logPath := filepath.Join(t.TempDir(), "agentrun.log")

	require.NoError(t, Init(LogConfig{Level: "debug", Format: "json", File: logPath}))
	Info().Str("test", "value").Msg("test message")
	require.NoError(t, Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestInitWithInvalidFile(t *testing.T) {
	defer func() { _ = Close() }()
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	err := Init(LogConfig{Level: "info", Format: "json", File: "/nonexistent/directory/test.log"})
	assert.Error(t, err)
}

func TestForAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		mu.Lock()
		initialized = false
		mu.Unlock()
	}()

	For("runctl").Warn().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "runctl", entry["component"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer func() {
		mu.Lock()
		initialized = false
		mu.Unlock()
	}()

	With(map[string]any{"service": "test"}).Warn().Msg("x")
	assert.True(t, strings.Contains(buf.String(), `"service":"test"`))
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	require.NotNil(t, l)
	l.Error().Msg("dropped")
}

func TestGetWithoutInit(t *testing.T) {
	mu.Lock()
	initialized = false
	mu.Unlock()

	assert.NotNil(t, Get())
}
