package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telltail/conmem/pkg/session"
)

func TestSetupWithOutput_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOutput(Config{Level: DebugLevel, Format: TextFormat}, &buf)

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")

	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "info message")
}

func TestSetupWithOutput_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOutput(Config{Level: InfoLevel, Format: JSONFormat}, &buf)

	logger.Info("structured", "count", 3)

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "structured", entry["msg"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestSetupWithOutput_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOutput(Config{Level: WarnLevel, Format: TextFormat}, &buf)

	logger.Info("should be filtered")
	logger.Warn("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestSetupWithOutput_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOutput(Config{Level: "bogus", Format: TextFormat}, &buf)

	logger.Debug("filtered at default level")
	logger.Info("visible at default level")

	output := buf.String()
	assert.NotContains(t, output, "filtered at default level")
	assert.Contains(t, output, "visible at default level")
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOutput(Config{Level: DebugLevel, Format: TextFormat}, &buf)

	ctx := WithLogger(context.Background(), logger)
	retrieved := FromContext(ctx)
	assert.Equal(t, logger, retrieved)

	// A context without a logger falls back to the default logger.
	assert.NotNil(t, FromContext(context.Background()))
}

func TestWithSessionContext(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOutput(Config{Level: DebugLevel, Format: TextFormat}, &buf)

	sessionLogger := WithSessionContext(logger, session.NewContext("session-42", "user-7"))
	sessionLogger.Info("hello")

	output := buf.String()
	assert.Contains(t, output, "session_id=session-42")
	assert.Contains(t, output, "user_id=user-7")
}
