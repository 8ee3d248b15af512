package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		minLevel  Level
		logLevel  Level
		shouldLog bool
	}{
		{"debug allowed at debug", LevelDebug, LevelDebug, true},
		{"info allowed at debug", LevelDebug, LevelInfo, true},
		{"error allowed at debug", LevelDebug, LevelError, true},
		{"debug blocked at info", LevelInfo, LevelDebug, false},
		{"info allowed at info", LevelInfo, LevelInfo, true},
		{"debug blocked at warn", LevelWarn, LevelDebug, false},
		{"info blocked at warn", LevelWarn, LevelInfo, false},
		{"warn allowed at warn", LevelWarn, LevelWarn, true},
		{"warn blocked at error", LevelError, LevelWarn, false},
		{"error allowed at error", LevelError, LevelError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New()
			logger.SetLevel(tt.minLevel)
			logger.SetOutput(&buf)

			switch tt.logLevel {
			case LevelDebug:
				logger.Debug("test message")
			case LevelInfo:
				logger.Info("test message")
			case LevelWarn:
				logger.Warn("test message")
			case LevelError:
				logger.Error("test message")
			}

			if tt.shouldLog {
				assert.Contains(t, buf.String(), "test message")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(&buf)

	childLogger := logger.With("task", "abc123")
	childLogger.Warn("something happened")

	output := buf.String()
	assert.Contains(t, output, "WARN")
	assert.Contains(t, output, "something happened")
	assert.Contains(t, output, `"task"`)
	assert.Contains(t, output, `"abc123"`)
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(&buf)

	childLogger := logger.WithFields(map[string]interface{}{
		"task":   "abc123",
		"target": "ws://localhost/progress",
	})
	childLogger.Error("error occurred")

	output := buf.String()
	assert.Contains(t, output, "ERROR")
	assert.Contains(t, output, "abc123")
	assert.Contains(t, output, "ws://localhost/progress")
}

func TestLoggerInlineKeyVals(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(&buf)

	logger.Warn("heartbeat failed", "error", errors.New("timeout"), "code", 1006)

	output := buf.String()
	assert.Contains(t, output, "heartbeat failed")
	assert.Contains(t, output, "timeout")
	assert.Contains(t, output, "1006")
}

func TestLoggerChildSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	child := logger.With("task", "42")
	logger.SetLevel(LevelDebug)
	child.Debug("visible after parent level change")

	assert.Contains(t, buf.String(), "visible after parent level change")
}

func TestLoggerChildFollowsParentOutput(t *testing.T) {
	var first, second bytes.Buffer
	logger := New()
	logger.SetOutput(&first)

	child := logger.With("task", "42")
	logger.SetOutput(&second)
	child.Warn("after redirect")

	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), "after redirect")
	assert.Contains(t, second.String(), "42")
}

func TestLoggerWithFieldsSortedKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	fields := map[string]interface{}{"task": "42", "attempt": 3, "ip": "10.0.0.1", "mode": "legacy"}
	for i := 0; i < 5; i++ {
		logger.WithFields(fields).Warn("line")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		attempt := strings.Index(line, `"attempt"`)
		ip := strings.Index(line, `"ip"`)
		mode := strings.Index(line, `"mode"`)
		task := strings.Index(line, `"task"`)
		require.True(t, attempt >= 0 && ip >= 0 && mode >= 0 && task >= 0, line)
		assert.True(t, attempt < ip && ip < mode && mode < task, line)
	}
}

func TestLoggerOriginalUnmodified(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetLevel(LevelDebug)
	logger.SetOutput(&buf)

	_ = logger.With("task", "abc123")
	logger.Info("original logger")

	assert.NotContains(t, buf.String(), "abc123")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		level Level
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warn ", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"verbose", LevelWarn, false},
		{"", LevelWarn, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := ParseLevel(tt.input)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)

	// Debug should be filtered out
	Debug("debug message")
	assert.Empty(t, buf.String())

	Warn("warn message")
	assert.Contains(t, buf.String(), "warn message")

	buf.Reset()

	childLogger := With("component", "test")
	childLogger.Error("error message")
	assert.Contains(t, buf.String(), "component")
	assert.Same(t, defaultLogger, Default())
}
