package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_LogStep(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggerFromZap(zap.New(core))

	l.LogStep("run-1", 2, "crm", "list", 15*time.Millisecond, nil)
	l.LogStep("run-1", 3, "email", "send", time.Millisecond, errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "step", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "run-1", ctx["run_id"])
	assert.EqualValues(t, 2, ctx["step"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestLogger_OmitsEmptyFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggerFromZap(zap.New(core))

	l.Log(Event{Type: EventTypePlan})

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "plan", ctx["type"])
	assert.NotContains(t, ctx, "run_id")
	assert.NotContains(t, ctx, "step")
	assert.NotContains(t, ctx, "data")
}

func TestRotatingFile_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "llm.jsonl")
	r := newRotatingFile(path, 10)

	_, err := r.Write([]byte(strings.Repeat("a", 20) + "\n"))
	require.NoError(t, err)
	_, err = r.Write([]byte("second\n"))
	require.NoError(t, err)

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Contains(t, string(old), "aaaa")

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(cur))
}

func TestNewLogger_WritesLLMEventsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	l, err := NewLogger(Config{Level: "error", LLMLogPath: path})
	require.NoError(t, err)

	l.LogLLM("run-9", "plan", "prompt text", `[{"step":1}]`)
	l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"run-9"`)
	assert.Contains(t, string(data), `"purpose":"plan"`)
}
