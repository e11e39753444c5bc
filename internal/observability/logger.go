package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeRun         EventType = "run"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypePresent     EventType = "present"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type     EventType
	RunID    string
	Identity string
	Step     int
	Data     map[string]any
	Err      error
}

// Config controls how the logger is built.
type Config struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json or console
	LLMLogPath string `yaml:"llm_log_path"`
	LLMLogMax  int64  `yaml:"llm_log_max_bytes"`
}

// Logger handles structured logging of engine events. LLM prompts and
// responses also go to a separate size-rotated JSONL file when configured.
type Logger struct {
	z   *zap.Logger
	llm *zap.Logger
}

func NewLogger(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	z, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	l := &Logger{z: z, llm: zap.NewNop()}
	if cfg.LLMLogPath != "" {
		fileEncoder := zap.NewProductionEncoderConfig()
		fileEncoder.TimeKey = "timestamp"
		fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
		sink := newRotatingFile(cfg.LLMLogPath, cfg.LLMLogMax)
		l.llm = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), sink, zapcore.DebugLevel))
	}
	return l, nil
}

// NewLoggerFromZap wraps an existing zap logger. LLM events are not
// mirrored to a file.
func NewLoggerFromZap(z *zap.Logger) *Logger {
	return &Logger{z: z, llm: zap.NewNop()}
}

func NewNopLogger() *Logger {
	return NewLoggerFromZap(zap.NewNop())
}

// Zap exposes the underlying logger for process-level messages.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

func (l *Logger) Sync() {
	_ = l.z.Sync()
	_ = l.llm.Sync()
}

// Log emits a structured event. Events carrying an error are logged at
// error level.
func (l *Logger) Log(evt Event) {
	fields := eventFields(evt)
	if evt.Err != nil {
		l.z.Error(string(evt.Type), fields...)
	} else {
		l.z.Info(string(evt.Type), fields...)
	}

	if evt.Type == EventTypeLLM {
		l.llm.Info(string(evt.Type), fields...)
	}
}

func eventFields(evt Event) []zap.Field {
	fields := []zap.Field{zap.String("type", string(evt.Type))}
	if evt.RunID != "" {
		fields = append(fields, zap.String("run_id", evt.RunID))
	}
	if evt.Identity != "" {
		fields = append(fields, zap.String("identity", evt.Identity))
	}
	if evt.Step > 0 {
		fields = append(fields, zap.Int("step", evt.Step))
	}
	if len(evt.Data) > 0 {
		fields = append(fields, zap.Any("data", evt.Data))
	}
	if evt.Err != nil {
		fields = append(fields, zap.Error(evt.Err))
	}
	return fields
}

// Helper methods for common events

func (l *Logger) LogPlan(runID, identity string, steps int, err error) {
	l.Log(Event{
		Type:     EventTypePlan,
		RunID:    runID,
		Identity: identity,
		Data:     map[string]any{"steps": steps},
		Err:      err,
	})
}

func (l *Logger) LogStep(runID string, step int, capability, action string, elapsed time.Duration, err error) {
	l.Log(Event{
		Type:  EventTypeStep,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"capability": capability,
			"action":     action,
			"elapsed_ms": elapsed.Milliseconds(),
		},
		Err: err,
	})
}

func (l *Logger) LogToolCall(runID string, step int, connector, action, args string) {
	l.Log(Event{
		Type:  EventTypeToolCall,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"connector": connector,
			"action":    action,
			"args":      args,
		},
	})
}

func (l *Logger) LogToolResult(runID string, step int, connector, kind string) {
	l.Log(Event{
		Type:  EventTypeToolResult,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"connector": connector,
			"kind":      kind,
		},
	})
}

func (l *Logger) LogPolicyCheck(runID string, step int, capability, effect, reason string) {
	l.Log(Event{
		Type:  EventTypePolicyCheck,
		RunID: runID,
		Step:  step,
		Data: map[string]any{
			"capability": capability,
			"effect":     effect,
			"reason":     reason,
		},
	})
}

func (l *Logger) LogRun(runID, identity, status string, elapsed time.Duration, err error) {
	l.Log(Event{
		Type:     EventTypeRun,
		RunID:    runID,
		Identity: identity,
		Data: map[string]any{
			"status":     status,
			"elapsed_ms": elapsed.Milliseconds(),
		},
		Err: err,
	})
}

func (l *Logger) LogLLM(runID, purpose string, prompt any, response string) {
	l.Log(Event{
		Type:  EventTypeLLM,
		RunID: runID,
		Data: map[string]any{
			"purpose":  purpose,
			"prompt":   prompt,
			"response": response,
		},
	})
}

// Warn logs a free-form warning with key/value context.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

// rotatingFile appends to a file and keeps a single ".old" generation once
// the file grows past maxSize.
type rotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
}

func newRotatingFile(path string, maxSize int64) *rotatingFile {
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	return &rotatingFile{path: path, maxSize: maxSize}
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return 0, fmt.Errorf("creating log directory: %w", err)
	}

	if info, err := os.Stat(r.path); err == nil && info.Size() > r.maxSize {
		oldPath := r.path + ".old"
		_ = os.Remove(oldPath)
		_ = os.Rename(r.path, oldPath)
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	return f.Write(p)
}

func (r *rotatingFile) Sync() error {
	return nil
}
