// Package logging provides the structured logger used across the call
// pipeline.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/hanpama/graphcall/internal/reqid"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - With returns a logger that adds fields to every entry; it may share state
// with the receiver.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Err builds the conventional "error" field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Level represents a logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel parses a string log level. Unknown strings yield LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// jsonLogger writes one JSON object per entry.
type jsonLogger struct {
	level Level
	mu    *sync.Mutex
	w     io.Writer
	base  []Field
	now   func() time.Time
}

// NewJSON returns a Logger writing JSON lines to w at or above level.
func NewJSON(w io.Writer, level Level) Logger {
	return &jsonLogger{level: level, mu: &sync.Mutex{}, w: w, now: time.Now}
}

func (l *jsonLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, fields)
}

func (l *jsonLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, fields)
}

func (l *jsonLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, fields)
}

func (l *jsonLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *jsonLogger) With(fields ...Field) Logger {
	cp := *l
	cp.base = append(append([]Field(nil), l.base...), fields...)
	return &cp
}

func (l *jsonLogger) log(ctx context.Context, level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	entry := make(map[string]any, len(l.base)+len(fields)+4)
	entry["timestamp"] = l.now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	if ctx != nil {
		if id, ok := reqid.FromContext(ctx); ok {
			entry["call_id"] = id
		}
	}
	for _, f := range l.base {
		entry[f.Key] = redact(f)
	}
	for _, f := range fields {
		entry[f.Key] = redact(f)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(data, '\n'))
}

var redactedKeys = map[string]bool{
	"variables":     true,
	"authorization": true,
	"Authorization": true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apiKey":        true,
}

func redact(f Field) any {
	if redactedKeys[f.Key] {
		return "[REDACTED]"
	}
	return f.Value
}

type noopLogger struct{}

// Noop returns a Logger that discards everything.
func Noop() Logger { return noopLogger{} }

func (noopLogger) Debug(context.Context, string, ...Field) {}
func (noopLogger) Info(context.Context, string, ...Field)  {}
func (noopLogger) Warn(context.Context, string, ...Field)  {}
func (noopLogger) Error(context.Context, string, ...Field) {}
func (n noopLogger) With(...Field) Logger                  { return n }

// logrLogger adapts a logr.Logger. Debug maps to V(1); Warn is logged at V(0)
// with a level key.
type logrLogger struct {
	l logr.Logger
}

// FromLogr adapts l to Logger.
func FromLogr(l logr.Logger) Logger { return logrLogger{l: l} }

func (a logrLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	a.l.V(1).Info(msg, kv(ctx, fields)...)
}

func (a logrLogger) Info(ctx context.Context, msg string, fields ...Field) {
	a.l.Info(msg, kv(ctx, fields)...)
}

func (a logrLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	a.l.Info(msg, append(kv(ctx, fields), "level", "warn")...)
}

func (a logrLogger) Error(ctx context.Context, msg string, fields ...Field) {
	a.l.Error(nil, msg, kv(ctx, fields)...)
}

func (a logrLogger) With(fields ...Field) Logger {
	return logrLogger{l: a.l.WithValues(kv(nil, fields)...)}
}

func kv(ctx context.Context, fields []Field) []any {
	out := make([]any, 0, 2*len(fields)+2)
	if ctx != nil {
		if id, ok := reqid.FromContext(ctx); ok {
			out = append(out, "call_id", id)
		}
	}
	for _, f := range fields {
		out = append(out, f.Key, redact(f))
	}
	return out
}
