package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// SlogOptions tunes the slog-backed logger.
type SlogOptions struct {
	// JSON switches the handler from text to JSON output.
	JSON bool
	// AddSource includes file:line in every record.
	AddSource bool
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	inner *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger creates a logger writing to w at the given minimum level.
// opts may be nil.
func NewSlogLogger(w io.Writer, level LogLevel, opts *SlogOptions) *SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	if opts == nil {
		opts = &SlogOptions{}
	}
	hopts := &slog.HandlerOptions{
		Level:     toSlogLevel(level),
		AddSource: opts.AddSource,
	}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return &SlogLogger{inner: slog.New(h)}
}

func toSlogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toAttrs(fields []Field) []any {
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	return attrs
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if !l.inner.Enabled(ctx, level) {
		return
	}
	l.inner.Log(ctx, level, msg, toAttrs(fields)...)
}

// Debug logs at debug level.
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }

// Info logs at info level.
func (l *SlogLogger) Info(msg string, fields ...Field) { l.log(slog.LevelInfo, msg, fields) }

// Warn logs at warn level.
func (l *SlogLogger) Warn(msg string, fields ...Field) { l.log(slog.LevelWarn, msg, fields) }

// Error logs at error level.
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

// With returns a child logger carrying fields.
func (l *SlogLogger) With(fields ...Field) Logger {
	return &SlogLogger{inner: l.inner.With(toAttrs(fields)...)}
}

// Module returns a child logger tagged with module=name.
func (l *SlogLogger) Module(name string) Logger {
	return l.With(String("module", name))
}

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// SetGlobal replaces the process-wide logger.
func SetGlobal(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the process-wide logger, creating an info-level stderr
// logger on first use.
func Global() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewSlogLogger(os.Stderr, LogLevelInfo, nil)
	}
	return globalLogger
}
