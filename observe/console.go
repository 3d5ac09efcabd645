package observe

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// consoleLogger writes colored, human-readable lines through a tint
// handler. It shares level parsing and redaction with the JSON logger.
type consoleLogger struct {
	log *slog.Logger
}

// NewConsoleLogger creates a logger for interactive terminals.
func NewConsoleLogger(level string) Logger {
	return NewConsoleLoggerWithWriter(level, os.Stderr)
}

// NewConsoleLoggerWithWriter creates a console logger writing to w. Color is
// disabled unless w is os.Stderr or os.Stdout.
func NewConsoleLoggerWithWriter(level string, w io.Writer) Logger {
	h := tint.NewHandler(w, &tint.Options{
		Level:      slogLevel(ParseLogLevel(level)),
		TimeFormat: time.RFC3339,
		NoColor:    w != os.Stderr && w != os.Stdout,
	})
	return &consoleLogger{log: slog.New(h)}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, redact(f)))
	}
	return out
}

func (l *consoleLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log.InfoContext(ctx, msg, attrs(fields)...)
}

func (l *consoleLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log.WarnContext(ctx, msg, attrs(fields)...)
}

func (l *consoleLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log.ErrorContext(ctx, msg, attrs(fields)...)
}

func (l *consoleLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log.DebugContext(ctx, msg, attrs(fields)...)
}

func (l *consoleLogger) With(fields ...Field) Logger {
	return &consoleLogger{log: l.log.With(attrs(fields)...)}
}

func (l *consoleLogger) WithOp(meta OpMeta) Logger {
	args := []any{"storage.op", meta.Op, "storage.backend", meta.Backend}
	if meta.Kind != "" {
		args = append(args, "storage.backend.kind", meta.Kind)
	}
	return &consoleLogger{log: l.log.With(args...)}
}

var _ Logger = (*consoleLogger)(nil)
