package store

import (
	"io"
	"log/slog"
)

// Logger fans log lines out to slog and to the logs table. The store side is
// best-effort: a nil or broken store only loses rows, never log output.
type Logger struct {
	agent string
	slog  *slog.Logger
	store *Store
}

// NewLogger creates a Logger for the named agent. store may be nil.
func NewLogger(agent string, sl *slog.Logger, st *Store) *Logger {
	if sl == nil {
		sl = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Logger{agent: agent, slog: sl.With("agent", agent), store: st}
}

// Slog exposes the underlying slog logger for packages that only need one.
func (l *Logger) Slog() *slog.Logger { return l.slog }

func (l *Logger) record(level, msg string, args []any) {
	meta := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		meta[key] = args[i+1]
	}
	l.store.RecordLog(l.agent, level, msg, meta)
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
	l.record("debug", msg, args)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
	l.record("info", msg, args)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
	l.record("warn", msg, args)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
	l.record("error", msg, args)
}
