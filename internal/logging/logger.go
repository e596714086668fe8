// Package logging writes structured JSON logs to .cdm/logs/cdm.log so
// operators can inspect a pipeline run after the process exits.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels accepted in configuration.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// FileName is the log file created inside the log directory.
const FileName = "cdm.log"

// Logger is a thin slog wrapper that carries persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer *fileCloser
}

type fileCloser struct {
	mu   sync.Mutex
	file *os.File
}

// New creates the log directory when needed and appends JSON lines to
// dir/cdm.log. An empty dir logs to stderr.
func New(dir string, level string) (*Logger, error) {
	if dir == "" {
		return NewWriter(os.Stderr, level), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l := NewWriter(f, level)
	l.closer = &fileCloser{file: f}
	return l, nil
}

// NewWriter builds a logger on an arbitrary writer.
func NewWriter(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{logger: slog.New(handler)}
}

// NopLogger discards every record.
func NopLogger() *Logger {
	return NewWriter(io.Discard, LevelError)
}

// ParseLevel converts a configured level; unknown values fall back to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
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

// ValidLevel reports whether level is one of the accepted names.
func ValidLevel(level string) bool {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// WithFeature tags every record with the feature id.
func (l *Logger) WithFeature(id string) *Logger {
	return l.With("feature_id", id)
}

// WithStage tags every record with the stage id.
func (l *Logger) WithStage(stage string) *Logger {
	return l.With("stage", stage)
}

// WithRole tags every record with the role id.
func (l *Logger) WithRole(role string) *Logger {
	return l.With("role", role)
}

// With returns a child logger with alternating key/value attributes.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return NopLogger()
	}
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), closer: l.closer}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), level, msg, args...)
}

// Close releases the log file if one was opened.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.closer.mu.Lock()
	defer l.closer.mu.Unlock()
	if l.closer.file == nil {
		return nil
	}
	err := l.closer.file.Close()
	l.closer.file = nil
	return err
}
