// Package logging provides structured logging for lockguard.
package logging

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/exp/slog"
)

// Level represents a log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the handler encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
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

// Logger provides structured logging. Call-site fields are nested under
// "fields" in the output.
type Logger struct {
	mu     sync.Mutex
	level  *slog.LevelVar
	format Format
	output io.Writer
	fields map[string]any
	base   *slog.Logger
}

// NewLogger creates a new JSON logger writing to stderr.
func NewLogger(level Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	l := &Logger{
		level:  lv,
		format: FormatJSON,
		output: os.Stderr,
		fields: make(map[string]any),
	}
	l.rebuild()
	return l
}

// New creates a logger from config strings.
func New(level, format string) *Logger {
	l := NewLogger(ParseLevel(level))
	if Format(strings.ToLower(format)) == FormatText {
		l.SetFormat(FormatText)
	}
	return l
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	l := NewLogger(LevelError)
	l.SetOutput(io.Discard)
	return l
}

func (l *Logger) rebuild() {
	opts := &slog.HandlerOptions{Level: l.level, ReplaceAttr: replaceAttr}
	var h slog.Handler
	if l.format == FormatText {
		h = slog.NewTextHandler(l.output, opts)
	} else {
		h = slog.NewJSONHandler(l.output, opts)
	}
	l.base = slog.New(h)
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
		a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.999999999Z07:00"))
	case slog.LevelKey:
		a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// WithFields returns a new logger with additional fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		level:  l.level,
		format: l.format,
		output: l.output,
		fields: newFields,
		base:   l.base,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(slog.LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(slog.LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(slog.LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(slog.LevelError, msg, fields...)
}

// ErrorErr logs an error message with an error value.
func (l *Logger) ErrorErr(msg string, err error, fields ...map[string]any) {
	combined := map[string]any{"error": err.Error()}
	for _, f := range fields {
		for k, v := range f {
			combined[k] = v
		}
	}
	l.log(slog.LevelError, msg, combined)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level.slogLevel() >= l.level.Level()
}

func (l *Logger) log(level slog.Level, msg string, fields ...map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level.Level() {
		return
	}

	merged := make(map[string]any, len(l.fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	var attrs []slog.Attr
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		group := make([]slog.Attr, 0, len(keys))
		for _, k := range keys {
			group = append(group, slog.Any(k, merged[k]))
		}
		attrs = append(attrs, slog.Attr{Key: "fields", Value: slog.GroupValue(group...)})
	}

	l.base.LogAttrs(context.Background(), level, msg, attrs...)
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetFormat switches between JSON and text output.
func (l *Logger) SetFormat(f Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = f
	l.rebuild()
}

// SetLevel sets the log level.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

// Global logger instance
var global = NewLogger(LevelInfo)

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) {
	global = l
}

// Global returns the global logger.
func Global() *Logger {
	return global
}

// Debug logs to the global logger.
func Debug(msg string, fields ...map[string]any) {
	global.Debug(msg, fields...)
}

// Info logs to the global logger.
func Info(msg string, fields ...map[string]any) {
	global.Info(msg, fields...)
}

// Warn logs to the global logger.
func Warn(msg string, fields ...map[string]any) {
	global.Warn(msg, fields...)
}

// Error logs to the global logger.
func Error(msg string, fields ...map[string]any) {
	global.Error(msg, fields...)
}

// ErrorErr logs to the global logger with an error.
func ErrorErr(msg string, err error, fields ...map[string]any) {
	global.ErrorErr(msg, err, fields...)
}

// WithFields returns a new logger from global with additional fields.
func WithFields(fields map[string]any) *Logger {
	return global.WithFields(fields)
}
