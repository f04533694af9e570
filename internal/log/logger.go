package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry with a component name and key/value helpers
type Logger struct {
	entry     *logrus.Entry
	component string
}

// Config holds logger configuration
type Config struct {
	Level     string
	Format    string // "text" or "json"
	Component string
	Output    io.Writer
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "text",
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		base.Warnf("Invalid log level '%s', using 'info'", config.Level)
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(config.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if config.Output != nil {
		base.SetOutput(config.Output)
	}

	component := config.Component
	if component == "" {
		component = ComponentApp
	}

	return &Logger{
		entry:     logrus.NewEntry(base).WithField(FieldComponent, component),
		component: component,
	}
}

// FromLogrus wraps an existing logrus logger
func FromLogrus(base *logrus.Logger, component string) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{
		entry:     logrus.NewEntry(base).WithField(FieldComponent, component),
		component: component,
	}
}

// With returns a new logger with the given key/value pairs attached
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		entry:     l.entry.WithFields(pairs(args)),
		component: l.component,
	}
}

// WithFields returns a new logger with the given field map attached
func (l *Logger) WithFields(fields LogFields) *Logger {
	return &Logger{
		entry:     l.entry.WithFields(logrus.Fields(fields)),
		component: l.component,
	}
}

// WithError returns a new logger carrying err
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		entry:     l.entry.WithError(err),
		component: l.component,
	}
}

// WithComponent returns a new logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		entry:     l.entry.WithField(FieldComponent, component),
		component: component,
	}
}

// Info logs at Info level
func (l *Logger) Info(msg string, args ...any) {
	l.entry.WithFields(pairs(args)).Info(msg)
}

// InfoContext logs at Info level with request context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.withContext(ctx).WithFields(pairs(args)).Info(msg)
}

// Warn logs at Warn level
func (l *Logger) Warn(msg string, args ...any) {
	l.entry.WithFields(pairs(args)).Warn(msg)
}

// WarnContext logs at Warn level with request context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.withContext(ctx).WithFields(pairs(args)).Warn(msg)
}

// Error logs at Error level
func (l *Logger) Error(msg string, args ...any) {
	l.entry.WithFields(pairs(args)).Error(msg)
}

// ErrorContext logs at Error level with request context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.withContext(ctx).WithFields(pairs(args)).Error(msg)
}

// Debug logs at Debug level
func (l *Logger) Debug(msg string, args ...any) {
	l.entry.WithFields(pairs(args)).Debug(msg)
}

// DebugContext logs at Debug level with request context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.withContext(ctx).WithFields(pairs(args)).Debug(msg)
}

// Log logs at an explicit level
func (l *Logger) Log(ctx context.Context, level logrus.Level, msg string, args ...any) {
	l.withContext(ctx).WithFields(pairs(args)).Log(level, msg)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// Logrus exposes the underlying logrus logger for libraries that want one
func (l *Logger) Logrus() *logrus.Logger {
	return l.entry.Logger
}

func (l *Logger) withContext(ctx context.Context) *logrus.Entry {
	e := l.entry.WithContext(ctx)
	if id := RequestIDFromContext(ctx); id != "" {
		e = e.WithField(FieldRequestID, id)
	}
	return e
}

// pairs turns alternating key/value arguments into logrus fields.
// A dangling key is recorded under "!BADKEY" like slog does.
func pairs(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = key
			break
		}
		if err, isErr := args[i+1].(error); isErr && err != nil {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig())
)

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	if logger == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// Default returns the process-wide logger set by SetDefault
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}
