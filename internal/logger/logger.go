package logger

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type Logger struct {
	entry *logrus.Entry
}

// New builds a JSON logger writing to out at the given level name ("debug", "info", ...).
func New(out io.Writer, level string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{}) //nolint:exhaustruct

	return &Logger{entry: logrus.NewEntry(l)}, nil
}

// Wrap adapts an already configured logrus logger.
func Wrap(l *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(l)}
}

// Nop discards everything. Used by tests and tools that do not log.
func Nop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return &Logger{entry: logrus.NewEntry(l)}
}

// Logrus exposes the underlying logger for libraries that want an io.Writer or a *log.Logger.
func (l *Logger) Logrus() *logrus.Logger {
	return l.entry.Logger
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithContext tags entries with the trace id of the span carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}

	return &Logger{entry: l.entry.WithField("trace_id", sc.TraceID().String())}
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.entry.Errorf(format, v...)
}

func (l *Logger) LogWarnf(format string, v ...any) {
	l.entry.Warnf(format, v...)
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.entry.Infof(format, v...)
}

func (l *Logger) LogDebugf(format string, v ...any) {
	l.entry.Debugf(format, v...)
}
