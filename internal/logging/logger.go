// Package logging defines the printf-style logger every component accepts,
// plus adapters onto the file logger and the structured event logger.
package logging

import (
	"fmt"
	"reflect"
	"sync"

	"chemagent/internal/observability"
	"chemagent/internal/utils"
)

// Logger is the logging contract shared across the module.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger { return nopLogger{} }

// IsNil also catches typed nil pointers stored in the interface.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	v := reflect.ValueOf(logger)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// OrNop substitutes Nop for a nil logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// NewComponentLogger returns the process file logger tagged with component.
func NewComponentLogger(component string) Logger {
	return utils.NewComponentLogger(component)
}

// Structured adapts the slog-backed event logger, formatting printf-style
// messages first and attaching component as an attribute.
func Structured(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	if component != "" {
		logger = logger.With("component", component)
	}
	return structuredLogger{logger}
}

type structuredLogger struct{ l *observability.Logger }

func (s structuredLogger) Debug(format string, args ...any) { s.l.Debug(fmt.Sprintf(format, args...)) }
func (s structuredLogger) Info(format string, args ...any)  { s.l.Info(fmt.Sprintf(format, args...)) }
func (s structuredLogger) Warn(format string, args ...any)  { s.l.Warn(fmt.Sprintf(format, args...)) }
func (s structuredLogger) Error(format string, args ...any) { s.l.Error(fmt.Sprintf(format, args...)) }

// Multi sends every record to each non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	var out fanout
	for _, logger := range loggers {
		switch l := logger.(type) {
		case fanout:
			out = append(out, l...)
		default:
			if !IsNil(l) {
				out = append(out, l)
			}
		}
	}
	switch len(out) {
	case 0:
		return Nop()
	case 1:
		return out[0]
	}
	return out
}

type fanout []Logger

func (f fanout) Debug(format string, args ...any) {
	for _, l := range f {
		l.Debug(format, args...)
	}
}

func (f fanout) Info(format string, args ...any) {
	for _, l := range f {
		l.Info(format, args...)
	}
}

func (f fanout) Warn(format string, args ...any) {
	for _, l := range f {
		l.Warn(format, args...)
	}
}

func (f fanout) Error(format string, args ...any) {
	for _, l := range f {
		l.Error(format, args...)
	}
}

// Recorder keeps formatted lines in memory as "LEVEL: message". Tests use
// it to assert on what a component logged.
type Recorder struct {
	mu    sync.Mutex
	Lines []string
}

func (r *Recorder) record(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lines = append(r.Lines, level+": "+fmt.Sprintf(format, args...))
}

// Snapshot returns a copy of the recorded lines.
func (r *Recorder) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Lines...)
}

func (r *Recorder) Debug(format string, args ...any) { r.record("DEBUG", format, args...) }
func (r *Recorder) Info(format string, args ...any)  { r.record("INFO", format, args...) }
func (r *Recorder) Warn(format string, args ...any)  { r.record("WARN", format, args...) }
func (r *Recorder) Error(format string, args ...any) { r.record("ERROR", format, args...) }
