// Package logging provides the printf-style logger used across opsbot.
package logging

import (
	"fmt"
	"reflect"

	"opsbot/internal/observability"
)

// Logger is the printf-style contract every component logs through.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

// Nop discards everything.
func Nop() Logger { return discard{} }

// IsNil also catches typed nil pointers stored in the interface.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	v := reflect.ValueOf(logger)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// OrNop never returns a nil logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Structured adapts an slog-backed logger so printf call sites end up as
// structured records carrying a component attribute.
func Structured(logger *observability.Logger, component string) Logger {
	if logger == nil {
		return Nop()
	}
	if component != "" {
		logger = logger.With("component", component)
	}
	return structured{logger: logger}
}

type structured struct {
	logger *observability.Logger
}

func (s structured) Debug(format string, args ...any) { s.logger.Debug(fmt.Sprintf(format, args...)) }
func (s structured) Info(format string, args ...any)  { s.logger.Info(fmt.Sprintf(format, args...)) }
func (s structured) Warn(format string, args ...any)  { s.logger.Warn(fmt.Sprintf(format, args...)) }
func (s structured) Error(format string, args ...any) { s.logger.Error(fmt.Sprintf(format, args...)) }
