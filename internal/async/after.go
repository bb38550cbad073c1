// Package async runs background work that must never take the process down.
package async

import (
	"runtime/debug"
	"time"
)

// PanicLogger receives panic reports from background work.
type PanicLogger interface {
	Error(format string, args ...any)
}

// After runs fn on its own goroutine once delay has elapsed. A panic in fn is
// logged under name instead of crashing the process.
// Stopping the returned timer before it fires cancels fn.
func After(logger PanicLogger, name string, delay time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(delay, func() {
		defer Recover(logger, name)
		fn()
	})
}

// Recover must be deferred directly. It swallows the panic and logs it with
// a stack trace when logger is non-nil.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	if name == "" {
		name = "anonymous"
	}
	logger.Error("background task %s panicked: %v\n%s", name, r, debug.Stack())
}
