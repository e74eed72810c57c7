package async

import "runtime/debug"

// PanicLogger receives panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a background goroutine. A panic inside fn is logged and
// swallowed so a misbehaving task can never take the process down.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil || logger == nil {
				return
			}
			logger.Error("background goroutine %q panicked: %v\n%s", name, r, debug.Stack())
		}()
		fn()
	}()
}
