package main

import (
	"errors"
	"os"

	"github.com/loykin/migcheck"
)

// ExitHandler provides a testable way to handle program termination
type ExitHandler interface {
	Exit(code int)
	LogFatalError(err error, msg string, keyvals ...any)
}

// DefaultExitHandler implements ExitHandler for production use
type DefaultExitHandler struct {
	exit func(code int)
}

// Exit terminates the program with the given exit code
func (h *DefaultExitHandler) Exit(code int) {
	if h.exit != nil {
		h.exit(code)
		return
	}
	os.Exit(code)
}

// LogFatalError logs a fatal error and exits the program. Failed checks were
// already reported on stdout, so they only set the exit code.
func (h *DefaultExitHandler) LogFatalError(err error, msg string, keyvals ...any) {
	if errors.Is(err, errChecksFailed) {
		h.Exit(exitChecksFailed)
		return
	}
	allKeyvals := append([]any{"error", err}, keyvals...)
	migcheck.GetLogger().WithComponent("main").Error(msg, allKeyvals...)
	h.Exit(1)
}

// Global exit handler (can be replaced for testing)
var exitHandler ExitHandler = &DefaultExitHandler{}
