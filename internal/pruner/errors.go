package pruner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrAborted is returned by Prune when the ErrorHandler stopped the run.
var ErrAborted = errors.New("prune aborted")

// RunStatus names the outcome of a run that returned err.
func RunStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}

// ErrorHandler decides what happens after a per-file failure. Both methods
// return true to abort the run. args are slog key/value pairs.
type ErrorHandler interface {
	Handle(msg string, args ...any) bool
	HandleError(err error, msg string, args ...any) bool
}

// CLIErrorHandler logs failures. With continueOnError set it warns and lets
// the run go on; otherwise it logs an error and aborts.
type CLIErrorHandler struct {
	log             *slog.Logger
	continueOnError bool

	mu     sync.Mutex
	failed bool
	count  int
}

// NewCLIErrorHandler creates a CLIErrorHandler.
func NewCLIErrorHandler(log *slog.Logger, continueOnError bool) *CLIErrorHandler {
	return &CLIErrorHandler{log: log, continueOnError: continueOnError}
}

func (h *CLIErrorHandler) Handle(msg string, args ...any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	if h.continueOnError {
		h.log.Warn(msg, args...)
		return false
	}
	h.failed = true
	h.log.Error(msg, args...)
	return true
}

func (h *CLIErrorHandler) HandleError(err error, msg string, args ...any) bool {
	return h.Handle(msg, append(args, "error", err)...)
}

// Successful reports whether no failure aborted the run.
func (h *CLIErrorHandler) Successful() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.failed
}

// Count returns the number of failures seen, aborting or not.
func (h *CLIErrorHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
