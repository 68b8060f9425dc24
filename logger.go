package visbuf

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/visbuf/internal/cull"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

// loggerSetters receive every logger passed to SetLogger. Backends add
// their package setter when they register.
var (
	loggerMu      sync.Mutex
	loggerSetters = []func(*slog.Logger){cull.SetLogger}
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for visbuf and its backends.
// By default, visbuf produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by visbuf:
//   - [slog.LevelDebug]: per-frame and per-pipeline diagnostics
//   - [slog.LevelInfo]: lifecycle events (backend selected, resize, capacity growth)
//   - [slog.LevelWarn]: overflow telemetry and backend fallback
//
// Example:
//
//	visbuf.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	loggerMu.Lock()
	defer loggerMu.Unlock()
	for _, set := range loggerSetters {
		set(l)
	}
}

// Logger returns the current logger used by visbuf.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// addLoggerSetter registers a backend package's SetLogger and hands it the
// current logger.
func addLoggerSetter(set func(*slog.Logger)) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	loggerSetters = append(loggerSetters, set)
	set(Logger())
}
