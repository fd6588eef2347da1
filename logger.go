package tilecache

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record; it is the default logger so that
// embedding applications pay nothing for logging until they opt in.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool        { return false }
func (nopHandler) Handle(context.Context, slog.Record) error       { return nil }
func (h nopHandler) WithAttrs(_ []slog.Attr) slog.Handler           { return h }
func (h nopHandler) WithGroup(_ string) slog.Handler                { return h }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// logger returns the package-wide logger.
func logger() *slog.Logger {
	return loggerPtr.Load()
}

// SetLogger installs l as the package-wide logger for this module's cache,
// pools, and iterators. Passing nil restores the default no-op logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}
