// Package plog is the console logger for the CLI layer. The mirror engine
// itself never logs through this package; it reports through an explicit
// report.Reporter. plog covers everything that happens before a reporter
// exists (flag validation, settings loading, preflight) and the
// operator-facing summary lines.
//
// Everything goes to stderr: the mirror's own diagnostics must never mix
// into stdout, which stays clean for things like `hobomirror version` in
// scripts. Quiet mode is enforced inside the handler rather than in the
// front-end functions, so any logger derived from the default one (via
// With) honors it too.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

var current atomic.Pointer[slog.Logger]
var quietMode atomic.Bool

// quietGate wraps a handler and drops records below WARN while quiet mode
// is on. The flag is read per record, so toggling quiet mid-run takes
// effect immediately on every derived logger.
type quietGate struct {
	inner slog.Handler
}

func (g quietGate) muted(level slog.Level) bool {
	return quietMode.Load() && level < slog.LevelWarn
}

func (g quietGate) Enabled(ctx context.Context, level slog.Level) bool {
	if g.muted(level) {
		return false
	}
	return g.inner.Enabled(ctx, level)
}

func (g quietGate) Handle(ctx context.Context, r slog.Record) error {
	if g.muted(r.Level) {
		return nil
	}
	return g.inner.Handle(ctx, r)
}

func (g quietGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return quietGate{inner: g.inner.WithAttrs(attrs)}
}

func (g quietGate) WithGroup(name string) slog.Handler {
	return quietGate{inner: g.inner.WithGroup(name)}
}

func init() {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.TimeOnly,
	})
	current.Store(slog.New(quietGate{inner: handler}))
}

// SetOutput redirects the logger, primarily for tests. The replacement
// logs at debug level and without colors so test assertions see every
// record verbatim; quiet mode is reset so earlier tests can't leak it.
func SetOutput(w io.Writer) {
	quietMode.Store(false)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	current.Store(slog.New(quietGate{inner: handler}))
}

// SetQuiet suppresses records below WARN on the console.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet reports whether quiet mode is on.
func IsQuiet() bool {
	return quietMode.Load()
}

// Debug logs a diagnostic message.
func Debug(msg string, args ...any) {
	current.Load().Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	current.Load().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	current.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	current.Load().Error(msg, args...)
}
