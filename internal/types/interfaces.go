package types

import (
	"log/slog"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// ReferenceZone is the fixed UTC+8 civil zone used for alert timestamps and
// history bookkeeping.
var ReferenceZone = time.FixedZone("UTC+8", 8*60*60)

// Clock abstracts time for testability. After mirrors time.After so loops
// can sleep interruptibly against a fake clock in tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// After waits for the duration to elapse on the system timer.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// NopLogger is a Logger that discards everything. It stands in where a
// component was constructed without a logger.
type NopLogger struct{}

func (NopLogger) Info(msg string, args ...any)  {}
func (NopLogger) Error(msg string, args ...any) {}
func (NopLogger) Warn(msg string, args ...any)  {}
func (NopLogger) With(args ...any) Logger       { return NopLogger{} }

// SlogAdapter wraps a *slog.Logger behind the Logger interface. Production
// wiring builds one over a JSON handler at startup; everything below the
// entry point sees only the interface.
type SlogAdapter struct {
	L *slog.Logger
}

func (a SlogAdapter) Info(msg string, args ...any)  { a.L.Info(msg, args...) }
func (a SlogAdapter) Error(msg string, args ...any) { a.L.Error(msg, args...) }
func (a SlogAdapter) Warn(msg string, args ...any)  { a.L.Warn(msg, args...) }
func (a SlogAdapter) With(args ...any) Logger       { return SlogAdapter{L: a.L.With(args...)} }
