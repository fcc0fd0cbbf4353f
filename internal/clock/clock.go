// Package clock exposes the wall-clock time source the core depends on as a
// narrow interface, so the configurator and task driver can be driven by a
// mock clock in tests instead of real sleeps.
package clock

import (
	"github.com/benbjohnson/clock"
)

// Clock is the time source contract described in spec.md §1 ("a wall-clock
// time source (millisecond and microsecond counters)"). It is satisfied by
// github.com/benbjohnson/clock's Clock, both the real implementation and its
// mock.
type Clock = clock.Clock

// Mock is re-exported so tests can advance time deterministically without an
// extra import.
type Mock = clock.Mock

// New returns the real, wall-clock-backed implementation.
func New() Clock {
	return clock.New()
}

// NewMock returns a controllable clock for deterministic tests.
func NewMock() *Mock {
	return clock.NewMock()
}

// Millis returns the current time as milliseconds since the Unix epoch,
// truncated to uint32 the way the receiver's own millisecond counter wraps.
func Millis(c Clock) uint32 {
	return uint32(c.Now().UnixMilli())
}

// Micros returns the current time as microseconds since the Unix epoch.
func Micros(c Clock) uint64 {
	return uint64(c.Now().UnixMicro())
}

// SinceMillis returns the elapsed duration, in milliseconds, between a previously
// captured Millis() stamp and now — handling uint32 wraparound the way the
// original millisecond counter does.
func SinceMillis(c Clock, stamp uint32) uint32 {
	return Millis(c) - stamp
}
