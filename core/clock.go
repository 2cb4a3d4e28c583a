package core

// Ticks is a millisecond timestamp from a free-running 32-bit monotonic
// counter. The counter wraps about every 49.7 days; wraparound is normal
// operation, so spans are never computed by direct comparison.
type Ticks uint32

// TicksDiff returns the signed span a-b in milliseconds. Two's-complement
// subtraction keeps the result correct across counter wrap for any span
// shorter than 2^31 ms.
func TicksDiff(a, b Ticks) int32 {
	return int32(a - b)
}

// ClockDriver is the millisecond timebase. Millis must be cheap enough to
// call from interrupt handlers.
type ClockDriver interface {
	Millis() Ticks
}

// Global singleton used by core code.
var clockDriver ClockDriver

// SetClockDriver is called by target-specific code to register its clock.
func SetClockDriver(d ClockDriver) {
	clockDriver = d
}

// MustClock returns the configured clock or panics if missing.
func MustClock() ClockDriver {
	if clockDriver == nil {
		panic("clock driver not configured")
	}
	return clockDriver
}

// Now reads the current millisecond timestamp.
func Now() Ticks {
	return MustClock().Millis()
}
