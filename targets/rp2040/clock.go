//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"mopo/core"
)

// RP2040 timer peripheral registers. TIMERAWH and TIMERAWL expose the
// free-running 1 MHz counter without latching side effects.
const (
	timerBase     = 0x40054000
	timerRawHAddr = timerBase + 0x08
	timerRawLAddr = timerBase + 0x0C
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawHAddr)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawLAddr)))
)

// hardwareClock folds the microsecond counter down to the millisecond
// ticks the meters and the scheduler run on.
type hardwareClock struct{}

func (hardwareClock) Millis() core.Ticks {
	return core.Ticks(microsUptime() / 1000)
}

// microsUptime assembles the 64-bit microsecond count. The high word
// is read before and after the low word; a change between the two
// reads means the low word wrapped in between and the read retries.
func microsUptime() uint64 {
	for {
		high := timerRawH.Get()
		low := timerRawL.Get()
		if timerRawH.Get() == high {
			return uint64(high)<<32 | uint64(low)
		}
	}
}
