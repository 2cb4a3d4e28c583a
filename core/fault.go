package core

import "sync/atomic"

// Fault codes recorded in the fault log.
const (
	FaultNone     uint8 = 0
	FaultActuator uint8 = 1
	FaultConfig   uint8 = 2
	FaultDisplay  uint8 = 3
	FaultLink     uint8 = 4
)

// FaultRecord is one entry in the fault ring.
type FaultRecord struct {
	Code   uint8
	Detail uint32
	At     Ticks
}

const faultRingSize = 16

// Fault storage is reserved once for the process lifetime so interrupt
// handlers can report without allocating.
var (
	faultRing  [faultRingSize]FaultRecord
	faultHead  uint32
	faultCount uint32

	// shutdownWord latches the first fatal code; bit 31 marks the latch
	// so FaultNone (0) still latches.
	shutdownWord uint32
)

const shutdownSet = 1 << 31

// RecordFault appends a diagnostic record, overwriting the oldest once
// the ring is full. Safe from interrupt context.
func RecordFault(code uint8, detail uint32, at Ticks) {
	state := disableInterrupts()
	faultRing[faultHead] = FaultRecord{Code: code, Detail: detail, At: at}
	faultHead = (faultHead + 1) % faultRingSize
	if faultCount < faultRingSize {
		faultCount++
	}
	restoreInterrupts(state)
}

// TryShutdown records the fault and latches the first fatal code.
// Reports whether this call did the latching; later calls only add
// records.
func TryShutdown(code uint8, detail uint32, at Ticks) bool {
	RecordFault(code, detail, at)
	return atomic.CompareAndSwapUint32(&shutdownWord, 0, uint32(code)|shutdownSet)
}

// IsShutdown reports whether a fatal fault has been latched.
func IsShutdown() bool {
	return atomic.LoadUint32(&shutdownWord) != 0
}

// ShutdownCode returns the first fatal code, or FaultNone.
func ShutdownCode() uint8 {
	return uint8(atomic.LoadUint32(&shutdownWord) & 0xFF)
}

// FaultLog copies out the recorded faults, oldest first. Polling or host
// context only; this allocates.
func FaultLog() []FaultRecord {
	state := disableInterrupts()
	n := faultCount
	head := faultHead
	var snap [faultRingSize]FaultRecord
	copy(snap[:], faultRing[:])
	restoreInterrupts(state)

	out := make([]FaultRecord, 0, n)
	for i := uint32(0); i < n; i++ {
		idx := (head + faultRingSize - n + i) % faultRingSize
		out = append(out, snap[idx])
	}
	return out
}

// ResetFaults clears the log and the shutdown latch.
func ResetFaults() {
	state := disableInterrupts()
	faultHead = 0
	faultCount = 0
	restoreInterrupts(state)
	atomic.StoreUint32(&shutdownWord, 0)
}
