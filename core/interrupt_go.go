//go:build !tinygo

package core

// State stands in for the saved interrupt state on regular Go
type State uintptr

// disableInterrupts is a no-op on regular Go; host tests drive the core
// from a single goroutine, so there is nothing to mask
func disableInterrupts() State {
	return 0
}

// restoreInterrupts is a no-op on regular Go
func restoreInterrupts(state State) {
	// No-op
}
