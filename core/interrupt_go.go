//go:build !tinygo

package core

import "sync"

// State is a placeholder for interrupt state on regular Go
type State uintptr

// irqMask stands in for the global interrupt enable bit when running on the
// host. Holding it is the equivalent of running with interrupts disabled.
var irqMask sync.Mutex

// disableInterrupts enters a critical section (regular Go implementation).
// Critical sections must not nest.
func disableInterrupts() State {
	irqMask.Lock()
	return 0
}

// restoreInterrupts leaves the critical section
func restoreInterrupts(state State) {
	irqMask.Unlock()
}

// enableInterrupts is a no-op on regular Go: simulated interrupt handlers
// never hold the mask on return.
func enableInterrupts() {}
