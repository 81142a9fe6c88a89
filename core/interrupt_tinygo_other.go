//go:build tinygo && !avr

package core

// enableInterrupts is a no-op where the interrupt controller already
// handles nesting by priority.
func enableInterrupts() {}
