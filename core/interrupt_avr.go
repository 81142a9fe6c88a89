//go:build tinygo && avr

package core

import "device/avr"

// enableInterrupts sets the global interrupt flag. AVR clears it on vector
// entry, so a handler calling this allows other vectors to nest above it.
func enableInterrupts() {
	avr.Asm("sei")
}
