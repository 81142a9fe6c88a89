//go:build tinygo && avr

package main

import (
	"device/avr"
	"runtime/interrupt"

	"avrcoop/core"
)

// WDTCSR bits
const (
	wdce = 1 << 4
	wde  = 1 << 3
	wdrf = 1 << 3 // MCUSR watchdog reset flag
)

// watchdog is the ATmega328P watchdog in system reset mode
type watchdog struct{}

// Enable starts the watchdog with the timed WDCE sequence
func (watchdog) Enable(timeout core.WatchdogTimeout) {
	state := interrupt.Disable()
	avr.Asm("wdr")
	avr.WDTCSR.Set(avr.WDTCSR.Get() | wdce | wde)
	avr.WDTCSR.Set(wde | uint8(timeout)&0x07)
	interrupt.Restore(state)
}

// Disable stops the watchdog. WDRF must be clear or WDE stays forced on.
func (watchdog) Disable() {
	state := interrupt.Disable()
	avr.Asm("wdr")
	avr.MCUSR.Set(avr.MCUSR.Get() &^ wdrf)
	avr.WDTCSR.Set(avr.WDTCSR.Get() | wdce | wde)
	avr.WDTCSR.Set(0)
	interrupt.Restore(state)
}

func (watchdog) Feed() {
	avr.Asm("wdr")
}
