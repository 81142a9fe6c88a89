//go:build tinygo && avr

package main

import (
	"device/avr"
	"runtime/interrupt"

	"avrcoop/core"
)

const (
	vectorTimer1CompareA = core.Vector(avr.IRQ_TIMER1_COMPA)
	vectorTimer2CompareA = core.Vector(avr.IRQ_TIMER2_COMPA)
	vectorEEReady        = core.Vector(avr.IRQ_EE_READY)
)

// bindVectors routes the hardware vectors the runtime uses into its
// vector table. Handlers are attached to the table later by the alarms
// and the EEPROM writer.
func bindVectors() {
	interrupt.New(avr.IRQ_TIMER1_COMPA, func(interrupt.Interrupt) {
		rt.Vectors.Fire(vectorTimer1CompareA)
	})
	interrupt.New(avr.IRQ_TIMER2_COMPA, func(interrupt.Interrupt) {
		rt.Vectors.Fire(vectorTimer2CompareA)
	})
	interrupt.New(avr.IRQ_EE_READY, func(interrupt.Interrupt) {
		rt.Vectors.Fire(vectorEEReady)
	})
}
