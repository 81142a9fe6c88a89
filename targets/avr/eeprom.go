//go:build tinygo && avr

package main

import (
	"device/avr"

	"avrcoop/core"
)

// EECR bits
const (
	eerie = 1 << 3
	eempe = 1 << 2
	eepe  = 1 << 1
	eere  = 1 << 0
)

const eepromSize = 1024

// eepromHAL drives the ATmega328P data EEPROM
type eepromHAL struct{}

func (eepromHAL) Busy() bool {
	return avr.EECR.HasBits(eepe)
}

func (e eepromHAL) Read(addr uint16) byte {
	for e.Busy() {
	}
	setAddress(addr)
	avr.EECR.SetBits(eere)
	return avr.EEDR.Get()
}

// StartWrite starts an erase-and-write of one byte and enables the ready
// interrupt. EEPE must be set within four cycles of EEMPE, so it is called
// with interrupts disabled.
func (eepromHAL) StartWrite(addr uint16, b byte) {
	setAddress(addr)
	avr.EEDR.Set(b)
	avr.EECR.Set(eempe)
	avr.EECR.SetBits(eepe)
	avr.EECR.SetBits(eerie)
}

func (eepromHAL) StopInterrupt() {
	avr.EECR.ClearBits(eerie)
}

func (eepromHAL) Size() uint16 { return eepromSize }

func (eepromHAL) Vector() core.Vector { return vectorEEReady }

func setAddress(addr uint16) {
	avr.EEARH.Set(uint8(addr >> 8))
	avr.EEARL.Set(uint8(addr))
}
