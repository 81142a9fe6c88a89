//go:build tinygo && avr

package main

import (
	"device/avr"
	"runtime/volatile"

	"avrcoop/core"
)

// Bits shared by timer1 and timer2 (ATmega328P datasheet, sections 15/17)
const (
	comA0   = 6 // TCCRnA output mode for channel A, two bits
	ocieA   = 1 // TIMSKn compare A interrupt enable
	ocfA    = 1 // TIFRn compare A flag, cleared by writing one
	csMask  = 0x07
	wgmCTC1 = 1 << 3 // TCCR1B WGM12
	wgmCTC2 = 1 << 1 // TCCR2A WGM21
)

// hwTimer drives one AVR timer/counter through its registers
type hwTimer struct {
	tccrA, tccrB *volatile.Register8
	tcnt, tcntH  *volatile.Register8 // tcntH nil on 8-bit timers
	ocr, ocrH    *volatile.Register8
	timsk, tifr  *volatile.Register8

	bits       uint8
	prescalers []core.Prescaler
	vector     core.Vector
	ctc        func(on bool) // selects clear-on-compare

	prescaler core.Prescaler
}

func newTimer1() *hwTimer {
	t := &hwTimer{
		tccrA:      avr.TCCR1A,
		tccrB:      avr.TCCR1B,
		tcnt:       avr.TCNT1L,
		tcntH:      avr.TCNT1H,
		ocr:        avr.OCR1AL,
		ocrH:       avr.OCR1AH,
		timsk:      avr.TIMSK1,
		tifr:       avr.TIFR1,
		bits:       16,
		prescalers: core.StandardPrescalers,
		vector:     vectorTimer1CompareA,
	}
	t.ctc = func(on bool) {
		if on {
			t.tccrB.SetBits(wgmCTC1)
		} else {
			t.tccrB.ClearBits(wgmCTC1)
		}
	}
	return t
}

func newTimer2() *hwTimer {
	t := &hwTimer{
		tccrA:      avr.TCCR2A,
		tccrB:      avr.TCCR2B,
		tcnt:       avr.TCNT2,
		ocr:        avr.OCR2A,
		timsk:      avr.TIMSK2,
		tifr:       avr.TIFR2,
		bits:       8,
		prescalers: core.AsyncPrescalers,
		vector:     vectorTimer2CompareA,
	}
	t.ctc = func(on bool) {
		if on {
			t.tccrA.SetBits(wgmCTC2)
		} else {
			t.tccrA.ClearBits(wgmCTC2)
		}
	}
	return t
}

func (t *hwTimer) CounterBits() uint8 { return t.bits }
func (t *hwTimer) Prescalers() []core.Prescaler { return t.prescalers }
func (t *hwTimer) Vector() core.Vector { return t.vector }
func (t *hwTimer) Prescaler() core.Prescaler { return t.prescaler }

// Configure stops the timer, then sets waveform, output mode and clock
// source in that order
func (t *hwTimer) Configure(p core.Prescaler, w core.Waveform, o core.OutputMode) {
	t.tccrB.ClearBits(csMask)

	t.tccrA.Set(t.tccrA.Get()&^(3<<comA0) | uint8(o)<<comA0)
	t.ctc(w == core.WaveformClearOnCompare)

	t.prescaler = p
	t.tccrB.SetBits(clockSelect(p, t.prescalers))
}

// clockSelect returns the CSn2:0 code for p. Codes count up through the
// timer's divider list starting at 1; 0 stops the timer.
func clockSelect(p core.Prescaler, prescalers []core.Prescaler) uint8 {
	for i, q := range prescalers {
		if q == p {
			return uint8(i + 1)
		}
	}
	return 0
}

// SetCounter writes the high byte first so both bytes latch together
func (t *hwTimer) SetCounter(v uint16) {
	if t.tcntH != nil {
		t.tcntH.Set(uint8(v >> 8))
	}
	t.tcnt.Set(uint8(v))
}

// Counter reads the low byte first, which latches the high byte
func (t *hwTimer) Counter() uint16 {
	v := uint16(t.tcnt.Get())
	if t.tcntH != nil {
		v |= uint16(t.tcntH.Get()) << 8
	}
	return v
}

func (t *hwTimer) SetCompare(v uint16) {
	if t.ocrH != nil {
		t.ocrH.Set(uint8(v >> 8))
	}
	t.ocr.Set(uint8(v))
}

func (t *hwTimer) Compare() uint16 {
	v := uint16(t.ocr.Get())
	if t.ocrH != nil {
		v |= uint16(t.ocrH.Get()) << 8
	}
	return v
}

func (t *hwTimer) SetCompareInterrupt(enabled bool) {
	if enabled {
		t.timsk.SetBits(1 << ocieA)
	} else {
		t.timsk.ClearBits(1 << ocieA)
	}
}

func (t *hwTimer) CompareInterruptEnabled() bool {
	return t.timsk.HasBits(1 << ocieA)
}

func (t *hwTimer) ClearCompareFlag() {
	t.tifr.Set(1 << ocfA)
}

func (t *hwTimer) CompareFlag() bool {
	return t.tifr.HasBits(1 << ocfA)
}
