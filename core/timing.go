package core

import (
	"errors"
	"math/bits"
)

// Prescaler is a timer clock divider
type Prescaler uint16

// Divider sets found on 8-bit AVR parts
var (
	StandardPrescalers = []Prescaler{1, 8, 64, 256, 1024}
	AsyncPrescalers    = []Prescaler{1, 8, 32, 64, 128, 256, 1024}
)

var (
	ErrInfeasiblePeriod = errors.New("no prescaler/compare pair fits the period")
	ErrInvalidTiming    = errors.New("invalid timing request")
	ErrTimingMismatch   = errors.New("timing does not fit the timer")
)

// Timing is a prescaler/compare pair chosen for a requested period
type Timing struct {
	CPUHz       uint32
	RequestedUs uint32
	Prescaler   Prescaler
	Compare     uint16
	PeriodNs    uint64 // period actually produced
}

// PeriodUs returns the produced period rounded to microseconds
func (t Timing) PeriodUs() uint32 {
	return uint32((t.PeriodNs + 500) / 1000)
}

// ErrorNs returns the absolute difference between produced and requested period
func (t Timing) ErrorNs() uint64 {
	want := uint64(t.RequestedUs) * 1000
	if t.PeriodNs > want {
		return t.PeriodNs - want
	}
	return want - t.PeriodNs
}

// TimingError describes a period that cannot be produced
type TimingError struct {
	CPUHz       uint32
	PeriodUs    uint32
	CounterBits uint8
	Err         error
}

func (e *TimingError) Error() string {
	return e.Err.Error() + ": period=" + utoa(uint64(e.PeriodUs)) + "us cpu=" +
		utoa(uint64(e.CPUHz)) + "Hz bits=" + utoa(uint64(e.CounterBits))
}

func (e *TimingError) Unwrap() error {
	return e.Err
}

// SelectTiming picks the prescaler and compare value that best approximate
// periodUs on a timer with the given counter width. A period needs between
// 1 and 2^counterBits timer counts under some prescaler to be feasible. The
// smallest absolute error wins; ties go to the smaller prescaler.
func SelectTiming(cpuHz, periodUs uint32, counterBits uint8, prescalers []Prescaler) (Timing, error) {
	if cpuHz == 0 || periodUs == 0 || counterBits == 0 || counterBits > 16 || len(prescalers) == 0 {
		return Timing{}, &TimingError{CPUHz: cpuHz, PeriodUs: periodUs, CounterBits: counterBits, Err: ErrInvalidTiming}
	}

	limit := uint64(1) << counterBits
	hi, lo := bits.Mul64(uint64(periodUs), uint64(cpuHz))

	var best Timing
	var bestErr uint64
	found := false

	for _, p := range prescalers {
		if p == 0 {
			continue
		}
		counts, ok := divRound(hi, lo, uint64(p)*1000000)
		if !ok || counts < 1 || counts > limit {
			continue
		}

		t := Timing{
			CPUHz:       cpuHz,
			RequestedUs: periodUs,
			Prescaler:   p,
			Compare:     uint16(counts - 1),
			PeriodNs:    periodNs(cpuHz, p, counts),
		}
		if e := t.ErrorNs(); !found || e < bestErr || (e == bestErr && p < best.Prescaler) {
			best, bestErr, found = t, e, true
		}
	}

	if !found {
		return Timing{}, &TimingError{CPUHz: cpuHz, PeriodUs: periodUs, CounterBits: counterBits, Err: ErrInfeasiblePeriod}
	}
	return best, nil
}

// Fits reports whether t can be programmed into a timer with the given
// width and dividers
func (t Timing) Fits(counterBits uint8, prescalers []Prescaler) bool {
	if counterBits < 16 && uint32(t.Compare) >= uint32(1)<<counterBits {
		return false
	}
	for _, p := range prescalers {
		if p == t.Prescaler {
			return true
		}
	}
	return false
}

// periodNs is the duration of counts timer ticks, rounded to nanoseconds
func periodNs(cpuHz uint32, p Prescaler, counts uint64) uint64 {
	return (counts*uint64(p)*1000000000 + uint64(cpuHz)/2) / uint64(cpuHz)
}

// divRound divides the 128-bit value hi:lo by d, rounding to nearest.
// It reports false when the quotient does not fit in 64 bits.
func divRound(hi, lo, d uint64) (uint64, bool) {
	lo, carry := bits.Add64(lo, d/2, 0)
	hi += carry
	if hi >= d {
		return 0, false
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, true
}
