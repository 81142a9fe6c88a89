// Package sim provides software models of the AVR peripherals the core
// programs, so alarms, clocks and schedulers can run on the host.
package sim

import (
	"sync"

	"avrcoop/core"
)

// ATmega328P vector numbers
const (
	VectorWDT            core.Vector = 6
	VectorTimer2CompareA core.Vector = 7
	VectorTimer1CompareA core.Vector = 11
	VectorEEReady        core.Vector = 22
)

// Timer models a timer/counter with one compare channel. The counter
// advances once per prescaler CPU cycles. In clear-on-compare mode a match
// happens on the count after the counter equals the compare value, so a
// period is compare+1 counts. In normal mode the match happens when the
// counter reaches the compare value, including a counter that already holds
// it, and is taken once per visit.
type Timer struct {
	mu sync.Mutex

	vectors    *core.Vectors
	vector     core.Vector
	bits       uint8
	prescalers []core.Prescaler

	prescaler core.Prescaler // 0 = stopped
	waveform  core.Waveform
	output    core.OutputMode
	counter   uint16
	compare   uint16
	irq       bool
	flag      bool
	residue   uint64 // CPU cycles not yet amounting to a count
	atCompare bool   // normal mode match already taken at the current count

	matches uint64
}

// NewTimer creates a stopped timer raising v on vectors
func NewTimer(vectors *core.Vectors, v core.Vector, bits uint8, prescalers []core.Prescaler) *Timer {
	return &Timer{
		vectors:    vectors,
		vector:     v,
		bits:       bits,
		prescalers: prescalers,
	}
}

// NewTimer1 models the 16-bit timer1 of an ATmega328P
func NewTimer1(vectors *core.Vectors) *Timer {
	return NewTimer(vectors, VectorTimer1CompareA, 16, core.StandardPrescalers)
}

// NewTimer2 models the 8-bit asynchronous timer2 of an ATmega328P
func NewTimer2(vectors *core.Vectors) *Timer {
	return NewTimer(vectors, VectorTimer2CompareA, 8, core.AsyncPrescalers)
}

func (t *Timer) CounterBits() uint8 { return t.bits }

func (t *Timer) Prescalers() []core.Prescaler { return t.prescalers }

func (t *Timer) Vector() core.Vector { return t.vector }

func (t *Timer) Configure(p core.Prescaler, w core.Waveform, o core.OutputMode) {
	t.mu.Lock()
	t.prescaler = p
	t.waveform = w
	t.output = o
	t.residue = 0
	t.mu.Unlock()
}

func (t *Timer) Prescaler() core.Prescaler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prescaler
}

// Waveform returns the configured waveform mode
func (t *Timer) Waveform() core.Waveform {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waveform
}

// OutputMode returns the configured compare output mode
func (t *Timer) OutputMode() core.OutputMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

func (t *Timer) SetCounter(v uint16) {
	t.mu.Lock()
	t.counter = v & t.top()
	t.atCompare = false
	t.mu.Unlock()
}

func (t *Timer) Counter() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

func (t *Timer) SetCompare(v uint16) {
	t.mu.Lock()
	t.compare = v & t.top()
	t.atCompare = false
	t.mu.Unlock()
}

func (t *Timer) Compare() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compare
}

func (t *Timer) SetCompareInterrupt(enabled bool) {
	t.mu.Lock()
	t.irq = enabled
	t.mu.Unlock()
}

func (t *Timer) CompareInterruptEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.irq
}

func (t *Timer) ClearCompareFlag() {
	t.mu.Lock()
	t.flag = false
	t.mu.Unlock()
}

func (t *Timer) CompareFlag() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flag
}

// Matches returns the number of compare matches since creation
func (t *Timer) Matches() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.matches
}

func (t *Timer) top() uint16 {
	if t.bits >= 16 {
		return 0xFFFF
	}
	return uint16(1)<<t.bits - 1
}

// Step advances the timer by cycles CPU cycles, firing the compare vector
// on every match while the interrupt is enabled. It returns the number of
// matches.
func (t *Timer) Step(cycles uint64) int {
	t.mu.Lock()
	if t.prescaler == 0 {
		t.mu.Unlock()
		return 0
	}
	t.residue += cycles
	counts := t.residue / uint64(t.prescaler)
	t.residue %= uint64(t.prescaler)
	t.mu.Unlock()

	n := 0
	for counts > 0 {
		var matched bool
		counts, matched = t.advance(counts)
		if !matched {
			continue
		}
		n++
		if t.takeInterrupt() {
			t.vectors.Fire(t.vector)
		}
	}
	return n
}

// StepPeriods advances the timer by n whole compare periods
func (t *Timer) StepPeriods(n int) int {
	t.mu.Lock()
	period := (uint64(t.compare) + 1) * uint64(t.prescaler)
	t.mu.Unlock()
	return t.Step(period * uint64(n))
}

// advance consumes counts up to and including the next match
func (t *Timer) advance(counts uint64) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	top := uint64(t.top())
	c := uint64(t.counter)
	cmp := uint64(t.compare)

	if t.waveform == core.WaveformClearOnCompare && c <= cmp {
		d := cmp - c + 1
		if counts < d {
			t.counter += uint16(counts)
			return 0, false
		}
		t.counter = 0
		t.match()
		return counts - d, true
	}

	normal := t.waveform == core.WaveformNormal
	if normal && c <= cmp && !(c == cmp && t.atCompare) {
		d := cmp - c
		if counts < d {
			t.counter += uint16(counts)
			return 0, false
		}
		t.counter = uint16(cmp)
		t.atCompare = true
		t.match()
		return counts - d, true
	}

	// count up to top and wrap
	t.atCompare = false
	d := top - c + 1
	if counts < d {
		t.counter += uint16(counts)
		return 0, false
	}
	t.counter = 0
	if normal && cmp == 0 {
		t.atCompare = true
		t.match()
		return counts - d, true
	}
	return counts - d, false
}

func (t *Timer) match() {
	t.flag = true
	t.matches++
}

// takeInterrupt clears the flag as the hardware does on vector entry
func (t *Timer) takeInterrupt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.irq || !t.flag {
		return false
	}
	t.flag = false
	return true
}
