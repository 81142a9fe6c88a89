package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"avrcoop/core"
)

func TestTimerClearOnCompare(t *testing.T) {
	var vectors core.Vectors
	fired := 0
	vectors.Bind(VectorTimer1CompareA, func() { fired++ })

	timer := NewTimer1(&vectors)
	timer.SetCompare(9)
	timer.Configure(8, core.WaveformClearOnCompare, core.OutputDisconnected)

	// stopped timers do not count
	timer.Configure(0, core.WaveformClearOnCompare, core.OutputDisconnected)
	assert.Zero(t, timer.Step(1000))
	timer.Configure(8, core.WaveformClearOnCompare, core.OutputDisconnected)

	// 10 counts of 8 cycles per period
	assert.Zero(t, timer.Step(79))
	assert.Equal(t, uint16(9), timer.Counter())
	assert.Equal(t, 1, timer.Step(1))
	assert.Equal(t, uint16(0), timer.Counter())
	assert.True(t, timer.CompareFlag())
	assert.Zero(t, fired, "interrupt masked")

	timer.ClearCompareFlag()
	timer.SetCompareInterrupt(true)
	assert.Equal(t, 5, timer.StepPeriods(5))
	assert.Equal(t, 5, fired)
	assert.False(t, timer.CompareFlag(), "flag cleared on vector entry")
	assert.Equal(t, uint64(6), timer.Matches())
}

func TestTimerCounterAboveCompare(t *testing.T) {
	var vectors core.Vectors
	timer := NewTimer2(&vectors)
	timer.Configure(1, core.WaveformClearOnCompare, core.OutputDisconnected)
	timer.SetCompare(10)
	timer.SetCounter(250)

	// runs to 255, wraps, then matches at 10
	assert.Zero(t, timer.Step(6))
	assert.Equal(t, uint16(0), timer.Counter())
	assert.Equal(t, 1, timer.Step(11))
}

func TestTimerNormalMode(t *testing.T) {
	var vectors core.Vectors
	timer := NewTimer2(&vectors)
	timer.SetCompare(100)
	timer.Configure(1, core.WaveformNormal, core.OutputDisconnected)

	assert.Equal(t, 1, timer.Step(100))
	assert.Equal(t, uint16(100), timer.Counter())
	// next match after a full 256-count wrap
	assert.Zero(t, timer.Step(255))
	assert.Equal(t, 1, timer.Step(1))
}

func TestTimerNormalModeMatchesOnEquality(t *testing.T) {
	var vectors core.Vectors
	timer := NewTimer2(&vectors)
	timer.SetCompare(0)
	timer.Configure(1, core.WaveformNormal, core.OutputDisconnected)

	// counter already equals the compare value
	assert.Equal(t, 1, timer.Step(1))
	assert.Equal(t, uint16(1), timer.Counter())

	// once per wrap, matched as the counter returns to zero
	assert.Equal(t, 1, timer.Step(255))
	assert.Equal(t, uint16(0), timer.Counter())
	assert.Equal(t, 2, timer.Step(512))

	// a counter written onto the compare value matches on the next step
	timer.SetCompare(40)
	timer.SetCounter(40)
	assert.Equal(t, 1, timer.Step(1))
	assert.Equal(t, uint16(41), timer.Counter())
}

func TestTimerMasksRegisters(t *testing.T) {
	var vectors core.Vectors
	timer := NewTimer2(&vectors)
	timer.SetCompare(0x1234)
	assert.Equal(t, uint16(0x34), timer.Compare())
	assert.Equal(t, uint8(8), timer.CounterBits())
	assert.Equal(t, VectorTimer2CompareA, timer.Vector())
}

func TestWatchdog(t *testing.T) {
	resets := 0
	w := &Watchdog{OnReset: func() { resets++ }}

	assert.False(t, w.Advance(1000000), "disabled watchdog never expires")

	w.Enable(core.Watchdog16ms)
	assert.False(t, w.Advance(15999))
	w.Feed()
	assert.False(t, w.Advance(15999))
	assert.True(t, w.Advance(1))
	assert.Equal(t, 1, w.Resets())
	assert.Equal(t, 1, resets)

	w.Disable()
	assert.False(t, w.Enabled())
}

func TestEEPROMModel(t *testing.T) {
	var vectors core.Vectors
	ready := 0
	vectors.Bind(VectorEEReady, func() { ready++ })

	e := NewEEPROM(&vectors, 16)
	assert.Equal(t, byte(0xFF), e.Peek(3))
	assert.Equal(t, byte(0xFF), e.Read(100))
	assert.False(t, e.Complete())

	e.StartWrite(3, 0x42)
	assert.True(t, e.Busy())
	assert.True(t, e.Complete())
	assert.Equal(t, byte(0x42), e.Peek(3))
	assert.Equal(t, 1, ready)

	e.StartWrite(4, 0x43)
	e.StopInterrupt()
	e.Complete()
	assert.Equal(t, 1, ready, "disarmed interrupt")

	e.Poke(5, 7)
	assert.Equal(t, byte(7), e.Read(5))
	assert.Equal(t, 2, e.Writes())
}
