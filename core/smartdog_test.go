package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrcoop/core"
	"avrcoop/sim"
)

// cyclesPerMs at the test CPU clock
const cyclesPerMs = cpuHz / 1000

func newSmartdog(t *testing.T, rt *core.Runtime, onDeath func(uint16)) (*core.Smartdog, *sim.Watchdog, *sim.Timer) {
	t.Helper()

	timing, err := core.SelectTiming(cpuHz, 16000, 8, core.AsyncPrescalers)
	require.NoError(t, err)

	wdt := &sim.Watchdog{}
	timer := sim.NewTimer2(rt.Vectors)
	dog, err := core.NewSmartdog(rt, wdt, timer, timing, core.Watchdog32ms, onDeath)
	require.NoError(t, err)
	return dog, wdt, timer
}

func TestSmartdogHealthyLoop(t *testing.T) {
	rt := core.NewRuntime()

	var deaths []uint16
	dog, wdt, timer := newSmartdog(t, rt, func(id uint16) { deaths = append(deaths, id) })

	dog.On()
	assert.True(t, wdt.Enabled())
	assert.True(t, dog.Alarm().IsEnabled())

	for i := 0; i < 10; i++ {
		timer.Step(10 * cyclesPerMs)
		assert.False(t, wdt.Advance(10000))
		dog.Reset()
	}

	assert.Empty(t, deaths)
	assert.False(t, dog.Fired())
	assert.Equal(t, 10, wdt.Feeds())
	assert.Zero(t, wdt.Resets())
}

func TestSmartdogReportsStuckHandler(t *testing.T) {
	rt := core.NewRuntime()

	var deaths []uint16
	dog, wdt, timer := newSmartdog(t, rt, func(id uint16) { deaths = append(deaths, id) })
	dog.On()

	hang := rt.Register("hang", func(uint16) {
		// stuck for 20ms without feeding
		timer.Step(20 * cyclesPerMs)
		wdt.Advance(20000)
	})
	rt.Dispatcher.Add(hang, 0)
	require.True(t, rt.Dispatcher.Invoke())

	require.Equal(t, []uint16{hang.ID}, deaths)
	assert.True(t, dog.Fired())
	assert.False(t, dog.Alarm().IsEnabled(), "one report per stall")
	assert.Zero(t, wdt.Resets(), "alarm beats the watchdog")

	events := rt.Trace.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, uint8(core.TraceDeathAlarm), events[0].Kind)
	assert.Equal(t, hang.ID, events[0].ID)
	assert.Equal(t, core.Watchdog32ms.Micros(), events[0].Value)

	// re-arming clears the state
	dog.On()
	assert.False(t, dog.Fired())
}

func TestSmartdogReportsHangAfterRecoveredStall(t *testing.T) {
	rt := core.NewRuntime()

	var deaths []uint16
	dog, wdt, timer := newSmartdog(t, rt, func(id uint16) { deaths = append(deaths, id) })
	dog.On()

	stall := func(ms uint64) func(uint16) {
		return func(uint16) {
			timer.Step(ms * cyclesPerMs)
			wdt.Advance(uint32(ms * 1000))
		}
	}
	slow := rt.Register("slow", stall(20))
	hang := rt.Register("hang", stall(31))

	rt.Dispatcher.Add(slow, 0)
	require.True(t, rt.Dispatcher.Invoke())
	require.Equal(t, []uint16{slow.ID}, deaths)

	// main loop recovers
	dog.Reset()
	assert.True(t, dog.Alarm().IsEnabled(), "reset re-arms the death alarm")
	for i := 0; i < 5; i++ {
		timer.Step(5 * cyclesPerMs)
		assert.False(t, wdt.Advance(5000))
		dog.Reset()
	}
	require.Len(t, deaths, 1)

	rt.Dispatcher.Add(hang, 0)
	require.True(t, rt.Dispatcher.Invoke())
	assert.Equal(t, []uint16{slow.ID, hang.ID}, deaths)
	assert.Zero(t, wdt.Resets())
}

func TestSmartdogResetAfterOffStaysSilent(t *testing.T) {
	rt := core.NewRuntime()

	fired := false
	dog, _, timer := newSmartdog(t, rt, func(uint16) { fired = true })
	dog.On()
	dog.Off()
	dog.Reset()

	assert.False(t, dog.Alarm().IsEnabled())
	timer.Step(50 * cyclesPerMs)
	assert.False(t, fired)
}

func TestSmartdogIdleLoop(t *testing.T) {
	rt := core.NewRuntime()

	var deaths []uint16
	dog, _, timer := newSmartdog(t, rt, func(id uint16) { deaths = append(deaths, id) })
	dog.On()

	timer.Step(17 * cyclesPerMs)
	assert.Equal(t, []uint16{core.NoHandler}, deaths)
}

func TestSmartdogOff(t *testing.T) {
	rt := core.NewRuntime()

	fired := false
	dog, wdt, timer := newSmartdog(t, rt, func(uint16) { fired = true })
	dog.On()
	dog.Off()

	assert.False(t, wdt.Enabled())
	timer.Step(50 * cyclesPerMs)
	assert.False(t, fired)
}

func TestSmartdogPeriodTooLong(t *testing.T) {
	rt := core.NewRuntime()

	timing, err := core.SelectTiming(cpuHz, 16000, 8, core.AsyncPrescalers)
	require.NoError(t, err)

	_, err = core.NewSmartdog(rt, &sim.Watchdog{}, sim.NewTimer2(rt.Vectors), timing, core.Watchdog16ms, nil)
	assert.True(t, errors.Is(err, core.ErrSmartdogPeriod))
}

func TestWatchdogTimeoutMicros(t *testing.T) {
	assert.Equal(t, uint32(16000), core.Watchdog16ms.Micros())
	assert.Equal(t, uint32(32000), core.Watchdog32ms.Micros())
	assert.Equal(t, uint32(2048000), core.Watchdog2s.Micros())
	assert.Equal(t, uint32(2048000), core.WatchdogTimeout(200).Micros())
}
