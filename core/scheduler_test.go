package core_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrcoop/core"
	"avrcoop/sim"
)

// manualClock is a TimeSource the test advances by hand
type manualClock struct {
	now atomic.Uint32
}

func (c *manualClock) Now() uint32 { return c.now.Load() }

func (c *manualClock) set(v uint32) { c.now.Store(v) }

func TestSchedulerWidths(t *testing.T) {
	_, err := core.NewScheduler[uint16, uint16](&wideClock{}, 4)
	assert.True(t, errors.Is(err, core.ErrInTimeTooWide))

	_, err = core.NewScheduler[uint32, uint8](&manualClock{}, 0)
	assert.True(t, errors.Is(err, core.ErrCapacity))

	_, err = core.NewScheduler[uint32, uint8](&manualClock{}, 256)
	assert.True(t, errors.Is(err, core.ErrCapacity))

	s, err := core.NewScheduler[uint32, uint16](&manualClock{}, 255)
	require.NoError(t, err)
	assert.Equal(t, 255, s.Capacity())
}

type wideClock struct{}

func (wideClock) Now() uint16 { return 0 }

func TestSchedulerDeadline(t *testing.T) {
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint8](clock, 4)
	require.NoError(t, err)

	// every start tick across two wraps of the 9-bit stored deadline, and
	// delays up to just under half the range of uint8
	for start := uint32(0); start < 1100; start += 7 {
		for _, delay := range []uint8{0, 1, 5, 100, 127} {
			clock.set(start)
			fired := 0
			var at uint32
			require.True(t, s.RunIn(core.Command{Handle: core.Func(func(uint16) {
				fired++
				at = clock.Now()
			})}, delay))

			for now := start; now <= start+uint32(delay)+2; now++ {
				clock.set(now)
				s.Invoke()
			}

			require.Equal(t, 1, fired, "start=%d delay=%d", start, delay)
			require.Equal(t, start+uint32(delay), at, "start=%d delay=%d", start, delay)
			require.Zero(t, s.Active())
		}
	}
}

func TestSchedulerClockWraparound(t *testing.T) {
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint16](clock, 2)
	require.NoError(t, err)

	clock.set(0xFFFFFFF0)
	fired := false
	require.True(t, s.RunIn(core.Command{Handle: core.Func(func(uint16) { fired = true })}, 0x20))

	for now := uint32(0xFFFFFFF0); now != 0x10; now++ {
		clock.set(now)
		s.Invoke()
		require.False(t, fired, "fired early at %#x", now)
	}
	clock.set(0x10)
	s.Invoke()
	assert.True(t, fired)
}

func TestSchedulerEndToEnd(t *testing.T) {
	rt := core.NewRuntime()
	timer := sim.NewTimer1(rt.Vectors)

	clock, err := core.ClockFor[uint32](rt.Vectors, timer, cpuHz, 1000)
	require.NoError(t, err)

	s, err := core.NewScheduler[uint32, uint16](clock, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), s.PeriodUs())

	var firedAt []uint32
	printCmd := rt.Register("print", func(uint16) { firedAt = append(firedAt, clock.Now()) })

	require.Equal(t, uint32(0), clock.Now())
	require.True(t, s.RunIn(core.Command{Handle: printCmd}, 5))

	for tick := 0; tick <= 10; tick++ {
		require.Equal(t, uint32(tick), clock.Now())
		s.Invoke()
		s.Invoke()
		if tick < 5 {
			require.Empty(t, firedAt, "fired before tick 5")
		}
		timer.StepPeriods(1)
	}

	assert.Equal(t, []uint32{5}, firedAt)
}

func TestSchedulerCapacity(t *testing.T) {
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint16](clock, 3)
	require.NoError(t, err)

	var rejectedID []uint16
	s.SetRejectHandler(core.Func(func(id uint16) { rejectedID = append(rejectedID, id) }))

	var fired []uint16
	reg := core.NewHandlerRegistry()
	h := reg.Register("task", func(p uint16) { fired = append(fired, p) })

	for i := uint16(0); i < 3; i++ {
		require.True(t, s.RunIn(core.Command{Handle: h, Parameter: i}, 10+i))
	}
	assert.Equal(t, 3, s.Active())

	assert.False(t, s.RunIn(core.Command{Handle: h, Parameter: 99}, 1))
	assert.Equal(t, uint32(1), s.Rejected())
	assert.Equal(t, []uint16{h.ID}, rejectedID)
	assert.Equal(t, 3, s.Active())

	// the existing tasks are intact
	clock.set(20)
	assert.Equal(t, 3, s.Invoke())
	assert.Equal(t, []uint16{0, 1, 2}, fired)
}

func TestSchedulerSlotReuse(t *testing.T) {
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint8](clock, 1)
	require.NoError(t, err)

	count := 0
	cmd := core.Command{Handle: core.Func(func(uint16) { count++ })}

	require.True(t, s.RunIn(cmd, 1))
	assert.False(t, s.RunIn(cmd, 1))

	clock.set(1)
	assert.Equal(t, 1, s.Invoke())
	assert.Zero(t, s.Active())

	require.True(t, s.RunIn(cmd, 1))
	clock.set(2)
	assert.Equal(t, 1, s.Invoke())
	assert.Equal(t, 2, count)
}

func TestSchedulerSelfReschedule(t *testing.T) {
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint8](clock, 1)
	require.NoError(t, err)

	var times []uint32
	var blink core.Handle
	blink = core.Func(func(p uint16) {
		times = append(times, clock.Now())
		if len(times) < 4 {
			require.True(t, s.RunIn(core.Command{Handle: blink, Parameter: p}, uint8(p)))
		}
	})

	require.True(t, s.RunIn(core.Command{Handle: blink, Parameter: 3}, 3))
	for now := uint32(0); now < 20; now++ {
		clock.set(now)
		s.Invoke()
	}

	assert.Equal(t, []uint32{3, 6, 9, 12}, times)
}

func TestSchedulerIndexOrder(t *testing.T) {
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint8](clock, 4)
	require.NoError(t, err)

	var order []uint16
	h := core.Func(func(p uint16) { order = append(order, p) })

	// later deadlines in lower slots; all due together
	require.True(t, s.RunIn(core.Command{Handle: h, Parameter: 0}, 9))
	require.True(t, s.RunIn(core.Command{Handle: h, Parameter: 1}, 3))
	require.True(t, s.RunIn(core.Command{Handle: h, Parameter: 2}, 6))

	clock.set(10)
	assert.Equal(t, 3, s.Invoke())
	assert.Equal(t, []uint16{0, 1, 2}, order)
}

func TestSchedulerTrack(t *testing.T) {
	rt := core.NewRuntime()
	clock := &manualClock{}
	s, err := core.NewScheduler[uint32, uint8](clock, 2)
	require.NoError(t, err)
	s.Track(rt.Activity)

	var inside uint16
	h := rt.Register("probe", func(uint16) { inside = rt.Dispatcher.Current() })

	require.True(t, s.RunIn(core.Command{Handle: h}, 0))
	s.Invoke()

	assert.Equal(t, h.ID, inside)
	assert.Equal(t, core.NoHandler, rt.Dispatcher.Current())
}

func TestSchedulerConcurrentClaims(t *testing.T) {
	clock := &manualClock{}
	const workers, each = 8, 16
	s, err := core.NewScheduler[uint32, uint16](clock, workers*each)
	require.NoError(t, err)

	var fired atomic.Int32
	h := core.Func(func(uint16) { fired.Add(1) })

	var ok atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if s.RunIn(core.Command{Handle: h}, 1) {
					ok.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(workers*each), ok.Load())
	assert.Equal(t, workers*each, s.Active())
	assert.False(t, s.RunIn(core.Command{Handle: h}, 1))

	clock.set(1)
	assert.Equal(t, workers*each, s.Invoke())
	assert.Equal(t, int32(workers*each), fired.Load())
}

func TestSchedulerNoClockPeriod(t *testing.T) {
	s, err := core.NewScheduler[uint32, uint8](&manualClock{}, 1)
	require.NoError(t, err)
	assert.Zero(t, s.PeriodUs())
}
