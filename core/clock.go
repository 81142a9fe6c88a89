package core

import "golang.org/x/exp/constraints"

// TimeSource provides the current tick count
type TimeSource[T constraints.Unsigned] interface {
	Now() T
}

// Clock is a logical clock advanced by one tick per alarm period.
// The counter wraps at the width of T.
type Clock[T constraints.Unsigned] struct {
	alarm *Alarm
	ticks T
}

// NewClock builds a clock on hal with the given timing and starts it
func NewClock[T constraints.Unsigned](vectors *Vectors, hal TimerHAL, timing Timing) (*Clock[T], error) {
	c := &Clock[T]{}
	alarm, err := NewAlarm(vectors, hal, timing, c.tick)
	if err != nil {
		return nil, err
	}
	c.alarm = alarm
	alarm.Start()
	return c, nil
}

// ClockFor selects the timing for periodUs and builds the clock
func ClockFor[T constraints.Unsigned](vectors *Vectors, hal TimerHAL, cpuHz, periodUs uint32) (*Clock[T], error) {
	timing, err := SelectTiming(cpuHz, periodUs, hal.CounterBits(), hal.Prescalers())
	if err != nil {
		return nil, err
	}
	return NewClock[T](vectors, hal, timing)
}

// tick is the alarm ISR. Interrupts are enabled again once the counter is
// updated so longer handlers on other vectors are not held off.
func (c *Clock[T]) tick() {
	state := disableInterrupts()
	c.ticks++
	restoreInterrupts(state)
	enableInterrupts()
}

// Now returns the tick count. The counter may be wider than the machine
// word, so the copy is made with interrupts disabled.
func (c *Clock[T]) Now() T {
	state := disableInterrupts()
	t := c.ticks
	restoreInterrupts(state)
	return t
}

// PeriodUs returns the requested tick period
func (c *Clock[T]) PeriodUs() uint32 {
	return c.alarm.PeriodUs()
}

// Alarm returns the alarm driving the clock
func (c *Clock[T]) Alarm() *Alarm {
	return c.alarm
}
