package core

import "errors"

var ErrSmartdogPeriod = errors.New("smartdog alarm must fire before the watchdog timeout")

// Smartdog pairs the hardware watchdog with an alarm that fires shortly
// before it. If the main loop stops calling Reset, the alarm reports the
// handler that was running before the watchdog resets the chip.
type Smartdog struct {
	rt      *Runtime
	wdt     WatchdogHAL
	alarm   *Alarm
	timeout WatchdogTimeout
	onDeath func(last uint16)
	on      bool
	fired   bool
}

// NewSmartdog builds a smartdog whose alarm runs on timer with the given
// timing. The alarm period must be shorter than timeout.
func NewSmartdog(rt *Runtime, wdt WatchdogHAL, timer TimerHAL, timing Timing, timeout WatchdogTimeout, onDeath func(last uint16)) (*Smartdog, error) {
	if timing.PeriodNs >= uint64(timeout.Micros())*1000 {
		return nil, ErrSmartdogPeriod
	}

	s := &Smartdog{
		rt:      rt,
		wdt:     wdt,
		timeout: timeout,
		onDeath: onDeath,
	}
	alarm, err := NewAlarm(rt.Vectors, timer, timing, s.death)
	if err != nil {
		return nil, err
	}
	s.alarm = alarm
	return s, nil
}

// death is the alarm ISR. It masks itself so one stall is reported once.
func (s *Smartdog) death() {
	state := disableInterrupts()
	s.alarm.hal.SetCompareInterrupt(false)
	s.fired = true
	restoreInterrupts(state)

	last := s.rt.Activity.Current()
	s.rt.Trace.Record(TraceDeathAlarm, last, s.timeout.Micros())
	if s.onDeath != nil {
		s.onDeath(last)
	}
}

// On starts the watchdog and the alarm
func (s *Smartdog) On() {
	state := disableInterrupts()
	s.on = true
	s.fired = false
	s.wdt.Enable(s.timeout)
	s.alarm.reset()
	s.alarm.hal.SetCompareInterrupt(true)
	restoreInterrupts(state)
}

// Off stops the watchdog and the alarm
func (s *Smartdog) Off() {
	state := disableInterrupts()
	s.on = false
	s.alarm.hal.SetCompareInterrupt(false)
	s.wdt.Disable()
	restoreInterrupts(state)
}

// Reset feeds the watchdog and restarts the alarm period. Call it from the
// main loop. The death alarm masks itself after reporting a stall; Reset
// re-arms it so the next stall is reported too.
func (s *Smartdog) Reset() {
	state := disableInterrupts()
	s.wdt.Feed()
	s.alarm.reset()
	if s.on {
		s.alarm.hal.SetCompareInterrupt(true)
	}
	restoreInterrupts(state)
}

// Fired reports whether the death alarm went off since the last On
func (s *Smartdog) Fired() bool {
	state := disableInterrupts()
	f := s.fired
	restoreInterrupts(state)
	return f
}

// Alarm returns the alarm guarding the watchdog
func (s *Smartdog) Alarm() *Alarm {
	return s.alarm
}
