package core

// Alarm is a hardware timer channel raising a periodic compare-match
// interrupt. The timer runs in clear-on-compare mode with the output pin
// disconnected; the interrupt stays masked until Enable or Start.
type Alarm struct {
	vectors *Vectors
	hal     TimerHAL
	timing  Timing
	isr     ISR
}

// NewAlarm programs hal with a timing produced by SelectTiming (or by the
// board generator) and binds isr to the timer's vector.
func NewAlarm(vectors *Vectors, hal TimerHAL, timing Timing, isr ISR) (*Alarm, error) {
	if !timing.Fits(hal.CounterBits(), hal.Prescalers()) {
		return nil, &TimingError{
			CPUHz:       timing.CPUHz,
			PeriodUs:    timing.RequestedUs,
			CounterBits: hal.CounterBits(),
			Err:         ErrTimingMismatch,
		}
	}

	a := &Alarm{
		vectors: vectors,
		hal:     hal,
		timing:  timing,
		isr:     isr,
	}

	state := disableInterrupts()
	hal.SetCompareInterrupt(false)
	a.program(timing)
	restoreInterrupts(state)

	vectors.Bind(hal.Vector(), isr)
	return a, nil
}

// AlarmFor selects the timing for periodUs at cpuHz and constructs the alarm
func AlarmFor(vectors *Vectors, hal TimerHAL, cpuHz, periodUs uint32, isr ISR) (*Alarm, error) {
	timing, err := SelectTiming(cpuHz, periodUs, hal.CounterBits(), hal.Prescalers())
	if err != nil {
		return nil, err
	}
	return NewAlarm(vectors, hal, timing, isr)
}

// program writes compare and control registers. Caller holds the
// critical section.
func (a *Alarm) program(t Timing) {
	a.hal.SetCompare(t.Compare)
	a.hal.Configure(t.Prescaler, WaveformClearOnCompare, OutputDisconnected)
}

// Start restarts the period from zero and unmasks the interrupt
func (a *Alarm) Start() {
	state := disableInterrupts()
	a.reset()
	a.hal.SetCompareInterrupt(true)
	restoreInterrupts(state)
}

// Reset restarts the current period without changing the interrupt mask
func (a *Alarm) Reset() {
	state := disableInterrupts()
	a.reset()
	restoreInterrupts(state)
}

func (a *Alarm) reset() {
	a.hal.SetCounter(0)
	a.hal.ClearCompareFlag()
}

// Enable unmasks the compare-match interrupt
func (a *Alarm) Enable() {
	state := disableInterrupts()
	a.hal.SetCompareInterrupt(true)
	restoreInterrupts(state)
}

// Disable masks the compare-match interrupt. The counter keeps running.
func (a *Alarm) Disable() {
	state := disableInterrupts()
	a.hal.SetCompareInterrupt(false)
	restoreInterrupts(state)
}

// IsEnabled reports whether the compare-match interrupt is unmasked
func (a *Alarm) IsEnabled() bool {
	state := disableInterrupts()
	on := a.hal.CompareInterruptEnabled()
	restoreInterrupts(state)
	return on
}

// SetHandler masks the interrupt, swaps the ISR and unmasks it, all in one
// critical section. The alarm is enabled afterwards whatever its state was.
func (a *Alarm) SetHandler(isr ISR) {
	state := disableInterrupts()
	a.hal.SetCompareInterrupt(false)
	a.isr = isr
	a.vectors.swap(a.hal.Vector(), isr)
	a.hal.SetCompareInterrupt(true)
	restoreInterrupts(state)
}

// PeriodUs returns the requested period
func (a *Alarm) PeriodUs() uint32 {
	return a.timing.RequestedUs
}

// Timing returns the prescaler and compare value in use
func (a *Alarm) Timing() Timing {
	return a.timing
}

// SetPeriod reprograms the alarm for a new period at run time and returns
// the period actually produced. On error the alarm keeps its old timing.
func (a *Alarm) SetPeriod(periodUs uint32) (uint32, error) {
	t, err := SelectTiming(a.timing.CPUHz, periodUs, a.hal.CounterBits(), a.hal.Prescalers())
	if err != nil {
		return 0, err
	}

	state := disableInterrupts()
	a.program(t)
	a.reset()
	a.timing = t
	restoreInterrupts(state)

	return t.PeriodUs(), nil
}

// ActualPeriodUs computes the period from the programmed registers
func (a *Alarm) ActualPeriodUs() uint32 {
	state := disableInterrupts()
	p := a.hal.Prescaler()
	c := a.hal.Compare()
	restoreInterrupts(state)

	if a.timing.CPUHz == 0 || p == 0 {
		return 0
	}
	ns := periodNs(a.timing.CPUHz, p, uint64(c)+1)
	return uint32((ns + 500) / 1000)
}
