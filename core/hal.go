package core

// Waveform generation mode of a timer
type Waveform uint8

const (
	WaveformNormal         Waveform = iota // count to the top of the counter and wrap
	WaveformClearOnCompare                 // clear the counter on compare match (CTC)
)

// OutputMode of the compare output pin
type OutputMode uint8

const (
	OutputDisconnected OutputMode = iota
	OutputToggle
	OutputClear
	OutputSet
)

// TimerHAL is the abstract timer/comparator channel the Alarm programs.
// Platform-specific implementations map it onto control, counter, compare,
// interrupt mask and interrupt flag registers.
type TimerHAL interface {
	// CounterBits is the width of the counter and compare registers (8 or 16)
	CounterBits() uint8

	// Prescalers lists the clock dividers the timer supports
	Prescalers() []Prescaler

	// Configure writes the control register fields
	Configure(p Prescaler, w Waveform, o OutputMode)

	// Prescaler reads back the configured divider
	Prescaler() Prescaler

	SetCounter(v uint16)
	Counter() uint16

	SetCompare(v uint16)
	Compare() uint16

	// SetCompareInterrupt sets the compare-match enable bit of the mask register
	SetCompareInterrupt(enabled bool)
	CompareInterruptEnabled() bool

	// ClearCompareFlag writes 1 to the compare-match flag, clearing it
	ClearCompareFlag()
	CompareFlag() bool

	// Vector is the interrupt vector raised on compare match
	Vector() Vector
}

// WatchdogTimeout selects the hardware watchdog period
type WatchdogTimeout uint8

const (
	Watchdog16ms WatchdogTimeout = iota
	Watchdog32ms
	Watchdog64ms
	Watchdog128ms
	Watchdog256ms
	Watchdog512ms
	Watchdog1s
	Watchdog2s
)

// Micros returns the nominal timeout in microseconds
func (t WatchdogTimeout) Micros() uint32 {
	if t > Watchdog2s {
		t = Watchdog2s
	}
	return 16000 << t
}

// WatchdogHAL controls the hardware watchdog
type WatchdogHAL interface {
	Enable(timeout WatchdogTimeout)
	Disable()
	Feed()
}

// EEPROMHAL is the byte-wide EEPROM controller with a ready interrupt
type EEPROMHAL interface {
	// Busy reports whether a write is still in progress
	Busy() bool

	Read(addr uint16) byte

	// StartWrite begins writing b and arms the ready interrupt
	StartWrite(addr uint16, b byte)

	// StopInterrupt disarms the ready interrupt
	StopInterrupt()

	// Size is the number of addressable bytes
	Size() uint16

	Vector() Vector
}
