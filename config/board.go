// Package config describes a board at build time: CPU clock, which timer
// drives the logical clock and the smartdog, and the scheduler sizing.
// Everything is checked before code is generated, so the firmware never
// has to handle an infeasible timer period.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"avrcoop/core"
)

var (
	ErrUnknownTimer    = errors.New("unknown timer")
	ErrTimerShared     = errors.New("clock and smartdog must use different timers")
	ErrUnknownTimeout  = errors.New("unknown watchdog timeout")
	ErrSchedulerWidths = errors.New("scheduler delay width must leave three bits of the clock width")
)

// Board is the contents of a board.yaml
type Board struct {
	Name      string          `yaml:"name"`
	Package   string          `yaml:"package"`
	BuildTags string          `yaml:"build_tags"`
	CPUHz     uint32          `yaml:"cpu_hz"`
	Baud      uint32          `yaml:"baud"`
	Clock     TimerConfig     `yaml:"clock"`
	Smartdog  SmartdogConfig  `yaml:"smartdog"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Blink     BlinkConfig     `yaml:"blink"`
}

// TimerConfig selects a hardware timer and the period it interrupts at
type TimerConfig struct {
	Timer    string `yaml:"timer"`
	PeriodUs uint32 `yaml:"period_us"`
}

// SmartdogConfig sizes the watchdog and its early-warning alarm
type SmartdogConfig struct {
	TimerConfig `yaml:",inline"`
	Timeout     string `yaml:"timeout"`
}

// SchedulerConfig sizes the scheduler task table
type SchedulerConfig struct {
	Capacity  int   `yaml:"capacity"`
	ClockBits uint8 `yaml:"clock_bits"`
	DelayBits uint8 `yaml:"delay_bits"`
}

// BlinkConfig is the heartbeat LED
type BlinkConfig struct {
	PeriodMs uint32 `yaml:"period_ms"`
}

// TimerInfo describes a hardware timer of the part
type TimerInfo struct {
	Name       string
	Bits       uint8
	Prescalers []core.Prescaler
}

// Timers of the ATmega328P
var Timers = []TimerInfo{
	{Name: "timer0", Bits: 8, Prescalers: core.StandardPrescalers},
	{Name: "timer1", Bits: 16, Prescalers: core.StandardPrescalers},
	{Name: "timer2", Bits: 8, Prescalers: core.AsyncPrescalers},
}

// LookupTimer finds a timer by name
func LookupTimer(name string) (TimerInfo, error) {
	for _, t := range Timers {
		if t.Name == strings.ToLower(name) {
			return t, nil
		}
	}
	return TimerInfo{}, fmt.Errorf("%w %q", ErrUnknownTimer, name)
}

var timeouts = map[string]core.WatchdogTimeout{
	"16ms":  core.Watchdog16ms,
	"32ms":  core.Watchdog32ms,
	"64ms":  core.Watchdog64ms,
	"128ms": core.Watchdog128ms,
	"256ms": core.Watchdog256ms,
	"512ms": core.Watchdog512ms,
	"1s":    core.Watchdog1s,
	"2s":    core.Watchdog2s,
}

// ParseTimeout converts "16ms" ... "2s" into a watchdog timeout
func ParseTimeout(s string) (core.WatchdogTimeout, error) {
	t, ok := timeouts[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownTimeout, s)
	}
	return t, nil
}

// Default returns the configuration of an Arduino Uno class board
func Default() *Board {
	b := &Board{}
	b.applyDefaults()
	return b
}

func (b *Board) applyDefaults() {
	if b.Name == "" {
		b.Name = "uno"
	}
	if b.Package == "" {
		b.Package = "main"
	}
	if b.CPUHz == 0 {
		b.CPUHz = 16000000
	}
	if b.Baud == 0 {
		b.Baud = 38400
	}
	if b.Clock.Timer == "" {
		b.Clock.Timer = "timer1"
	}
	if b.Clock.PeriodUs == 0 {
		b.Clock.PeriodUs = 1000
	}
	if b.Smartdog.Timer == "" {
		b.Smartdog.Timer = "timer2"
	}
	if b.Smartdog.PeriodUs == 0 {
		b.Smartdog.PeriodUs = 16000
	}
	if b.Smartdog.Timeout == "" {
		b.Smartdog.Timeout = "32ms"
	}
	if b.Scheduler.Capacity == 0 {
		b.Scheduler.Capacity = 8
	}
	if b.Scheduler.ClockBits == 0 {
		b.Scheduler.ClockBits = 32
	}
	if b.Scheduler.DelayBits == 0 {
		b.Scheduler.DelayBits = 16
	}
	if b.Blink.PeriodMs == 0 {
		b.Blink.PeriodMs = 500
	}
}

// Parse decodes a board description, fills in defaults and validates it
func Parse(data []byte) (*Board, error) {
	b := &Board{}
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("failed to parse board: %w", err)
	}
	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Load reads and parses a board file
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Validate checks that every timer period can be produced and the
// scheduler fits the clock
func (b *Board) Validate() error {
	if _, err := b.ClockTiming(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if _, err := b.SmartdogTiming(); err != nil {
		return fmt.Errorf("smartdog: %w", err)
	}
	if strings.EqualFold(b.Clock.Timer, b.Smartdog.Timer) {
		return ErrTimerShared
	}

	timeout, err := ParseTimeout(b.Smartdog.Timeout)
	if err != nil {
		return fmt.Errorf("smartdog: %w", err)
	}
	smartdog, _ := b.SmartdogTiming()
	if smartdog.PeriodNs >= uint64(timeout.Micros())*1000 {
		return fmt.Errorf("smartdog: %w", core.ErrSmartdogPeriod)
	}

	s := b.Scheduler
	if s.Capacity < 1 || s.Capacity > core.MaxSchedulerTasks {
		return fmt.Errorf("scheduler: %w", core.ErrCapacity)
	}
	if !validWidth(s.ClockBits) || !validWidth(s.DelayBits) {
		return fmt.Errorf("scheduler: widths must be 8, 16, 32 or 64 bits")
	}
	if s.DelayBits+3 > s.ClockBits {
		return fmt.Errorf("scheduler: %w", ErrSchedulerWidths)
	}

	if b.BlinkTicks() == 0 {
		return fmt.Errorf("blink: period shorter than one clock tick")
	}
	if uint64(b.BlinkTicks()) >= uint64(1)<<(s.DelayBits-1) {
		return fmt.Errorf("blink: period does not fit a %d-bit delay", s.DelayBits)
	}
	return nil
}

func validWidth(bits uint8) bool {
	return bits == 8 || bits == 16 || bits == 32 || bits == 64
}

// ClockTiming selects the prescaler and compare value of the clock timer
func (b *Board) ClockTiming() (core.Timing, error) {
	return timingFor(b.CPUHz, b.Clock)
}

// SmartdogTiming selects the prescaler and compare value of the smartdog timer
func (b *Board) SmartdogTiming() (core.Timing, error) {
	return timingFor(b.CPUHz, b.Smartdog.TimerConfig)
}

func timingFor(cpuHz uint32, tc TimerConfig) (core.Timing, error) {
	info, err := LookupTimer(tc.Timer)
	if err != nil {
		return core.Timing{}, err
	}
	return core.SelectTiming(cpuHz, tc.PeriodUs, info.Bits, info.Prescalers)
}

// BlinkTicks converts the blink period to clock ticks
func (b *Board) BlinkTicks() uint32 {
	t, err := b.ClockTiming()
	if err != nil || t.PeriodNs == 0 {
		return 0
	}
	return uint32(uint64(b.Blink.PeriodMs) * 1000000 / t.PeriodNs)
}
