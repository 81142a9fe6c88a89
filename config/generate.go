package config

import (
	"bytes"
	"fmt"
	"text/template"

	"golang.org/x/tools/imports"

	"avrcoop/core"
)

// GeneratedFile is the default name of the generated constants file
const GeneratedFile = "zz_board.go"

var boardTemplate = template.Must(template.New("board").Parse(`{{with .Board.BuildTags}}//go:build {{.}}

{{end}}// Code generated by coopmon gen; DO NOT EDIT.

package {{.Board.Package}}

import "avrcoop/core"

// Board {{printf "%q" .Board.Name}}
const (
	BoardName = {{printf "%q" .Board.Name}}
	CPUHz     = {{.Board.CPUHz}}
	BaudRate  = {{.Board.Baud}}

	ClockPeriodUs    = {{.Clock.RequestedUs}} // actual {{.Clock.PeriodNs}}ns
	SmartdogPeriodUs = {{.Smartdog.RequestedUs}} // actual {{.Smartdog.PeriodNs}}ns

	SchedulerCapacity = {{.Board.Scheduler.Capacity}}
	BlinkTicks        = {{.BlinkTicks}}
)

// Timer settings checked when this file was generated
var (
	ClockTiming = core.Timing{
		CPUHz:       {{.Clock.CPUHz}},
		RequestedUs: {{.Clock.RequestedUs}},
		Prescaler:   {{.Clock.Prescaler}},
		Compare:     {{.Clock.Compare}},
		PeriodNs:    {{.Clock.PeriodNs}},
	}

	SmartdogTiming = core.Timing{
		CPUHz:       {{.Smartdog.CPUHz}},
		RequestedUs: {{.Smartdog.RequestedUs}},
		Prescaler:   {{.Smartdog.Prescaler}},
		Compare:     {{.Smartdog.Compare}},
		PeriodNs:    {{.Smartdog.PeriodNs}},
	}

	SmartdogTimeout = core.{{.TimeoutName}}
)

// Clock and scheduler widths
type (
	ClockTicks = uint{{.Board.Scheduler.ClockBits}}
	DelayTicks = uint{{.Board.Scheduler.DelayBits}}
)
`))

var timeoutNames = map[core.WatchdogTimeout]string{
	core.Watchdog16ms:  "Watchdog16ms",
	core.Watchdog32ms:  "Watchdog32ms",
	core.Watchdog64ms:  "Watchdog64ms",
	core.Watchdog128ms: "Watchdog128ms",
	core.Watchdog256ms: "Watchdog256ms",
	core.Watchdog512ms: "Watchdog512ms",
	core.Watchdog1s:    "Watchdog1s",
	core.Watchdog2s:    "Watchdog2s",
}

// Generate renders the Go constants file for b. The board is validated
// first, so generation fails on an infeasible configuration.
func Generate(b *Board) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	clock, _ := b.ClockTiming()
	smartdog, _ := b.SmartdogTiming()
	timeout, _ := ParseTimeout(b.Smartdog.Timeout)

	var buf bytes.Buffer
	err := boardTemplate.Execute(&buf, struct {
		Board       *Board
		Clock       core.Timing
		Smartdog    core.Timing
		TimeoutName string
		BlinkTicks  uint32
	}{
		Board:       b,
		Clock:       clock,
		Smartdog:    smartdog,
		TimeoutName: timeoutNames[timeout],
		BlinkTicks:  b.BlinkTicks(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render board: %w", err)
	}

	src, err := imports.Process(GeneratedFile, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to format %s: %w", GeneratedFile, err)
	}
	return src, nil
}
