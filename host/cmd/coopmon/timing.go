package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"avrcoop/config"
	"avrcoop/core"
)

var (
	timingOpts = struct {
		cpuHz uint32
		timer string
	}{}

	timingCmd = &cobra.Command{
		Use:   "timing <period-us>",
		Short: "Show the prescaler and compare value chosen for a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var periodUs uint32
			if _, err := fmt.Sscan(args[0], &periodUs); err != nil {
				return fmt.Errorf("invalid period %q: %w", args[0], err)
			}
			info, err := config.LookupTimer(timingOpts.timer)
			if err != nil {
				return err
			}
			return printTiming(cmd.OutOrStdout(), timingOpts.cpuHz, periodUs, info)
		},
	}
)

func init() {
	timingCmd.Flags().Uint32Var(&timingOpts.cpuHz, "cpu-hz", 16000000, "CPU clock frequency")
	timingCmd.Flags().StringVarP(&timingOpts.timer, "timer", "t", "timer1", "timer (timer0, timer1, timer2)")
}

// printTiming lists every prescaler of the timer and marks the one
// SelectTiming picks
func printTiming(w io.Writer, cpuHz, periodUs uint32, info config.TimerInfo) error {
	best, err := core.SelectTiming(cpuHz, periodUs, info.Bits, info.Prescalers)
	if err != nil && !errors.Is(err, core.ErrInfeasiblePeriod) {
		return err
	}

	fmt.Fprintf(w, "%s (%d-bit) at %d Hz, period %d us\n", info.Name, info.Bits, cpuHz, periodUs)
	fmt.Fprintf(w, "%10s %8s %14s %10s\n", "prescaler", "compare", "period(ns)", "error(ns)")
	for _, p := range info.Prescalers {
		t, perr := core.SelectTiming(cpuHz, periodUs, info.Bits, []core.Prescaler{p})
		if perr != nil {
			fmt.Fprintf(w, "%10d %8s %14s %10s\n", p, "-", "-", "-")
			continue
		}
		mark := ""
		if err == nil && t.Prescaler == best.Prescaler {
			mark = " <"
		}
		fmt.Fprintf(w, "%10d %8d %14d %10d%s\n", p, t.Compare, t.PeriodNs, t.ErrorNs(), mark)
	}

	return err
}
