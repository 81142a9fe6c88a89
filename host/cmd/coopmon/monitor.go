package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"

	"avrcoop/core"
	"avrcoop/host/monitor"
	"avrcoop/host/serial"
)

var (
	monitorOpts = struct {
		device      string
		baud        int
		level       string
		interactive bool
		interval    time.Duration
	}{}

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Follow the diagnostic reports of a board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(monitorOpts.level)
			if err != nil {
				return err
			}

			cfg := serial.DefaultConfig(monitorOpts.device)
			cfg.Baud = monitorOpts.baud

			m, err := monitor.Connect(cfg, monitor.NewLogger(cmd.ErrOrStderr(), level))
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if err := m.RequestHandlers(); err != nil {
				return err
			}
			if monitorOpts.interval > 0 {
				go pollStatus(ctx, m, monitorOpts.interval)
			}
			if monitorOpts.interactive {
				go func() {
					interact(ctx, m, cmd.InOrStdin(), cmd.OutOrStdout())
					stop()
				}()
			}

			if err := m.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
)

func init() {
	monitorCmd.Flags().StringVarP(&monitorOpts.device, "device", "d", "/dev/ttyUSB0", "serial device path")
	monitorCmd.Flags().IntVar(&monitorOpts.baud, "baud", serial.DefaultBaud, "baud rate")
	monitorCmd.Flags().StringVarP(&monitorOpts.level, "level", "l", "info", "log level (debug, info, warning, error)")
	monitorCmd.Flags().BoolVarP(&monitorOpts.interactive, "interactive", "i", false, "read commands from stdin")
	monitorCmd.Flags().DurationVar(&monitorOpts.interval, "status-interval", 0, "request a status report at this interval")
}

func parseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return logiface.LevelTrace, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "info":
		return logiface.LevelInformational, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "error", "err":
		return logiface.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func pollStatus(ctx context.Context, m *monitor.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RequestStatus(); err != nil {
				return
			}
		}
	}
}

// board is what the interactive commands need from a monitor
type board interface {
	Status(ctx context.Context) (statusReport, error)
	RequestHandlers() error
	RequestTrace() error
	Handlers() map[uint16]string
	Resyncs() int
}

// interact reads commands from in until it closes or "quit" is entered
func interact(ctx context.Context, m *monitor.Monitor, in io.Reader, out io.Writer) {
	b := monitorBoard{m}
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	for scanner.Scan() {
		if quit := runCommand(ctx, b, scanner.Text(), out); quit {
			return
		}
	}
}

// runCommand executes one interactive command line and reports whether
// the session should end
func runCommand(ctx context.Context, b board, line string, out io.Writer) bool {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "quit", "exit", "q":
		return true

	case "help", "?":
		printHelp(out)

	case "status":
		timeout := time.Second
		if len(args) > 1 {
			if timeout, err = time.ParseDuration(args[1]); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				return false
			}
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s, err := b.Status(ctx)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintln(out, s)

	case "handlers":
		names := b.Handlers()
		ids := make([]int, 0, len(names))
		for id := range names {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "  [%d] %s\n", id, names[uint16(id)])
		}
		if err := b.RequestHandlers(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}

	case "trace":
		if err := b.RequestTrace(); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}

	case "resyncs":
		fmt.Fprintf(out, "%d\n", b.Resyncs())

	default:
		fmt.Fprintf(out, "Unknown command: %s (type 'help' for available commands)\n", args[0])
	}
	return false
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "\nAvailable commands:")
	fmt.Fprintln(out, "  help              - Show this help message")
	fmt.Fprintln(out, "  status [timeout]  - Request and print a status report")
	fmt.Fprintln(out, "  handlers          - Print known handler names and refresh them")
	fmt.Fprintln(out, "  trace             - Request the post-mortem trace (logged)")
	fmt.Fprintln(out, "  resyncs           - Print how often framing was lost")
	fmt.Fprintln(out, "  quit/exit/q       - Exit the program")
	fmt.Fprintln(out)
}

// statusReport formats a status with handler names resolved
type statusReport struct {
	Clock    uint32
	PeriodUs uint32
	Pending  uint16
	Dropped  uint32
	Current  string
	Tasks    string
	Rejected uint32
}

func (s statusReport) String() string {
	return fmt.Sprintf("clock=%d period=%dus pending=%d dropped=%d current=%s tasks=%s rejected=%d",
		s.Clock, s.PeriodUs, s.Pending, s.Dropped, s.Current, s.Tasks, s.Rejected)
}

type monitorBoard struct {
	*monitor.Monitor
}

func (b monitorBoard) Status(ctx context.Context) (statusReport, error) {
	s, err := b.Monitor.Status(ctx)
	if err != nil {
		return statusReport{}, err
	}
	current := b.HandlerName(s.Current)
	if s.Current == core.NoHandler {
		current = "idle"
	}
	return statusReport{
		Clock:    s.Clock,
		PeriodUs: s.PeriodUs,
		Pending:  s.Pending,
		Dropped:  s.Dropped,
		Current:  current,
		Tasks:    fmt.Sprintf("%d/%d", s.TasksActive, s.TasksCapacity),
		Rejected: s.TasksRejected,
	}, nil
}
