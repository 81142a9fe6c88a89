// Package monitor follows the diagnostic reports of a running board.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"avrcoop/core"
	"avrcoop/host/serial"
	"avrcoop/protocol"
)

var ErrNotConnected = errors.New("not connected to board")

// Event is one report received from the board
type Event struct {
	Time    time.Time
	Seq     uint8
	ID      uint16
	Message any // protocol.Status, protocol.Overflow, ...
}

// Name returns the message name of the event
func (e Event) Name() string {
	return protocol.MessageName(e.ID)
}

// Monitor is a connection to a board running the diagnostic reporter
type Monitor struct {
	transport *protocol.HostTransport
	log       *logiface.Logger[logiface.Event]

	mu       sync.Mutex
	names    map[uint16]string
	status   protocol.Status
	hasStat  bool
	trace    []protocol.TraceRecord
	waiters  []chan protocol.Status
	received int

	events chan Event
}

// NewLogger returns the JSON logger used by the monitor
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// New starts monitoring a board connected through port. A nil logger
// discards everything.
func New(port io.ReadWriteCloser, logger *logiface.Logger[logiface.Event]) *Monitor {
	if logger == nil {
		logger = NewLogger(io.Discard, logiface.LevelDisabled)
	}
	return &Monitor{
		transport: protocol.NewHostTransport(port),
		log:       logger,
		names:     make(map[uint16]string),
		events:    make(chan Event, 64),
	}
}

// Connect opens the serial port described by cfg and monitors it
func Connect(cfg *serial.Config, logger *logiface.Logger[logiface.Event]) (*Monitor, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return New(port, logger), nil
}

// Events delivers every report after it has been logged. When the consumer
// falls behind, new events are dropped.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run handles reports until ctx is done or the port closes
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.transport.Done():
			return nil
		case err := <-m.transport.Errors():
			m.log.Warning().Err(err).Log("link error")
		case msg := <-m.transport.Messages():
			m.handle(msg)
		}
	}
}

func (m *Monitor) handle(msg protocol.Message) {
	decoded, err := msg.Decode()
	if err != nil {
		m.log.Warning().Err(err).Str("message", msg.Name()).Log("undecodable message")
		return
	}

	m.mu.Lock()
	m.received++
	m.mu.Unlock()

	switch v := decoded.(type) {
	case protocol.Status:
		m.setStatus(v)
		m.log.Info().
			Uint64("clock", uint64(v.Clock)).
			Uint64("period_us", uint64(v.PeriodUs)).
			Int("pending", int(v.Pending)).
			Uint64("dropped", uint64(v.Dropped)).
			Str("current", m.HandlerName(v.Current)).
			Int("tasks", int(v.TasksActive)).
			Int("capacity", int(v.TasksCapacity)).
			Uint64("rejected", uint64(v.TasksRejected)).
			Log("status")
	case protocol.Overflow:
		m.log.Warning().
			Str("current", m.HandlerName(v.Current)).
			Uint64("dropped", uint64(v.Dropped)).
			Log("dispatcher overflow")
	case protocol.SchedulerFull:
		m.log.Warning().
			Str("handler", m.HandlerName(v.Handler)).
			Uint64("rejected", uint64(v.Rejected)).
			Log("scheduler full")
	case protocol.DeathAlarm:
		m.log.Err().
			Str("last", m.HandlerName(v.Last)).
			Uint64("timeout_us", uint64(v.TimeoutUs)).
			Log("death alarm")
	case protocol.EEPROMDone:
		m.log.Info().
			Int("addr", int(v.Addr)).
			Log("eeprom write done")
	case protocol.HandlerName:
		m.mu.Lock()
		m.names[v.ID] = v.Name
		m.mu.Unlock()
		m.log.Debug().
			Int("id", int(v.ID)).
			Str("name", v.Name).
			Log("handler")
	case protocol.TraceRecord:
		m.mu.Lock()
		m.trace = append(m.trace, v)
		m.mu.Unlock()
		m.log.Info().
			Str("kind", core.TraceKindName(v.Kind)).
			Str("handler", m.HandlerName(v.ID)).
			Uint64("clock", uint64(v.Clock)).
			Uint64("value", uint64(v.Value)).
			Log("trace")
	default:
		m.log.Debug().Str("message", msg.Name()).Log("ignored")
		return
	}

	select {
	case m.events <- Event{Time: time.Now(), Seq: msg.Seq, ID: msg.ID, Message: decoded}:
	default:
	}
}

func (m *Monitor) setStatus(s protocol.Status) {
	m.mu.Lock()
	m.status = s
	m.hasStat = true
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		w <- s
	}
}

// HandlerName translates a handler ID into the name the board registered
func (m *Monitor) HandlerName(id uint16) string {
	switch id {
	case core.NoHandler:
		return "none"
	case core.AnonymousHandler:
		return "anonymous"
	}
	m.mu.Lock()
	name, ok := m.names[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	return name
}

// Handlers returns a copy of the handler name table
func (m *Monitor) Handlers() map[uint16]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make(map[uint16]string, len(m.names))
	for id, name := range m.names {
		names[id] = name
	}
	return names
}

// LastStatus returns the most recent Status report
func (m *Monitor) LastStatus() (protocol.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.hasStat
}

// Trace returns the trace records received so far
func (m *Monitor) Trace() []protocol.TraceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.TraceRecord(nil), m.trace...)
}

// Received returns the number of reports handled
func (m *Monitor) Received() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// RequestStatus asks the board for a Status report
func (m *Monitor) RequestStatus() error {
	return m.request(protocol.MsgGetStatus)
}

// RequestHandlers asks the board for its handler names
func (m *Monitor) RequestHandlers() error {
	return m.request(protocol.MsgListHandlers)
}

// RequestTrace asks the board for its post-mortem ring
func (m *Monitor) RequestTrace() error {
	m.mu.Lock()
	m.trace = nil
	m.mu.Unlock()
	return m.request(protocol.MsgDumpTrace)
}

func (m *Monitor) request(id uint16) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	if err := m.transport.Request(id); err != nil {
		return fmt.Errorf("failed to send %s: %w", protocol.MessageName(id), err)
	}
	return nil
}

// Status requests a report and waits for it. Run must be active.
func (m *Monitor) Status(ctx context.Context) (protocol.Status, error) {
	w := make(chan protocol.Status, 1)
	m.mu.Lock()
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	if err := m.RequestStatus(); err != nil {
		return protocol.Status{}, err
	}

	select {
	case s := <-w:
		return s, nil
	case <-ctx.Done():
		return protocol.Status{}, ctx.Err()
	}
}

// Resyncs returns how many times framing from the board was lost
func (m *Monitor) Resyncs() int {
	return m.transport.Resyncs()
}

// Close closes the connection to the board
func (m *Monitor) Close() error {
	return m.transport.Close()
}
