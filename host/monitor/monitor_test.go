package monitor

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrcoop/core"
	"avrcoop/diag"
	"avrcoop/protocol"
)

// board runs a runtime with a diagnostic reporter on the far end of a pipe
type board struct {
	rt       *core.Runtime
	reporter *diag.Reporter
	conn     net.Conn
	out      *protocol.ScratchOutput
	in       *protocol.FifoBuffer
	blink    core.Handle
}

func newBoard(conn net.Conn) *board {
	b := &board{
		rt:   core.NewRuntime(),
		conn: conn,
		out:  protocol.NewScratchOutput(),
		in:   protocol.NewFifoBuffer(256),
	}
	b.reporter = diag.NewReporter(b.rt, b.out)
	b.reporter.SetInput(b.in)
	b.reporter.SetClock(func() uint32 { return 500 }, 1000)
	b.blink = b.rt.Register("blink", func(uint16) {})
	return b
}

// serve answers host requests until the pipe closes
func (b *board) serve() {
	buf := make([]byte, 64)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			return
		}
		b.in.Write(buf[:n])
		b.rt.Poll()
		b.flush()
	}
}

func (b *board) flush() {
	if data := b.out.Result(); len(data) > 0 {
		_, _ = b.conn.Write(append([]byte(nil), data...))
	}
	b.out.Reset()
}

// syncBuffer guards log output written by the Run goroutine
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func startMonitor(t *testing.T) (*Monitor, *board, *syncBuffer) {
	t.Helper()

	hostSide, boardSide := net.Pipe()
	b := newBoard(boardSide)
	go b.serve()

	logs := &syncBuffer{}
	m := New(hostSide, NewLogger(logs, logiface.LevelDebug))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = m.Close()
		_ = boardSide.Close()
	})
	return m, b, logs
}

func waitEvent(t *testing.T, m *Monitor, id uint16) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.ID == id {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", protocol.MessageName(id))
		}
	}
}

func TestMonitorStatus(t *testing.T) {
	m, _, logs := startMonitor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), status.Clock)
	assert.Equal(t, uint32(1000), status.PeriodUs)
	assert.Equal(t, core.NoHandler, status.Current)

	last, ok := m.LastStatus()
	assert.True(t, ok)
	assert.Equal(t, status, last)

	waitEvent(t, m, protocol.MsgStatus)
	assert.Contains(t, logs.String(), `"msg":"status"`)
	assert.Contains(t, logs.String(), `"current":"none"`)
}

func TestMonitorHandlerNames(t *testing.T) {
	m, b, _ := startMonitor(t)

	assert.Equal(t, "#1", m.HandlerName(b.blink.ID))

	require.NoError(t, m.RequestHandlers())
	for len(m.Handlers()) < 2 {
		waitEvent(t, m, protocol.MsgHandlerName)
	}

	assert.Equal(t, "blink", m.HandlerName(b.blink.ID))
	assert.Equal(t, "eeprom_done", m.HandlerName(b.reporter.EEPROMDone().ID))
	assert.Equal(t, "anonymous", m.HandlerName(core.AnonymousHandler))
}

func TestMonitorTrace(t *testing.T) {
	m, b, logs := startMonitor(t)

	b.rt.Trace.Record(core.TraceSchedulerFull, b.blink.ID, 3)
	require.NoError(t, m.RequestTrace())

	ev := waitEvent(t, m, protocol.MsgTraceRecord)
	assert.Equal(t, protocol.TraceRecord{Kind: core.TraceSchedulerFull, ID: b.blink.ID, Clock: 500, Value: 3}, ev.Message)
	assert.Len(t, m.Trace(), 1)
	assert.True(t, strings.Contains(logs.String(), `"kind":"SCHED_FULL"`))
}

func TestMonitorLogsFaults(t *testing.T) {
	hostSide, boardSide := net.Pipe()
	defer boardSide.Close()

	logs := &syncBuffer{}
	m := New(hostSide, NewLogger(logs, logiface.LevelInformational))
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	payload := protocol.NewScratchOutput()
	protocol.DeathAlarm{Last: core.NoHandler, TimeoutUs: 32000}.Encode(payload)
	protocol.Overflow{Current: 4, Dropped: 12}.Encode(payload)
	frame, err := protocol.AppendFrame(nil, protocol.SeqDest, payload.Result())
	require.NoError(t, err)
	go func() { _, _ = boardSide.Write(frame) }()

	waitEvent(t, m, protocol.MsgOverflow)
	out := logs.String()
	assert.Contains(t, out, `"msg":"death alarm"`)
	assert.Contains(t, out, `"last":"none"`)
	assert.Contains(t, out, `"msg":"dispatcher overflow"`)
	assert.Contains(t, out, `"current":"#4"`)
	assert.Equal(t, 2, m.Received())
}

func TestMonitorRunStopsWhenPortCloses(t *testing.T) {
	hostSide, boardSide := net.Pipe()
	m := New(hostSide, nil)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	require.NoError(t, m.Close())
	_ = boardSide.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.ErrorIs(t, m.RequestStatus(), protocol.ErrTransportClosed)
}
