// Package diag reports runtime faults and status to a host over the framed
// serial link.
//
// Faults are raised in interrupt context, so the hooks only record them.
// Poll, called from the main loop, turns the records into frames.
package diag

import (
	"errors"
	"sync/atomic"

	"avrcoop/core"
	"avrcoop/protocol"
)

var ErrUnknownRequest = errors.New("unknown host request")

// MaxNameLen bounds handler names sent to the host so each fits in one frame
const MaxNameLen = 48

// Reporter owns the device end of the diagnostic link
type Reporter struct {
	rt        *core.Runtime
	transport *protocol.Transport
	input     protocol.InputBuffer

	schedulers []core.SchedulerStats
	clock      func() uint32
	periodUs   atomic.Uint32

	// written from interrupt context
	overflowPending atomic.Bool
	overflowCurrent atomic.Uint32
	fullPending     atomic.Bool
	fullHandler     atomic.Uint32
	deathPending    atomic.Bool
	deathLast       atomic.Uint32
	deathTimeoutUs  atomic.Uint32

	urgent    func([]byte)
	urgentBuf *protocol.ScratchOutput

	eepromDone core.Handle
	sendErrors uint32
}

// NewReporter creates a reporter writing frames to out. It installs itself
// as the dispatcher overflow handler and registers as a runtime poller.
func NewReporter(rt *core.Runtime, out protocol.OutputBuffer) *Reporter {
	r := &Reporter{
		rt:        rt,
		urgentBuf: protocol.NewScratchOutput(),
	}
	r.transport = protocol.NewTransport(out, r.HandleHostMessage)
	r.eepromDone = rt.Register("eeprom_done", r.eepromFinished)

	rt.Dispatcher.SetOverflowHandler(core.Func(r.overflow))
	rt.AddPoller(r.Poll)
	return r
}

// SetInput sets the buffer host frames are read from on every Poll
func (r *Reporter) SetInput(in protocol.InputBuffer) {
	r.input = in
}

// SetClock sets the logical clock reported in Status and stamped on trace
// events, along with its tick period
func (r *Reporter) SetClock(clock func() uint32, periodUs uint32) {
	r.clock = clock
	r.periodUs.Store(periodUs)
	r.rt.Trace.SetClock(clock)
}

// SetUrgentWriter sets a blocking writer used by DeathAlarm. The watchdog
// resets the chip before the main loop runs again, so the alarm frame is
// written directly instead of waiting for Poll.
func (r *Reporter) SetUrgentWriter(w func([]byte)) {
	r.urgent = w
}

// Watch adds a scheduler to the Status totals. Schedulers that accept a
// reject handler report SchedulerFull.
func (r *Reporter) Watch(s core.SchedulerStats) {
	r.schedulers = append(r.schedulers, s)
	if rs, ok := s.(interface{ SetRejectHandler(core.Handle) }); ok {
		rs.SetRejectHandler(core.Func(r.schedulerFull))
	}
}

// EEPROMDone returns the handle to pass as the completion of EEPROM writes
func (r *Reporter) EEPROMDone() core.Handle {
	return r.eepromDone
}

// AdjustPeriod reprograms alarm to periodUs, records the change and
// updates the reported tick period
func (r *Reporter) AdjustPeriod(alarm *core.Alarm, periodUs uint32) (uint32, error) {
	actual, err := alarm.SetPeriod(periodUs)
	if err != nil {
		return 0, err
	}
	r.periodUs.Store(actual)
	r.rt.Trace.Record(core.TracePeriodChange, r.rt.Activity.Current(), actual)
	return actual, nil
}

// overflow runs in the context of the Add that overflowed
func (r *Reporter) overflow(current uint16) {
	r.overflowCurrent.Store(uint32(current))
	r.overflowPending.Store(true)
	r.rt.Trace.Record(core.TraceOverflow, current, r.rt.Dispatcher.Dropped())
}

// schedulerFull runs in the context of the rejected RunIn
func (r *Reporter) schedulerFull(handler uint16) {
	r.fullHandler.Store(uint32(handler))
	r.fullPending.Store(true)
	r.rt.Trace.Record(core.TraceSchedulerFull, handler, r.rejected())
}

// DeathAlarm is the smartdog callback
func (r *Reporter) DeathAlarm(last uint16, timeoutUs uint32) {
	r.deathLast.Store(uint32(last))
	r.deathTimeoutUs.Store(timeoutUs)

	if r.urgent == nil {
		r.deathPending.Store(true)
		return
	}
	r.urgentBuf.Reset()
	err := protocol.EncodeFrame(r.urgentBuf, protocol.SeqDest, func(out protocol.OutputBuffer) {
		protocol.DeathAlarm{Last: last, TimeoutUs: timeoutUs}.Encode(out)
	})
	if err != nil {
		r.deathPending.Store(true)
		return
	}
	r.urgent(r.urgentBuf.Result())
}

// DeathHandler adapts DeathAlarm to the smartdog callback for timeout
func (r *Reporter) DeathHandler(timeout core.WatchdogTimeout) func(last uint16) {
	us := timeout.Micros()
	return func(last uint16) {
		r.DeathAlarm(last, us)
	}
}

func (r *Reporter) eepromFinished(addr uint16) {
	r.rt.Trace.Record(core.TraceEEPROMDone, addr, 0)
	r.send(protocol.EEPROMDone{Addr: addr})
}

// Poll reads pending host requests and sends pending fault reports
func (r *Reporter) Poll() {
	if r.input != nil {
		r.transport.Receive(r.input)
	}

	if r.deathPending.Swap(false) {
		r.send(protocol.DeathAlarm{
			Last:      uint16(r.deathLast.Load()),
			TimeoutUs: r.deathTimeoutUs.Load(),
		})
	}
	if r.overflowPending.Swap(false) {
		r.send(protocol.Overflow{
			Current: uint16(r.overflowCurrent.Load()),
			Dropped: r.rt.Dispatcher.Dropped(),
		})
	}
	if r.fullPending.Swap(false) {
		r.send(protocol.SchedulerFull{
			Handler:  uint16(r.fullHandler.Load()),
			Rejected: r.rejected(),
		})
	}
}

// HandleHostMessage answers one host request
func (r *Reporter) HandleHostMessage(id uint16, args *[]byte) error {
	switch id {
	case protocol.MsgGetStatus:
		r.send(r.Status())
	case protocol.MsgListHandlers:
		r.rt.Handlers.Each(func(id uint16, name string) {
			if len(name) > MaxNameLen {
				name = name[:MaxNameLen]
			}
			r.send(protocol.HandlerName{ID: id, Name: name})
		})
	case protocol.MsgDumpTrace:
		for _, ev := range r.rt.Trace.Snapshot() {
			r.send(protocol.TraceRecord{Kind: ev.Kind, ID: ev.ID, Clock: ev.Clock, Value: ev.Value})
		}
	default:
		return ErrUnknownRequest
	}
	return nil
}

// Status builds a health report from the current runtime state
func (r *Reporter) Status() protocol.Status {
	s := protocol.Status{
		PeriodUs: r.periodUs.Load(),
		Pending:  uint16(r.rt.Dispatcher.Pending()),
		Dropped:  r.rt.Dispatcher.Dropped(),
		Current:  r.rt.Activity.Current(),
	}
	if r.clock != nil {
		s.Clock = r.clock()
	}
	for _, sched := range r.schedulers {
		s.TasksActive += uint16(sched.Active())
		s.TasksCapacity += uint16(sched.Capacity())
		s.TasksRejected += sched.Rejected()
	}
	return s
}

func (r *Reporter) rejected() uint32 {
	var n uint32
	for _, sched := range r.schedulers {
		n += sched.Rejected()
	}
	return n
}

func (r *Reporter) send(m protocol.Encoder) {
	if err := r.transport.Send(m); err != nil {
		r.sendErrors++
		r.rt.Debugln("diag: send failed: " + err.Error())
	}
}

// SendErrors returns how many reports could not be framed
func (r *Reporter) SendErrors() uint32 {
	return r.sendErrors
}

// ReceiveErrors returns how many host messages could not be handled
func (r *Reporter) ReceiveErrors() int {
	return r.transport.Errors()
}
