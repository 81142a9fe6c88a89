package core

import "sync/atomic"

// DispatcherSlots is the queue size. It matches the range of the uint8
// cursors so they wrap without a modulo; one slot stays empty to tell a
// full queue from an empty one.
const DispatcherSlots = 256

// DispatcherCapacity is the number of commands that can be pending at once
const DispatcherCapacity = DispatcherSlots - 1

// Dispatcher moves deferred calls from interrupt handlers to the main loop.
//
// Any context may Add. Only the main loop may Invoke. When the queue is full
// the oldest pending command is dropped and the overflow handle is called
// with the ID of the handler the main loop was executing at the time.
type Dispatcher struct {
	commands [DispatcherSlots]Command
	head     uint8 // next command to run
	tail     uint8 // next free slot

	overflow Handle
	activity *Activity
	dropped  atomic.Uint32
}

// NewDispatcher creates a dispatcher publishing its running handler to
// activity. A nil activity gets a private tracker.
func NewDispatcher(activity *Activity) *Dispatcher {
	if activity == nil {
		activity = NewActivity()
	}
	return &Dispatcher{activity: activity}
}

// SetOverflowHandler sets the handle called when Add drops a command.
// It runs in the context of the Add call that overflowed.
func (d *Dispatcher) SetOverflowHandler(h Handle) {
	state := disableInterrupts()
	d.overflow = h
	restoreInterrupts(state)
}

// Add queues h to be called with param
func (d *Dispatcher) Add(h Handle, param uint16) {
	d.AddCommand(Command{Handle: h, Parameter: param})
}

// AddCommand queues c. It never blocks and never fails: on overflow the
// oldest command is discarded.
func (d *Dispatcher) AddCommand(c Command) {
	overflowed := false
	var notify Handle

	state := disableInterrupts()
	d.commands[d.tail] = c
	d.tail++
	if d.tail == d.head {
		d.commands[d.head] = Command{}
		d.head++
		overflowed = true
		notify = d.overflow
	}
	restoreInterrupts(state)

	if overflowed {
		d.dropped.Add(1)
		notify.Call(d.activity.Current())
	}
}

// Invoke runs at most one pending command and reports whether it took one
// from the queue. The command runs outside the critical section so it may
// Add more work, which is delivered by a later Invoke.
func (d *Dispatcher) Invoke() bool {
	var c Command
	took := false

	state := disableInterrupts()
	if d.head != d.tail {
		c = d.commands[d.head]
		d.commands[d.head] = Command{}
		d.head++
		took = true
	}
	restoreInterrupts(state)

	if took && c.Handle.IsSet() {
		d.activity.run(c)
	}
	return took
}

// Drain runs pending commands until the queue is empty or limit commands
// have run. It returns the number run. Commands added while draining count
// against limit.
func (d *Dispatcher) Drain(limit int) int {
	n := 0
	for n < limit && d.Invoke() {
		n++
	}
	return n
}

// Pending returns the number of queued commands
func (d *Dispatcher) Pending() int {
	state := disableInterrupts()
	n := d.tail - d.head
	restoreInterrupts(state)
	return int(n)
}

// Dropped returns how many commands were discarded by overflow
func (d *Dispatcher) Dropped() uint32 {
	return d.dropped.Load()
}

// Current returns the ID of the handler being run by the main loop
func (d *Dispatcher) Current() uint16 {
	return d.activity.Current()
}
