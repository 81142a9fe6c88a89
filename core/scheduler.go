package core

import (
	"errors"
	"math/bits"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

var (
	ErrInTimeTooWide = errors.New("scheduler delay type must be narrower than the clock type")
	ErrCapacity      = errors.New("scheduler capacity must be between 1 and 255")
)

// MaxSchedulerTasks bounds the task table
const MaxSchedulerTasks = 255

// SchedulerStats is the read-only view of a scheduler used for reporting
type SchedulerStats interface {
	Active() int
	Capacity() int
	Rejected() uint32
}

// task is one slot of the table. The word packs the deadline truncated to
// w+1 bits with the active and blocked flags:
//
//	bits [0,w)  deadline low part
//	bit  w      deadline high bit
//	bit  w+1    active
//	bit  w+2    blocked
type task[T constraints.Unsigned] struct {
	cmd  Command
	word T
}

// Scheduler runs commands a number of clock ticks in the future from a
// fixed table. T is the clock width, In the (narrower) delay width; each
// task stores only bits(In)+1 bits of its deadline.
//
// RunIn may be called from any context. Invoke must only be called from the
// main loop.
type Scheduler[T, In constraints.Unsigned] struct {
	clock TimeSource[T]
	tasks []task[T]

	lowMask T
	highBit T
	active  T
	blocked T

	activity *Activity
	onReject Handle
	rejected atomic.Uint32
}

// NewScheduler allocates a table of capacity tasks driven by clock
func NewScheduler[T, In constraints.Unsigned](clock TimeSource[T], capacity int) (*Scheduler[T, In], error) {
	w := bits.Len64(uint64(^In(0)))
	if w+3 > bits.Len64(uint64(^T(0))) {
		return nil, ErrInTimeTooWide
	}
	if capacity < 1 || capacity > MaxSchedulerTasks {
		return nil, ErrCapacity
	}

	return &Scheduler[T, In]{
		clock:   clock,
		tasks:   make([]task[T], capacity),
		lowMask: T(1)<<w - 1,
		highBit: T(1) << w,
		active:  T(1) << (w + 1),
		blocked: T(1) << (w + 2),
	}, nil
}

// Track publishes the ID of each command Invoke runs to activity
func (s *Scheduler[T, In]) Track(activity *Activity) {
	s.activity = activity
}

// SetRejectHandler sets the handle called with the command's handler ID
// when RunIn finds the table full
func (s *Scheduler[T, In]) SetRejectHandler(h Handle) {
	state := disableInterrupts()
	s.onReject = h
	restoreInterrupts(state)
}

// RunIn schedules cmd to run delay ticks from now. It returns false, without
// touching the table, when every slot is taken. delay should stay below half
// the range of In.
func (s *Scheduler[T, In]) RunIn(cmd Command, delay In) bool {
	for i := range s.tasks {
		t := &s.tasks[i]

		state := disableInterrupts()
		if t.word&(s.active|s.blocked) != 0 {
			restoreInterrupts(state)
			continue
		}
		t.word |= s.blocked
		restoreInterrupts(state)

		deadline := (s.clock.Now() + T(delay)) & (s.lowMask | s.highBit)
		t.cmd = cmd

		state = disableInterrupts()
		t.word = deadline | s.active
		restoreInterrupts(state)
		return true
	}

	s.rejected.Add(1)
	state := disableInterrupts()
	notify := s.onReject
	restoreInterrupts(state)
	notify.Call(cmd.Handle.ID)
	return false
}

// Invoke runs every due task in table order and returns how many ran.
// A task is due once the clock, truncated to the stored width, is in the
// same half-cycle as the deadline and its low part has reached the
// deadline's low part. The slot is freed before the command runs, so a
// command may schedule itself again.
// A deadline fires on the tick it names, so RunIn(cmd, d) at tick T runs
// at T+d.
func (s *Scheduler[T, In]) Invoke() int {
	fired := 0
	for i := range s.tasks {
		t := &s.tasks[i]

		state := disableInterrupts()
		word := t.word
		restoreInterrupts(state)

		if word&s.active == 0 {
			continue
		}

		now := s.clock.Now()
		if word&s.highBit != now&s.highBit || word&s.lowMask > now&s.lowMask {
			continue
		}

		cmd := t.cmd
		state = disableInterrupts()
		t.word &^= s.active
		restoreInterrupts(state)

		s.activity.run(cmd)
		fired++
	}
	return fired
}

// Active returns the number of scheduled tasks
func (s *Scheduler[T, In]) Active() int {
	n := 0
	for i := range s.tasks {
		state := disableInterrupts()
		on := s.tasks[i].word&s.active != 0
		restoreInterrupts(state)
		if on {
			n++
		}
	}
	return n
}

// Capacity returns the size of the task table
func (s *Scheduler[T, In]) Capacity() int {
	return len(s.tasks)
}

// Rejected returns how many RunIn calls found the table full
func (s *Scheduler[T, In]) Rejected() uint32 {
	return s.rejected.Load()
}

// PeriodUs returns the tick period of the clock, or 0 when the clock does
// not report one
func (s *Scheduler[T, In]) PeriodUs() uint32 {
	if p, ok := s.clock.(interface{ PeriodUs() uint32 }); ok {
		return p.PeriodUs()
	}
	return 0
}
