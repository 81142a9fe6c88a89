package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent captures a runtime fault for post-mortem analysis
type TraceEvent struct {
	Kind  uint8  // Event kind code
	ID    uint16 // Handler ID involved
	Clock uint32 // Logical clock at event, when one is attached
	Value uint32 // Kind-dependent value
}

// Trace event kinds
const (
	TraceOverflow      = 1 // dispatcher dropped a command
	TraceSchedulerFull = 2 // RunIn found no free slot
	TraceDeathAlarm    = 3 // smartdog fired before the watchdog reset
	TraceEEPROMDone    = 4 // EEPROM write finished
	TracePeriodChange  = 5 // alarm reprogrammed at run time
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

// Trace is a fixed ring of the most recent runtime faults. Record is safe
// from interrupt context.
type Trace struct {
	ring  [TraceRingSize]TraceEvent
	head  uint8 // Next write position
	count uint8
	clock func() uint32
}

// SetClock attaches a time source stamped on every recorded event
func (t *Trace) SetClock(clock func() uint32) {
	t.clock = clock
}

// Record appends an event, overwriting the oldest once the ring is full
func (t *Trace) Record(kind uint8, id uint16, value uint32) {
	var now uint32
	if t.clock != nil {
		now = t.clock()
	}

	state := disableInterrupts()
	t.ring[t.head] = TraceEvent{Kind: kind, ID: id, Clock: now, Value: value}
	t.head = (t.head + 1) % TraceRingSize
	if t.count < TraceRingSize {
		t.count++
	}
	restoreInterrupts(state)
}

// Snapshot copies the recorded events, oldest first
func (t *Trace) Snapshot() []TraceEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]TraceEvent, 0, t.count)
	start := (t.head + TraceRingSize - t.count) % TraceRingSize
	for i := uint8(0); i < t.count; i++ {
		out = append(out, t.ring[(start+i)%TraceRingSize])
	}
	return out
}

// Len returns the number of recorded events
func (t *Trace) Len() int {
	state := disableInterrupts()
	n := t.count
	restoreInterrupts(state)
	return int(n)
}

// Clear empties the ring
func (t *Trace) Clear() {
	state := disableInterrupts()
	t.ring = [TraceRingSize]TraceEvent{}
	t.head = 0
	t.count = 0
	restoreInterrupts(state)
}

// TraceKindName returns a printable name for an event kind
func TraceKindName(kind uint8) string {
	switch kind {
	case TraceOverflow:
		return "OVERFLOW"
	case TraceSchedulerFull:
		return "SCHED_FULL"
	case TraceDeathAlarm:
		return "DEATH_ALARM"
	case TraceEEPROMDone:
		return "EEPROM_DONE"
	case TracePeriodChange:
		return "PERIOD"
	default:
		return "UNKNOWN"
	}
}

// Dump writes the ring to w, oldest first (call on shutdown/error)
func (t *Trace) Dump(w DebugWriter) {
	if w == nil {
		return
	}

	w("[TRACE] === Trace Dump ===")
	for _, evt := range t.Snapshot() {
		w("[TRACE] " + TraceKindName(evt.Kind) +
			" id=" + hex16(evt.ID) +
			" clock=" + utoa(uint64(evt.Clock)) +
			" v=" + utoa(uint64(evt.Value)))
	}
	w("[TRACE] === End Dump ===")
}
