package protocol

// Host to device
const (
	MsgGetStatus    = 1 // request a Status report
	MsgListHandlers = 2 // request one HandlerName per registered handler
	MsgDumpTrace    = 3 // request one TraceRecord per post-mortem event
)

// Device to host
const (
	MsgStatus        = 16
	MsgOverflow      = 17
	MsgSchedulerFull = 18
	MsgDeathAlarm    = 19
	MsgEEPROMDone    = 20
	MsgHandlerName   = 21
	MsgTraceRecord   = 22
)

// MessageName returns a printable name for a message ID
func MessageName(id uint16) string {
	switch id {
	case MsgGetStatus:
		return "get_status"
	case MsgListHandlers:
		return "list_handlers"
	case MsgDumpTrace:
		return "dump_trace"
	case MsgStatus:
		return "status"
	case MsgOverflow:
		return "overflow"
	case MsgSchedulerFull:
		return "scheduler_full"
	case MsgDeathAlarm:
		return "death_alarm"
	case MsgEEPROMDone:
		return "eeprom_done"
	case MsgHandlerName:
		return "handler_name"
	case MsgTraceRecord:
		return "trace_record"
	default:
		return "unknown"
	}
}

// Status is the periodic health report
type Status struct {
	Clock         uint32 // logical clock ticks
	PeriodUs      uint32 // tick period
	Pending       uint16 // dispatcher commands waiting
	Dropped       uint32 // dispatcher overflows since boot
	Current       uint16 // handler running when the report was built
	TasksActive   uint16
	TasksCapacity uint16
	TasksRejected uint32
}

func (m Status) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgStatus)
	EncodeVLQUint(out, m.Clock)
	EncodeVLQUint(out, m.PeriodUs)
	EncodeVLQUint(out, uint32(m.Pending))
	EncodeVLQUint(out, m.Dropped)
	EncodeVLQUint(out, uint32(m.Current))
	EncodeVLQUint(out, uint32(m.TasksActive))
	EncodeVLQUint(out, uint32(m.TasksCapacity))
	EncodeVLQUint(out, m.TasksRejected)
}

func DecodeStatus(data *[]byte) (m Status, err error) {
	if m.Clock, err = DecodeVLQUint(data); err != nil {
		return
	}
	if m.PeriodUs, err = DecodeVLQUint(data); err != nil {
		return
	}
	if m.Pending, err = DecodeVLQUint16(data); err != nil {
		return
	}
	if m.Dropped, err = DecodeVLQUint(data); err != nil {
		return
	}
	if m.Current, err = DecodeVLQUint16(data); err != nil {
		return
	}
	if m.TasksActive, err = DecodeVLQUint16(data); err != nil {
		return
	}
	if m.TasksCapacity, err = DecodeVLQUint16(data); err != nil {
		return
	}
	m.TasksRejected, err = DecodeVLQUint(data)
	return
}

// Overflow reports dispatcher commands lost since the previous report
type Overflow struct {
	Current uint16 // handler running at the last overflow
	Dropped uint32 // total dropped since boot
}

func (m Overflow) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgOverflow)
	EncodeVLQUint(out, uint32(m.Current))
	EncodeVLQUint(out, m.Dropped)
}

func DecodeOverflow(data *[]byte) (m Overflow, err error) {
	if m.Current, err = DecodeVLQUint16(data); err != nil {
		return
	}
	m.Dropped, err = DecodeVLQUint(data)
	return
}

// SchedulerFull reports a rejected RunIn
type SchedulerFull struct {
	Handler  uint16 // handler that could not be scheduled
	Rejected uint32 // total rejections since boot
}

func (m SchedulerFull) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgSchedulerFull)
	EncodeVLQUint(out, uint32(m.Handler))
	EncodeVLQUint(out, m.Rejected)
}

func DecodeSchedulerFull(data *[]byte) (m SchedulerFull, err error) {
	if m.Handler, err = DecodeVLQUint16(data); err != nil {
		return
	}
	m.Rejected, err = DecodeVLQUint(data)
	return
}

// DeathAlarm is the smartdog's last word before the watchdog reset
type DeathAlarm struct {
	Last      uint16 // handler that stopped feeding the watchdog
	TimeoutUs uint32
}

func (m DeathAlarm) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgDeathAlarm)
	EncodeVLQUint(out, uint32(m.Last))
	EncodeVLQUint(out, m.TimeoutUs)
}

func DecodeDeathAlarm(data *[]byte) (m DeathAlarm, err error) {
	if m.Last, err = DecodeVLQUint16(data); err != nil {
		return
	}
	m.TimeoutUs, err = DecodeVLQUint(data)
	return
}

// EEPROMDone reports a finished background EEPROM write
type EEPROMDone struct {
	Addr uint16
}

func (m EEPROMDone) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgEEPROMDone)
	EncodeVLQUint(out, uint32(m.Addr))
}

func DecodeEEPROMDone(data *[]byte) (m EEPROMDone, err error) {
	m.Addr, err = DecodeVLQUint16(data)
	return
}

// HandlerName maps a handler ID to its registered name
type HandlerName struct {
	ID   uint16
	Name string
}

func (m HandlerName) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgHandlerName)
	EncodeVLQUint(out, uint32(m.ID))
	EncodeVLQString(out, m.Name)
}

func DecodeHandlerName(data *[]byte) (m HandlerName, err error) {
	if m.ID, err = DecodeVLQUint16(data); err != nil {
		return
	}
	m.Name, err = DecodeVLQString(data)
	return
}

// TraceRecord is one entry of the device's post-mortem ring
type TraceRecord struct {
	Kind  uint8
	ID    uint16
	Clock uint32
	Value uint32
}

func (m TraceRecord) Encode(out OutputBuffer) {
	EncodeVLQUint(out, MsgTraceRecord)
	EncodeVLQUint(out, uint32(m.Kind))
	EncodeVLQUint(out, uint32(m.ID))
	EncodeVLQUint(out, m.Clock)
	EncodeVLQUint(out, m.Value)
}

func DecodeTraceRecord(data *[]byte) (m TraceRecord, err error) {
	var kind uint16
	if kind, err = DecodeVLQUint16(data); err != nil {
		return
	}
	if kind > 0xFF {
		return m, ErrInvalidVLQ
	}
	m.Kind = uint8(kind)
	if m.ID, err = DecodeVLQUint16(data); err != nil {
		return
	}
	if m.Clock, err = DecodeVLQUint(data); err != nil {
		return
	}
	m.Value, err = DecodeVLQUint(data)
	return
}

// Request is a host message without arguments
type Request uint16

func (m Request) Encode(out OutputBuffer) {
	EncodeVLQUint(out, uint32(m))
}
