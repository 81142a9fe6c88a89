package core

import "errors"

var (
	ErrEEPROMBusy      = errors.New("eeprom write in progress")
	ErrUnsupportedSize = errors.New("eeprom value size must be 1, 2 or 4 bytes")
	ErrEEPROMRange     = errors.New("eeprom address out of range")
)

// EEPROM writes values in the background, one byte per ready interrupt.
// Values are stored little-endian; the highest byte is written first. When
// the last byte is written the done handle is queued on the dispatcher with
// the start address as its parameter.
type EEPROM struct {
	rt  *Runtime
	hal EEPROMHAL

	busy   bool
	update bool
	addr   uint16
	value  uint32
	left   uint8 // bytes still to write, counted down from size
	done   Handle
}

// NewEEPROM binds the EEPROM-ready vector of hal
func NewEEPROM(rt *Runtime, hal EEPROMHAL) *EEPROM {
	e := &EEPROM{rt: rt, hal: hal}
	rt.Vectors.Bind(hal.Vector(), e.ready)
	return e
}

// Write stores the low size bytes of value at addr
func (e *EEPROM) Write(addr uint16, value uint32, size int, done Handle) error {
	return e.start(addr, value, size, done, false)
}

// Update is Write that skips bytes already holding the right value
func (e *EEPROM) Update(addr uint16, value uint32, size int, done Handle) error {
	return e.start(addr, value, size, done, true)
}

func (e *EEPROM) start(addr uint16, value uint32, size int, done Handle, update bool) error {
	if err := e.check(addr, size); err != nil {
		return err
	}

	state := disableInterrupts()
	if e.busy || e.hal.Busy() {
		restoreInterrupts(state)
		return ErrEEPROMBusy
	}
	e.busy = true
	e.update = update
	e.addr = addr
	e.value = value
	e.left = uint8(size)
	e.done = done
	finished := e.advance()
	restoreInterrupts(state)

	if finished {
		e.rt.Dispatcher.Add(done, addr)
	}
	return nil
}

// advance starts writing the next byte that needs it. It reports true, and
// releases the writer, once no bytes are left. Caller holds the critical
// section.
func (e *EEPROM) advance() bool {
	for e.left > 0 {
		e.left--
		a := e.addr + uint16(e.left)
		b := byte(e.value >> (8 * e.left))
		if e.update && e.hal.Read(a) == b {
			continue
		}
		e.hal.StartWrite(a, b)
		return false
	}
	e.hal.StopInterrupt()
	e.busy = false
	return true
}

// ready is the EEPROM-ready ISR
func (e *EEPROM) ready() {
	state := disableInterrupts()
	if !e.busy {
		e.hal.StopInterrupt()
		restoreInterrupts(state)
		return
	}
	finished := e.advance()
	done, addr := e.done, e.addr
	restoreInterrupts(state)

	if finished {
		e.rt.Dispatcher.Add(done, addr)
	}
}

// Read returns the little-endian value of size bytes at addr
func (e *EEPROM) Read(addr uint16, size int) (uint32, error) {
	if err := e.check(addr, size); err != nil {
		return 0, err
	}
	if !e.Ready() {
		return 0, ErrEEPROMBusy
	}

	var v uint32
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint32(e.hal.Read(addr+uint16(i)))
	}
	return v, nil
}

// Ready reports whether a new write can start
func (e *EEPROM) Ready() bool {
	state := disableInterrupts()
	ok := !e.busy && !e.hal.Busy()
	restoreInterrupts(state)
	return ok
}

func (e *EEPROM) check(addr uint16, size int) error {
	switch size {
	case 1, 2, 4:
	default:
		return ErrUnsupportedSize
	}
	if uint32(addr)+uint32(size) > uint32(e.hal.Size()) {
		return ErrEEPROMRange
	}
	return nil
}
