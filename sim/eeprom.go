package sim

import (
	"sync"

	"avrcoop/core"
)

// EEPROM models the byte-wide EEPROM controller. A write started with
// StartWrite lands in memory when Complete is called, which then raises the
// ready vector if its interrupt is armed.
type EEPROM struct {
	mu      sync.Mutex
	vectors *core.Vectors
	mem     []byte

	busy   bool
	irq    bool
	addr   uint16
	data   byte
	writes int
}

// NewEEPROM creates an erased EEPROM of size bytes
func NewEEPROM(vectors *core.Vectors, size uint16) *EEPROM {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &EEPROM{vectors: vectors, mem: mem}
}

func (e *EEPROM) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

func (e *EEPROM) Read(addr uint16) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(addr) >= len(e.mem) {
		return 0xFF
	}
	return e.mem[addr]
}

func (e *EEPROM) StartWrite(addr uint16, b byte) {
	e.mu.Lock()
	e.busy = true
	e.irq = true
	e.addr = addr
	e.data = b
	e.mu.Unlock()
}

func (e *EEPROM) StopInterrupt() {
	e.mu.Lock()
	e.irq = false
	e.mu.Unlock()
}

func (e *EEPROM) Size() uint16 {
	return uint16(len(e.mem))
}

func (e *EEPROM) Vector() core.Vector {
	return VectorEEReady
}

// Complete finishes the write in progress and raises the ready vector.
// It reports whether a write was pending.
func (e *EEPROM) Complete() bool {
	e.mu.Lock()
	if !e.busy {
		e.mu.Unlock()
		return false
	}
	if int(e.addr) < len(e.mem) {
		e.mem[e.addr] = e.data
	}
	e.busy = false
	e.writes++
	fire := e.irq
	e.mu.Unlock()

	if fire {
		e.vectors.Fire(VectorEEReady)
	}
	return true
}

// CompleteAll runs Complete until no write is pending and returns the
// number of bytes written
func (e *EEPROM) CompleteAll() int {
	n := 0
	for e.Complete() {
		n++
	}
	return n
}

// Writes returns the number of bytes physically written
func (e *EEPROM) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

// Peek returns the stored byte at addr
func (e *EEPROM) Peek(addr uint16) byte {
	return e.Read(addr)
}

// Poke stores b at addr without going through a write cycle
func (e *EEPROM) Poke(addr uint16, b byte) {
	e.mu.Lock()
	if int(addr) < len(e.mem) {
		e.mem[addr] = b
	}
	e.mu.Unlock()
}
