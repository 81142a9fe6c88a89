package core

// Vector identifies a hardware interrupt vector
type Vector uint8

// MaxVectors bounds the vector table
const MaxVectors = 64

// ISR is an interrupt service routine bound to a vector
type ISR func()

// Vectors maps interrupt vectors to rebindable handlers. Platform code
// registers one trampoline per vector that calls Fire; the bound ISR is
// looked up and called with interrupts left as the hardware set them on entry.
type Vectors struct {
	handlers [MaxVectors]ISR
}

// Bind installs isr on v and returns the previous handler. A nil isr unbinds.
func (t *Vectors) Bind(v Vector, isr ISR) ISR {
	if int(v) >= MaxVectors {
		return nil
	}
	state := disableInterrupts()
	prev := t.swap(v, isr)
	restoreInterrupts(state)
	return prev
}

// swap replaces the handler of v. Caller holds the critical section.
func (t *Vectors) swap(v Vector, isr ISR) ISR {
	if int(v) >= MaxVectors {
		return nil
	}
	prev := t.handlers[v]
	t.handlers[v] = isr
	return prev
}

// Handler returns the ISR bound to v
func (t *Vectors) Handler(v Vector) ISR {
	if int(v) >= MaxVectors {
		return nil
	}
	state := disableInterrupts()
	isr := t.handlers[v]
	restoreInterrupts(state)
	return isr
}

// Fire is the trampoline for v. Unbound vectors are ignored.
func (t *Vectors) Fire(v Vector) {
	if int(v) >= MaxVectors {
		return
	}
	if isr := t.handlers[v]; isr != nil {
		isr()
	}
}
