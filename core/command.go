package core

import (
	"sync"
	"sync/atomic"
)

// HandlerFunc is the body of a deferred call. It receives one word-sized
// parameter chosen by whoever queued the call.
type HandlerFunc func(param uint16)

// Reserved handler IDs
const (
	NoHandler        uint16 = 0xFFFF // nothing is executing
	AnonymousHandler uint16 = 0xFFFE // handle built with Func, not registered
)

// Handle is a bound function that can be run later. The zero Handle is
// unset and running it does nothing.
type Handle struct {
	ID uint16
	fn HandlerFunc
}

// Func wraps fn in an anonymous handle
func Func(fn HandlerFunc) Handle {
	if fn == nil {
		return Handle{}
	}
	return Handle{ID: AnonymousHandler, fn: fn}
}

// IsSet reports whether the handle is bound to a function
func (h Handle) IsSet() bool {
	return h.fn != nil
}

// Call runs the bound function with param. Unset handles are ignored.
func (h Handle) Call(param uint16) {
	if h.fn != nil {
		h.fn(param)
	}
}

// Command pairs a handle with the parameter it will be called with
type Command struct {
	Handle    Handle
	Parameter uint16
}

// Run calls the command's handle with its parameter
func (c Command) Run() {
	c.Handle.Call(c.Parameter)
}

// HandlerRegistry names deferred calls so diagnostic values (the ID of the
// handler executing at the time of an overflow or watchdog alarm) can be
// translated back to something readable on the host.
type HandlerRegistry struct {
	mu      sync.RWMutex
	handles map[uint16]Handle
	names   map[uint16]string
	byName  map[string]uint16
	nextID  uint16
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handles: make(map[uint16]Handle),
		names:   make(map[uint16]string),
		byName:  make(map[string]uint16),
	}
}

// Register binds fn to name and returns its handle. Registering a name twice
// returns the first handle. Once the ID space is used up, the handle is
// anonymous.
func (r *HandlerRegistry) Register(name string, fn HandlerFunc) Handle {
	if fn == nil {
		return Handle{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.byName[name]; exists {
		return r.handles[id]
	}

	if r.nextID >= AnonymousHandler {
		return Func(fn)
	}

	h := Handle{ID: r.nextID, fn: fn}
	r.nextID++

	r.handles[h.ID] = h
	r.names[h.ID] = name
	r.byName[name] = h.ID

	return h
}

// Lookup returns the handle registered under id
func (r *HandlerRegistry) Lookup(id uint16) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Name returns the name registered for id, or "" for unknown and reserved IDs
func (r *HandlerRegistry) Name(id uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[id]
}

// Count returns the number of registered handlers
func (r *HandlerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Each calls fn for every registered handler in ID order
func (r *HandlerRegistry) Each(fn func(id uint16, name string)) {
	r.mu.RLock()
	n := r.nextID
	r.mu.RUnlock()

	for id := uint16(0); id < n; id++ {
		if name := r.Name(id); name != "" {
			fn(id, name)
		}
	}
}

// Activity tracks which deferred call the main loop is executing. It is read
// from interrupt context (overflow callbacks, watchdog alarms).
type Activity struct {
	id atomic.Uint32
}

// NewActivity returns an idle tracker
func NewActivity() *Activity {
	a := &Activity{}
	a.id.Store(uint32(NoHandler))
	return a
}

// Current returns the ID of the running handler, or NoHandler
func (a *Activity) Current() uint16 {
	return uint16(a.id.Load())
}

// run executes c, publishing its ID for the duration of the call
func (a *Activity) run(c Command) {
	if a == nil {
		c.Run()
		return
	}
	prev := a.id.Swap(uint32(c.Handle.ID))
	c.Run()
	a.id.Store(prev)
}
