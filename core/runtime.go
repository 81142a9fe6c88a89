package core

// Runtime owns the process-wide resources of the cooperative core: the
// handler registry, the dispatcher queue, the interrupt vector table and the
// post-mortem trace. It is built once at start-up and passed to everything
// that enqueues work or binds interrupts.
type Runtime struct {
	Handlers   *HandlerRegistry
	Activity   *Activity
	Dispatcher *Dispatcher
	Vectors    *Vectors
	Trace      *Trace

	pollers []func()

	debugPrintln DebugWriter
	debugEnabled bool
}

// NewRuntime creates an idle runtime with an empty queue and vector table
func NewRuntime() *Runtime {
	activity := NewActivity()
	return &Runtime{
		Handlers:     NewHandlerRegistry(),
		Activity:     activity,
		Dispatcher:   NewDispatcher(activity),
		Vectors:      &Vectors{},
		Trace:        &Trace{},
		debugPrintln: func(string) {},
	}
}

// Register names fn in the handler registry
func (r *Runtime) Register(name string, fn HandlerFunc) Handle {
	return r.Handlers.Register(name, fn)
}

// AddPoller adds fn to the work done on every main loop iteration.
// Schedulers and reporters register their Invoke/Poll here.
func (r *Runtime) AddPoller(fn func()) {
	if fn != nil {
		r.pollers = append(r.pollers, fn)
	}
}

// Poll runs one main loop iteration: at most one dispatcher command, then
// every poller in registration order.
func (r *Runtime) Poll() {
	r.Dispatcher.Invoke()
	for _, fn := range r.pollers {
		fn()
	}
}

// Run polls forever
func (r *Runtime) Run() {
	for {
		r.Poll()
	}
}

// RunUntil polls until done returns true
func (r *Runtime) RunUntil(done func() bool) {
	for !done() {
		r.Poll()
	}
}

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func (r *Runtime) SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	r.debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func (r *Runtime) SetDebugEnabled(enabled bool) {
	r.debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func (r *Runtime) IsDebugEnabled() bool {
	return r.debugEnabled
}

// Debugln writes a debug message using the platform-specific writer
func (r *Runtime) Debugln(msg string) {
	if r.debugEnabled {
		r.debugPrintln(msg)
	}
}

// DumpTrace writes the post-mortem ring through the debug writer,
// regardless of whether debug output is enabled
func (r *Runtime) DumpTrace() {
	r.Trace.Dump(r.debugPrintln)
}
