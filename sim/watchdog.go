package sim

import (
	"sync"

	"avrcoop/core"
)

// Watchdog models the hardware watchdog in system reset mode
type Watchdog struct {
	mu      sync.Mutex
	enabled bool
	timeout core.WatchdogTimeout
	elapsed uint32 // microseconds since the last feed
	feeds   int
	resets  int

	// OnReset, when set, is called each time the watchdog expires
	OnReset func()
}

func (w *Watchdog) Enable(timeout core.WatchdogTimeout) {
	w.mu.Lock()
	w.enabled = true
	w.timeout = timeout
	w.elapsed = 0
	w.mu.Unlock()
}

func (w *Watchdog) Disable() {
	w.mu.Lock()
	w.enabled = false
	w.mu.Unlock()
}

func (w *Watchdog) Feed() {
	w.mu.Lock()
	w.elapsed = 0
	w.feeds++
	w.mu.Unlock()
}

// Advance lets us microseconds pass. It reports whether the watchdog
// expired, in which case it restarts as the chip would after a reset.
func (w *Watchdog) Advance(us uint32) bool {
	w.mu.Lock()
	if !w.enabled {
		w.mu.Unlock()
		return false
	}
	w.elapsed += us
	expired := w.elapsed >= w.timeout.Micros()
	if expired {
		w.elapsed = 0
		w.resets++
	}
	hook := w.OnReset
	w.mu.Unlock()

	if expired && hook != nil {
		hook()
	}
	return expired
}

func (w *Watchdog) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

func (w *Watchdog) Feeds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.feeds
}

func (w *Watchdog) Resets() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resets
}
