package engine

import (
	"sync"
	"time"
)

// DefaultDebounce is the window after a pass begins during which
// re-entrant invocations are dropped as no-ops rather than queued.
const DefaultDebounce = 2 * time.Second

// passGate serializes full pipeline runs against the alarm store. A pass
// that cannot acquire the gate is dropped, never queued: queuing would
// just replay stale work and risk duplicate scheduling.
type passGate struct {
	mu        sync.Mutex
	running   bool
	lastStart time.Time
	debounce  time.Duration
}

func newPassGate(debounce time.Duration) *passGate {
	return &passGate{debounce: debounce}
}

// tryAcquire claims the gate for a run starting at now. Returns false if a
// run is in flight or now is still inside the debounce window of the last
// start.
func (g *passGate) tryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return false
	}
	if !g.lastStart.IsZero() && now.Sub(g.lastStart) < g.debounce {
		return false
	}
	g.running = true
	g.lastStart = now
	return true
}

func (g *passGate) release() {
	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
}
