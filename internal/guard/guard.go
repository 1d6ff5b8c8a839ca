// Package guard implements the SL-placement guard (§4.4): a named-timer
// registry that forces an emergency close if a stop-loss fails to register
// within a bounded deadline after an entry fills.
package guard

import (
	"sync"
	"time"
)

// Guard is a keyed timer registry. Keyed by entry order id, mirroring the
// teacher's per-operation backoff timer in internal/retry but generalized
// from one inline timeout into a registry so many entries can be tracked
// concurrently.
type Guard struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New returns an empty guard registry.
func New() *Guard {
	return &Guard{timers: make(map[string]*time.Timer)}
}

// Start schedules onTimeout to fire after timeout unless NotifyPlaced or
// CancelAll is called first. Any existing timer under
// entryID is stopped and replaced; Start happens-before any possible
// onTimeout invocation for the new timer.
func (g *Guard) Start(entryID string, timeout time.Duration, onTimeout func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.timers[entryID]; ok {
		existing.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(timeout, func() {
		g.mu.Lock()
		// Only fire if this is still the live timer for entryID: a racing
		// CancelAll/NotifyPlaced may have already removed it, or a newer
		// Start may have replaced it.
		stillArmed := g.timers[entryID] == timer
		if stillArmed {
			delete(g.timers, entryID)
		}
		g.mu.Unlock()
		if stillArmed {
			onTimeout()
		}
	})
	g.timers[entryID] = timer
}

// NotifyPlaced cancels the timer for entryID, if any. Idempotent.
func (g *Guard) NotifyPlaced(entryID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[entryID]; ok {
		t.Stop()
		delete(g.timers, entryID)
	}
}

// Armed reports whether a timer is currently pending for entryID.
func (g *Guard) Armed(entryID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.timers[entryID]
	return ok
}

// CancelAll stops every pending timer, used on shutdown.
func (g *Guard) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
}
