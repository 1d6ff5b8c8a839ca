// Package snapshot holds the read-only ShareSnapshot table fed by the
// out-of-scope daily analytics pipeline. OrderIntake only ever reads it.
package snapshot

import (
	"sync"

	"github.com/avolkov/sharewatch/internal/models"
)

// Registry is a guarded map of the latest ShareSnapshot per ticker.
type Registry struct {
	mu   sync.RWMutex
	data map[string]models.ShareSnapshot
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{data: make(map[string]models.ShareSnapshot)}
}

// Get returns the snapshot for ticker and whether it exists.
func (r *Registry) Get(ticker string) (models.ShareSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[ticker]
	return s, ok
}

// Put inserts or replaces the snapshot for one ticker.
func (r *Registry) Put(snap models.ShareSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[snap.Ticker] = snap
}

// Replace swaps the entire table atomically, used by the producer's daily
// refresh cycle.
func (r *Registry) Replace(snaps []models.ShareSnapshot) {
	next := make(map[string]models.ShareSnapshot, len(snaps))
	for _, s := range snaps {
		next[s.Ticker] = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = next
}

// Len reports how many tickers are currently tracked.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
