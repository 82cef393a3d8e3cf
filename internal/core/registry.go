package core

import (
	"sync"
	"time"
)

// registry tracks conversions by ID.
// All methods are safe for concurrent use.
type registry struct {
	mu   sync.RWMutex
	jobs map[string]*conversion
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]*conversion)}
}

// add registers a conversion under its ID.
func (r *registry) add(c *conversion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[c.id] = c
}

// get returns a conversion by ID.
// Returns false if not found.
func (r *registry) get(id string) (*conversion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.jobs[id]
	return c, ok
}

// count returns the number of tracked conversions.
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// removeFinishedBefore deletes conversions that reached a terminal state
// before cutoff. Running conversions are never removed.
// Returns the number removed.
func (r *registry) removeFinishedBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, c := range r.jobs {
		if at, done := c.finished(); done && at.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// removeFinished deletes every conversion in a terminal state regardless
// of age. Returns the number removed.
func (r *registry) removeFinished() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, c := range r.jobs {
		if _, done := c.finished(); done {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
