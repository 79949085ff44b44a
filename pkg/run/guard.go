package run

import (
	"errors"
	"sync"
)

// ErrRunInFlight is returned when a run id is already executing.
var ErrRunInFlight = errors.New("run is already in flight")

// Guard tracks the set of in-flight run ids. Acquisition never blocks;
// a duplicate acquire fails immediately with ErrRunInFlight.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard creates an empty run guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// Acquire marks a run id as in flight.
func (g *Guard) Acquire(runID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[runID]; ok {
		return ErrRunInFlight
	}
	g.active[runID] = struct{}{}
	return nil
}

// Release removes a run id from the in-flight set. Releasing an id
// that is not held is a no-op.
func (g *Guard) Release(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, runID)
}

// InFlight reports whether a run id is currently held.
func (g *Guard) InFlight(runID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[runID]
	return ok
}
