package run

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/neodify/neodify/pkg/store"
)

// Listener receives every event published for one run.
type Listener func(event store.RunEvent)

// Bus fans run events out to live subscribers. Delivery is synchronous
// and in publish order per listener; a panicking listener is isolated
// so it cannot take down the publisher or its peers.
type Bus struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	listeners map[string]map[int]Listener
	nextID    int
}

// NewBus creates an empty event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger:    logger.With().Str("component", "run_bus").Logger(),
		listeners: make(map[string]map[int]Listener),
	}
}

// Subscribe registers a listener for one run id and returns its
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(runID string, fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	bucket, ok := b.listeners[runID]
	if !ok {
		bucket = make(map[int]Listener)
		b.listeners[runID] = bucket
	}
	bucket[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			bucket, ok := b.listeners[runID]
			if !ok {
				return
			}
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(b.listeners, runID)
			}
		})
	}
}

// Publish delivers an event to every listener subscribed to its run.
// Runs without subscribers publish into the void.
func (b *Bus) Publish(event store.RunEvent) {
	b.mu.RLock()
	bucket := b.listeners[event.RunID]
	fns := make([]Listener, 0, len(bucket))
	for _, fn := range bucket {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.deliver(fn, event)
	}
}

// SubscriberCount reports the current listener count for a run.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[runID])
}

func (b *Bus) deliver(fn Listener, event store.RunEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("run_id", event.RunID).
				Str("event_type", event.Type).
				Interface("panic", r).
				Msg("event listener panicked")
		}
	}()
	fn(event)
}
