package docstore

import (
	"context"
	"sync"
)

// Notifier broadcasts "collection changed" events.
type Notifier interface {
	Publish(ctx context.Context, collection string) error
}

// Hub is the in-process change fan-out. Each watcher owns a one-slot kick
// channel so bursts of writes coalesce into a single wake-up.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[chan struct{}]struct{})}
}

// Publish implements Notifier by notifying local watchers directly.
func (h *Hub) Publish(_ context.Context, collection string) error {
	h.Notify(collection)
	return nil
}

// Notify wakes every watcher of collection without blocking.
func (h *Hub) Notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for kick := range h.watchers[collection] {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) watch(collection string) chan struct{} {
	kick := make(chan struct{}, 1)
	h.mu.Lock()
	set, ok := h.watchers[collection]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.watchers[collection] = set
	}
	set[kick] = struct{}{}
	h.mu.Unlock()
	return kick
}

func (h *Hub) unwatch(collection string, kick chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.watchers[collection]; ok {
		delete(set, kick)
		if len(set) == 0 {
			delete(h.watchers, collection)
		}
	}
}

// Watchers returns the number of live watchers for collection.
func (h *Hub) Watchers(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[collection])
}
