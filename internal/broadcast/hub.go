// Package broadcast forwards progress state deltas to external observers,
// keyed by run identifier. Observers are long-lived consumers such as an
// HTTP event stream or the terminal progress view; when nobody is
// subscribed to a run, published messages are dropped, never buffered.
package broadcast

import (
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing intermediate states; the next
// message always carries the full current snapshot, so nothing is ever
// permanently stale.
const subscriberBuffer = 16

// Hub fans run-scoped messages out to subscribers. Payloads are opaque to
// the hub; the progress aggregator publishes its snapshot message type.
// The zero value is not usable; call NewHub.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan any
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[int]chan any),
	}
}

// Subscribe registers an observer for one run id. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call more than once.
func (h *Hub) Subscribe(runID string) (<-chan any, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	ch := make(chan any, subscriberBuffer)
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[int]chan any)
	}
	h.subs[runID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[runID]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.subs, runID)
				}
			}
			close(ch)
		})
	}

	return ch, cancel
}

// Publish delivers msg to every subscriber of runID and returns the number
// of deliveries. Sends never block: a full subscriber channel drops the
// message, and a run with no subscribers drops it entirely.
func (h *Hub) Publish(runID string, msg any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, ch := range h.subs[runID] {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// SubscriberCount reports how many observers are attached to a run.
func (h *Hub) SubscriberCount(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}
