// Package events broadcasts risk-decision events to admin dashboard
// subscribers. Publishing never blocks the request path: subscribers that
// cannot keep up lose events rather than slowing scoring down.
package events

import (
	"sync"
	"time"
)

// Decision labels for DecisionEvent.
const (
	DecisionAllow  = "allow"
	DecisionVerify = "verify"
	DecisionBlock  = "block"
)

// DecisionEvent describes one completed risk assessment.
type DecisionEvent struct {
	Address   string    `json:"address"`
	Score     int       `json:"score"`
	Decision  string    `json:"decision"`
	Reasons   []string  `json:"reasons"`
	Degraded  bool      `json:"degraded"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 64

// Hub fans decision events out to subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan DecisionEvent]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan DecisionEvent]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan DecisionEvent, func()) {
	ch := make(chan DecisionEvent, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with room in its buffer.
// Slow subscribers are skipped.
func (h *Hub) Publish(ev DecisionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
