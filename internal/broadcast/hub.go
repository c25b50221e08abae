// Package broadcast fans snapshots out to any number of subscribers.
package broadcast

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/nhdewitt/threadmon/internal/protocol"
)

var (
	// ErrNoSubscribers is returned by Broadcast when nobody is listening.
	ErrNoSubscribers = errors.New("no subscribers")

	ErrClosed = errors.New("hub closed")
)

const defaultBuffer = 4

// Subscription receives snapshots on C until it is closed.
type Subscription struct {
	ID string
	C  <-chan protocol.Snapshot

	ch  chan protocol.Snapshot
	hub *Hub
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
}

// Hub delivers each broadcast snapshot to every subscriber. Delivery never
// blocks the caller: a subscriber whose buffer is full misses that
// snapshot.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]chan protocol.Snapshot
	closed bool
	logger hclog.Logger
}

func NewHub(logger hclog.Logger) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Hub{
		subs:   make(map[string]chan protocol.Snapshot),
		logger: logger.Named("hub"),
	}
}

// Subscribe registers a new subscriber with room for buffer pending
// snapshots.
func (h *Hub) Subscribe(buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	id := uuid.NewString()
	ch := make(chan protocol.Snapshot, buffer)
	h.subs[id] = ch

	h.logger.Debug("subscriber added", "id", id, "subscribers", len(h.subs))
	return &Subscription{ID: id, C: ch, ch: ch, hub: h}, nil
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
		h.logger.Debug("subscriber removed", "id", id, "subscribers", len(h.subs))
	}
}

// Broadcast implements the scheduler's outbound boundary.
func (h *Hub) Broadcast(snap protocol.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if len(h.subs) == 0 {
		return ErrNoSubscribers
	}

	for id, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			h.logger.Trace("subscriber lagging, snapshot dropped", "id", id)
		}
	}
	return nil
}

// Len returns the number of current subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber. Later Subscribe and Broadcast calls fail
// with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
