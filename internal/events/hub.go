package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process Bus. Publishing never blocks: a subscriber whose
// buffer is full misses the event and catches up on its next fetch.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

func (h *Hub) Publish(_ context.Context, userID uuid.UUID, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped for slow subscriber", "user_id", userID, "type", ev.Type)
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	return &Subscription{
		C: ch,
		closeFn: func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		},
	}, nil
}

// Subscribers reports the live subscriber count for userID.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
