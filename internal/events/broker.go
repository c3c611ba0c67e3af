package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Broker wakes goroutines waiting for new notifications of a user.
// It is an EventHandler; register it with an emitter.
//
// Signals coalesce: a waiter learns that something arrived, then re-reads
// the feed.
type Broker struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]map[chan struct{}]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{waiters: make(map[uuid.UUID]map[chan struct{}]struct{})}
}

// Subscribe returns a channel signalled when a notification for userID is
// emitted, and a function that must be called to unsubscribe.
func (b *Broker) Subscribe(userID uuid.UUID) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	set, ok := b.waiters[userID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.waiters[userID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.waiters[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.waiters, userID)
			}
		}
	}
}

// HandleEvent implements EventHandler.
func (b *Broker) HandleEvent(_ context.Context, event *NotificationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.waiters[event.UserID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Waiters returns the number of subscriptions for userID.
func (b *Broker) Waiters(userID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[userID])
}
