package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// Broker fans session events out to in-process subscribers.
// Slow subscribers lose stale events rather than blocking publishers; every event only
// means "recompute", so the latest one is enough.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.SessionEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]map[chan domain.SessionEvent]struct{})}
}

func (b *Broker) Publish(_ context.Context, event domain.SessionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, sessionID string) (<-chan domain.SessionEvent, func(), error) {
	ch := make(chan domain.SessionEvent, 8)

	b.mu.Lock()
	subs, ok := b.subscribers[sessionID]
	if !ok {
		subs = make(map[chan domain.SessionEvent]struct{})
		b.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[sessionID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many listeners a session currently has.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}
