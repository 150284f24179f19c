package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Broker carries session events over Redis pub/sub, one channel per session,
// so a websocket on any instance hears about writes made on any other.
type Broker struct {
	client *redis.Client
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func (b *Broker) Publish(ctx context.Context, event domain.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, eventsChannel(event.SessionID), data).Err()
}

// Subscribe returns once the subscription is confirmed by the server.
func (b *Broker) Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionEvent, func(), error) {
	pubsub := b.client.Subscribe(ctx, eventsChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan domain.SessionEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event domain.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("drop malformed event on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- event:
			case <-done:
				return
			default:
				// subscriber is behind; replace the stale event
				select {
				case <-out:
				default:
				}
				out <- event
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func eventsChannel(sessionID string) string {
	return "quiz:session:" + sessionID + ":events"
}
