package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes updates over Redis pub/sub, one channel per ticket,
// so every API instance sees every update.
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBroker creates a broker on an existing client.
func NewRedisBroker(client redis.UniversalClient, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) channel(ticketID string) string {
	return b.prefix + ticketID
}

// Publish sends update on the ticket's channel.
func (b *RedisBroker) Publish(ctx context.Context, ticketID string, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(ticketID), payload).Err(); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

// Subscribe listens on the ticket's channel. It waits for Redis to confirm
// the subscription before returning.
func (b *RedisBroker) Subscribe(ctx context.Context, ticketID string) (<-chan Update, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(ticketID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", ticketID, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}

	out := make(chan Update, subscriberBuffer)
	go func() {
		defer close(out)
		defer cancel()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var update Update
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}
