package feed

import (
	"context"
	"sync"
)

// LocalBroker fans updates out inside one process. Used when Redis is not
// available. A subscriber that falls behind by more than its buffer misses
// updates rather than stalling publishers.
type LocalBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*localSubscription]struct{}
}

type localSubscription struct {
	ch     chan Update
	done   chan struct{}
	closed bool
}

// NewLocalBroker creates an empty broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[*localSubscription]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, ticketID string, update Update) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[ticketID] {
		select {
		case sub.ch <- update:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, ticketID string) (<-chan Update, func(), error) {
	sub := &localSubscription{ch: make(chan Update, subscriberBuffer), done: make(chan struct{})}

	b.mu.Lock()
	if b.subs[ticketID] == nil {
		b.subs[ticketID] = make(map[*localSubscription]struct{})
	}
	b.subs[ticketID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		delete(b.subs[ticketID], sub)
		if len(b.subs[ticketID]) == 0 {
			delete(b.subs, ticketID)
		}
		close(sub.ch)
		close(sub.done)
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, nil
}

func (b *LocalBroker) subscriberCount(ticketID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ticketID])
}
