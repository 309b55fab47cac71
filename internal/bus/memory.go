package bus

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("subscription closed")

// MemoryBus is an in-process Publisher and Subscriber. Publish delivers to
// every matching subscription before returning; each subscription handles
// its events one at a time.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[*memorySubscription]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, msgs ...Message) error {
	b.mu.RLock()
	subs := make([]*memorySubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, msg := range msgs {
		for _, s := range subs {
			s.deliver(ctx, msg)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topics []string, h Handler) (Subscription, error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	s := &memorySubscription{
		bus:     b,
		topics:  slices.Clone(topics),
		set:     topicSet(topics),
		handler: h,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of open subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type memorySubscription struct {
	bus     *MemoryBus
	topics  []string
	set     map[string]bool
	handler Handler

	// mu serialises handler calls.
	mu     sync.Mutex
	closed atomic.Bool
}

func (s *memorySubscription) deliver(ctx context.Context, msg Message) {
	if !s.set[msg.Topic] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	s.handler(ctx, msg.Topic, msg.Event)
}

func (s *memorySubscription) Topics() []string { return slices.Clone(s.topics) }

func (s *memorySubscription) State() State {
	if s.closed.Load() {
		return StateClosed
	}
	return StateConnected
}

func (s *memorySubscription) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return nil
}
