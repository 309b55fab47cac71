package bus

import (
	"context"

	"lifecycle-service/internal/entity"
)

// Message is one event addressed to a logical topic. Key is the entity id.
type Message struct {
	Topic string
	Key   string
	Event entity.RealtimeEvent
}

type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Handler receives events serially for one subscription. It must not block
// on network I/O.
type Handler func(ctx context.Context, topic string, evt entity.RealtimeEvent)

type Subscriber interface {
	Subscribe(ctx context.Context, topics []string, h Handler) (Subscription, error)
}

type Subscription interface {
	Topics() []string
	State() State
	Close() error
}

type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

func topicSet(topics []string) map[string]bool {
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return set
}
