package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"lifecycle-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "bus").Logger()

// TopicHeader carries the logical topic of a Kafka message.
const TopicHeader = "topic"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ReaderFactory opens a reader on the physical topics for one consumer group.
type ReaderFactory func(topics []string, groupID string) MessageReader

// KafkaPublisher writes every logical message to its physical topic keyed by
// entity id, so that messages for one entity share a partition.
type KafkaPublisher struct {
	writer   MessageWriter
	topology Topology
}

func NewKafkaPublisher(writer MessageWriter, topology Topology) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topology: topology}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		km, err := p.encode(msg)
		if err != nil {
			return err
		}
		out = append(out, km)
	}
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(out), err)
	}
	return nil
}

func (p *KafkaPublisher) encode(msg Message) (kafka.Message, error) {
	topic, err := p.topology.Physical(msg.Topic)
	if err != nil {
		return kafka.Message{}, err
	}
	value, err := json.Marshal(msg.Event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: TopicHeader, Value: []byte(msg.Topic)}},
	}, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Backoff is an exponential reconnect delay.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var DefaultBackoff = Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second}

// Delay returns the wait before reconnect attempt n, starting at 0.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// KafkaSubscriber consumes the physical topics with one consumer group per
// subscription, so every session sees every message, and filters them down
// to the subscription's logical topics.
type KafkaSubscriber struct {
	newReader   ReaderFactory
	topology    Topology
	backoff     Backoff
	groupPrefix string
	// OnState, when set, is called on every connection state change.
	OnState func(State)
}

func NewKafkaSubscriber(newReader ReaderFactory, topology Topology, groupPrefix string) *KafkaSubscriber {
	return &KafkaSubscriber{
		newReader:   newReader,
		topology:    topology,
		backoff:     DefaultBackoff,
		groupPrefix: groupPrefix,
	}
}

func (k *KafkaSubscriber) WithBackoff(b Backoff) *KafkaSubscriber {
	k.backoff = b
	return k
}

func (k *KafkaSubscriber) Subscribe(ctx context.Context, topics []string, h Handler) (Subscription, error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	physical, err := k.topology.PhysicalSet(topics)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &kafkaSubscription{
		topics:   slices.Clone(topics),
		set:      topicSet(topics),
		physical: physical,
		groupID:  k.groupPrefix + "-" + uuid.NewString(),
		handler:  h,
		parent:   k,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.setState(StateConnecting)
	go s.run(ctx)
	return s, nil
}

type kafkaSubscription struct {
	topics   []string
	set      map[string]bool
	physical []string
	groupID  string
	handler  Handler
	parent   *KafkaSubscriber

	state     atomic.Int32
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (s *kafkaSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateClosed)

	attempt := 0
	for {
		reader := s.parent.newReader(s.physical, s.groupID)
		s.setState(StateConnected)
		err := s.consume(ctx, reader, &attempt)
		reader.Close()
		if ctx.Err() != nil {
			return
		}

		s.setState(StateReconnecting)
		delay := s.parent.backoff.Delay(attempt)
		logger.Warn().Err(err).Str("group_id", s.groupID).Dur("delay", delay).Msg("Bus connection lost, reconnecting")
		attempt++

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consume reads until the reader fails and returns that error.
func (s *kafkaSubscription) consume(ctx context.Context, reader MessageReader, attempt *int) error {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			return err
		}
		*attempt = 0
		s.dispatch(ctx, msg)
	}
}

func (s *kafkaSubscription) dispatch(ctx context.Context, msg kafka.Message) {
	topic := headerValue(msg.Headers, TopicHeader)
	if !s.set[topic] {
		return
	}
	var evt entity.RealtimeEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		logger.Error().Err(err).Str("topic", topic).Str("key", string(msg.Key)).Msg("Error decoding event")
		return
	}
	s.handler(ctx, topic, evt)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (s *kafkaSubscription) setState(state State) {
	if State(s.state.Swap(int32(state))) == state {
		return
	}
	if s.parent.OnState != nil {
		s.parent.OnState(state)
	}
}

func (s *kafkaSubscription) Topics() []string { return slices.Clone(s.topics) }

func (s *kafkaSubscription) State() State { return State(s.state.Load()) }

func (s *kafkaSubscription) Close() error {
	err := ErrClosed
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		err = nil
	})
	return err
}
