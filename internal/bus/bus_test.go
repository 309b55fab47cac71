package bus

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"lifecycle-service/internal/entity"
)

func TestTopicsFor(t *testing.T) {
	customer := TopicsFor(entity.Principal{UserID: "u1", Role: entity.RoleCustomer})
	want := []string{"user/u1/orders", "user/u1/appointments"}
	if !reflect.DeepEqual(customer, want) {
		t.Errorf("Expected %v, got %v", want, customer)
	}

	admin := TopicsFor(entity.Principal{UserID: "a1", Role: entity.RoleAdmin})
	want = []string{"user/a1/orders", "user/a1/appointments", "admin/orders", "admin/appointments"}
	if !reflect.DeepEqual(admin, want) {
		t.Errorf("Expected %v, got %v", want, admin)
	}
}

func TestTopology_PhysicalSet(t *testing.T) {
	got, err := DefaultTopology.PhysicalSet([]string{"user/u1/orders", "admin/orders", "admin/appointments"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []string{"lifecycle-orders", "lifecycle-appointments"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if _, err := DefaultTopology.Physical("user/u1/carts"); err == nil {
		t.Errorf("Expected an error for an unknown family")
	}
}

func TestOrderMessages(t *testing.T) {
	msgs, err := OrderMessages(entity.Order{ID: "7", UserID: "u1", Status: entity.OrderShipping}, time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "user/u1/orders" || msgs[0].Event.Type != entity.EventOrderUpdate {
		t.Errorf("Unexpected owner message %+v", msgs[0])
	}
	if msgs[1].Topic != AdminOrdersTopic || msgs[1].Event.Type != entity.EventAdminOrderUpdate {
		t.Errorf("Unexpected admin message %+v", msgs[1])
	}
	for _, m := range msgs {
		if m.Key != "7" {
			t.Errorf("Expected key 7, got %s", m.Key)
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	topics []string
	events []entity.RealtimeEvent
}

func (r *recorder) handle(_ context.Context, topic string, evt entity.RealtimeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, evt)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestMemoryBus_RoutesByTopic(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()

	var admin1, admin2, owner, other recorder
	for _, sub := range []struct {
		p entity.Principal
		r *recorder
	}{
		{entity.Principal{UserID: "a1", Role: entity.RoleAdmin}, &admin1},
		{entity.Principal{UserID: "a2", Role: entity.RoleAdmin}, &admin2},
		{entity.Principal{UserID: "u1", Role: entity.RoleCustomer}, &owner},
		{entity.Principal{UserID: "u2", Role: entity.RoleCustomer}, &other},
	} {
		if _, err := b.Subscribe(ctx, TopicsFor(sub.p), sub.r.handle); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	msgs, _ := OrderMessages(entity.Order{ID: "7", UserID: "u1"}, time.Now())
	if err := b.Publish(ctx, msgs...); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if admin1.count() != 1 || admin2.count() != 1 {
		t.Errorf("Expected each admin to receive 1 event, got %d and %d", admin1.count(), admin2.count())
	}
	if owner.count() != 1 || owner.events[0].Type != entity.EventOrderUpdate {
		t.Errorf("Expected owner to receive one OrderUpdate, got %v", owner.events)
	}
	if other.count() != 0 {
		t.Errorf("Expected another customer to receive nothing, got %d", other.count())
	}
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	var r recorder
	sub, _ := b.Subscribe(ctx, []string{AdminOrdersTopic}, r.handle)

	if err := sub.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !errors.Is(sub.Close(), ErrClosed) {
		t.Errorf("Expected second close to report ErrClosed")
	}
	if sub.State() != StateClosed {
		t.Errorf("Expected closed state, got %s", sub.State())
	}
	msgs, _ := OrderMessages(entity.Order{ID: "7", UserID: "u1"}, time.Now())
	_ = b.Publish(ctx, msgs...)
	if r.count() != 0 {
		t.Errorf("Expected no delivery after close, got %d", r.count())
	}
	if b.Subscribers() != 0 {
		t.Errorf("Expected no subscribers, got %d", b.Subscribers())
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_KeysAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, DefaultTopology)
	msgs, _ := AppointmentMessages(entity.Appointment{ID: "a9", UserID: "u1"}, time.Now())

	if err := p.Publish(context.Background(), msgs...); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("Expected 2 kafka messages, got %d", len(w.msgs))
	}
	for i, km := range w.msgs {
		if km.Topic != "lifecycle-appointments" {
			t.Errorf("Expected physical topic lifecycle-appointments, got %s", km.Topic)
		}
		if string(km.Key) != "a9" {
			t.Errorf("Expected key a9, got %s", km.Key)
		}
		if got := headerValue(km.Headers, TopicHeader); got != msgs[i].Topic {
			t.Errorf("Expected header %s, got %s", msgs[i].Topic, got)
		}
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), msgs...); err == nil {
		t.Errorf("Expected write error to be returned")
	}
}

type readResult struct {
	msg kafka.Message
	err error
}

type fakeReader struct {
	ch <-chan readResult
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case res := <-r.ch:
		return res.msg, res.err
	}
}

func (r *fakeReader) Close() error { return nil }

func encoded(t *testing.T, msg Message) kafka.Message {
	t.Helper()
	km, err := NewKafkaPublisher(&fakeWriter{}, DefaultTopology).encode(msg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return km
}

func TestKafkaSubscriber_FiltersAndReconnects(t *testing.T) {
	ch := make(chan readResult)
	var (
		mu      sync.Mutex
		opened  int
		groups  []string
		states  []State
		handled = make(chan entity.RealtimeEvent, 4)
	)
	factory := func(topics []string, groupID string) MessageReader {
		mu.Lock()
		defer mu.Unlock()
		opened++
		groups = append(groups, groupID)
		return &fakeReader{ch: ch}
	}
	sub := NewKafkaSubscriber(factory, DefaultTopology, "session").
		WithBackoff(Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond})
	sub.OnState = func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}

	s, err := sub.Subscribe(context.Background(), []string{"user/u1/orders"}, func(_ context.Context, _ string, evt entity.RealtimeEvent) {
		handled <- evt
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	own, _ := OrderMessages(entity.Order{ID: "1", UserID: "u1"}, time.Now())
	foreign, _ := OrderMessages(entity.Order{ID: "2", UserID: "u2"}, time.Now())

	ch <- readResult{msg: encoded(t, foreign[0])}
	ch <- readResult{msg: encoded(t, own[1])}
	ch <- readResult{err: errors.New("connection reset")}
	ch <- readResult{msg: encoded(t, own[0])}

	select {
	case evt := <-handled:
		got, err := evt.Order()
		if err != nil || got.ID != "1" {
			t.Errorf("Expected order 1, got %+v (%v)", got, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 0 {
		t.Errorf("Expected filtered messages to be dropped, got %d extra", len(handled))
	}
	if opened != 2 {
		t.Errorf("Expected reader to be reopened once, got %d opens", opened)
	}
	if groups[0] != groups[1] {
		t.Errorf("Expected the same consumer group on reconnect, got %v", groups)
	}
	if !containsState(states, StateReconnecting) {
		t.Errorf("Expected a reconnecting state, got %v", states)
	}
	if states[len(states)-1] != StateClosed {
		t.Errorf("Expected final closed state, got %v", states)
	}
}

func containsState(states []State, want State) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Attempt %d: expected %s, got %s", tt.attempt, tt.want, got)
		}
	}
}
