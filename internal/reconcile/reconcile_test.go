package reconcile

import (
	"context"
	"reflect"
	"testing"
	"time"

	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/entity"
)

func order(id string, status entity.OrderStatus, version int64) entity.Order {
	return entity.Order{ID: id, UserID: "u1", Status: status, Version: version}
}

func loadedOrders(items ...entity.Order) *Collection[entity.Order] {
	c := NewCollection[entity.Order]("orders")
	c.Load(entity.Page[entity.Order]{Number: 2, Size: len(items), Total: 40, Items: items})
	return c
}

func TestCollection_ApplyIsIdempotent(t *testing.T) {
	c := loadedOrders(order("1", entity.OrderPending, 1), order("2", entity.OrderPending, 1), order("3", entity.OrderPending, 1))
	snap := order("2", entity.OrderPreparing, 2)

	if got := c.Apply(snap); got != Applied {
		t.Fatalf("Expected applied, got %s", got)
	}
	once := c.Page()
	if got := c.Apply(snap); got != Unchanged {
		t.Errorf("Expected unchanged on repeat, got %s", got)
	}
	if !reflect.DeepEqual(once, c.Page()) {
		t.Errorf("Expected identical page after repeat apply")
	}
	ids := []string{}
	for _, o := range once.Items {
		ids = append(ids, o.ID)
	}
	if !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Errorf("Expected order preserved, got %v", ids)
	}
	if once.Number != 2 || once.Total != 40 {
		t.Errorf("Expected page boundaries preserved, got %+v", once)
	}
}

func TestCollection_NoPhantomInsert(t *testing.T) {
	c := loadedOrders(order("1", entity.OrderPending, 1))
	if got := c.Apply(order("99", entity.OrderShipping, 5)); got != Discarded {
		t.Errorf("Expected discarded, got %s", got)
	}
	if _, ok := c.Get("99"); ok {
		t.Errorf("Expected id 99 to stay off the page")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 item, got %d", c.Len())
	}
}

func TestCollection_StaleSnapshotIgnored(t *testing.T) {
	c := loadedOrders(order("1", entity.OrderShipping, 3))
	if got := c.Apply(order("1", entity.OrderPreparing, 2)); got != Stale {
		t.Errorf("Expected stale, got %s", got)
	}
	held, _ := c.Get("1")
	if held.Status != entity.OrderShipping {
		t.Errorf("Expected SHIPPING to survive, got %s", held.Status)
	}
}

func TestCollection_UnversionedReplacesUnconditionally(t *testing.T) {
	c := loadedOrders(order("1", entity.OrderShipping, 0))
	if got := c.Apply(order("1", entity.OrderPreparing, 0)); got != Applied {
		t.Errorf("Expected applied, got %s", got)
	}
	if got := c.Apply(order("1", entity.OrderPreparing, 0)); got != Unchanged {
		t.Errorf("Expected unchanged for identical snapshot, got %s", got)
	}
}

func TestCollection_LoadCopiesItems(t *testing.T) {
	items := []entity.Order{order("1", entity.OrderPending, 1)}
	c := loadedOrders(items...)
	items[0].Status = entity.OrderCancelled
	held, _ := c.Get("1")
	if held.Status != entity.OrderPending {
		t.Errorf("Expected held page to be independent of the loaded slice")
	}
}

type observed struct {
	orders       []string
	appointments []string
}

func (o *observed) ObserveOrder(x entity.Order) { o.orders = append(o.orders, x.ID) }
func (o *observed) ObserveAppointment(x entity.Appointment) { o.appointments = append(o.appointments, x.ID) }

func TestEngine_HandleNotifiesOncePerChange(t *testing.T) {
	var notes []Notification
	e := NewEngine(NotifierFunc(func(n Notification) { notes = append(notes, n) }))
	mine := loadedOrders(order("7", entity.OrderPending, 1))
	all := NewCollection[entity.Order]("all-orders")
	all.Load(entity.Page[entity.Order]{Number: 1, Size: 10, Total: 1, Items: []entity.Order{order("7", entity.OrderPending, 1)}})
	e.TrackOrders(mine)
	e.TrackOrders(all)
	obs := &observed{}
	e.Observe(obs)

	evt, err := entity.NewOrderEvent(entity.EventOrderUpdate, order("7", entity.OrderPreparing, 2), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	e.Handle(context.Background(), "user/u1/orders", evt)
	e.Handle(context.Background(), "user/u1/orders", evt)

	if len(notes) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notes))
	}
	if notes[0].Message != "Order 7 is now PREPARING" {
		t.Errorf("Unexpected message %q", notes[0].Message)
	}
	for _, c := range []*Collection[entity.Order]{mine, all} {
		held, _ := c.Get("7")
		if held.Status != entity.OrderPreparing {
			t.Errorf("%s: expected PREPARING, got %s", c.Name(), held.Status)
		}
	}
	if len(obs.orders) != 2 {
		t.Errorf("Expected observer to see both deliveries, got %v", obs.orders)
	}
}

func TestEngine_DropsUndecodablePayload(t *testing.T) {
	e := NewEngine(nil)
	c := loadedOrders(order("7", entity.OrderPending, 1))
	e.TrackOrders(c)
	e.Handle(context.Background(), "admin/orders", entity.RealtimeEvent{Type: entity.EventAdminOrderUpdate, Payload: []byte("{")})
	held, _ := c.Get("7")
	if held.Status != entity.OrderPending {
		t.Errorf("Expected held order untouched, got %s", held.Status)
	}
}

func TestEngine_AppointmentRejectMessage(t *testing.T) {
	var notes []Notification
	e := NewEngine(NotifierFunc(func(n Notification) { notes = append(notes, n) }))
	c := NewCollection[entity.Appointment]("appointments")
	c.Load(entity.Page[entity.Appointment]{Number: 1, Size: 10, Total: 1, Items: []entity.Appointment{
		{ID: "a1", Status: entity.AppointmentCancelRequested, StatusBeforeCancel: entity.AppointmentPending, Version: 2},
	}})
	e.TrackAppointments(c)

	e.ApplyAppointment(entity.Appointment{ID: "a1", Status: entity.AppointmentPending, CancellationReason: "technician already dispatched", Version: 3})

	if len(notes) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notes))
	}
	want := "Appointment a1: cancellation rejected (technician already dispatched)"
	if notes[0].Message != want {
		t.Errorf("Expected %q, got %q", want, notes[0].Message)
	}
	e.Untrack("appointments")
	if e.ApplyAppointment(entity.Appointment{ID: "a1", Status: entity.AppointmentCancelled, Version: 4}) {
		t.Errorf("Expected no collection after untrack")
	}
}

func TestTray_ExpiresNotifications(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tray := NewTray(5*time.Second, 2)
	tray.now = func() time.Time { return now }

	tray.Notify(Notification{ID: "1"})
	now = now.Add(3 * time.Second)
	tray.Notify(Notification{ID: "2"})
	tray.Notify(Notification{ID: "3"})

	if got := tray.Active(); len(got) != 2 || got[0].ID != "2" {
		t.Errorf("Expected limit to keep the newest two, got %+v", got)
	}
	now = now.Add(5 * time.Second)
	if got := tray.Active(); len(got) != 0 {
		t.Errorf("Expected all notifications to expire, got %+v", got)
	}
}

// Two admin sessions on admin/orders converge on the same snapshot of order
// 7 from a single publish, without fetching.
func TestTwoAdminSessionsConverge(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemoryBus()

	var sessions []*Collection[entity.Order]
	for _, admin := range []string{"a1", "a2"} {
		e := NewEngine(nil)
		c := loadedOrders(order("5", entity.OrderPending, 1), order("7", entity.OrderPreparing, 4))
		e.TrackOrders(c)
		sessions = append(sessions, c)
		if _, err := b.Subscribe(ctx, bus.TopicsFor(entity.Principal{UserID: admin, Role: entity.RoleAdmin}), e.Handle); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	msgs, err := bus.OrderMessages(order("7", entity.OrderShipping, 5), time.Now())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := b.Publish(ctx, msgs...); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	first, _ := sessions[0].Get("7")
	second, _ := sessions[1].Get("7")
	if first.Status != entity.OrderShipping || second.Status != entity.OrderShipping {
		t.Errorf("Expected both sessions at SHIPPING, got %s and %s", first.Status, second.Status)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical snapshots, got %+v and %+v", first, second)
	}
}
