package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/reconcile"
	"lifecycle-service/internal/repository"
	"lifecycle-service/internal/service"
)

var (
	customer = entity.Principal{UserID: "u1", Role: entity.RoleCustomer}
	admin    = entity.Principal{UserID: "ops", Role: entity.RoleAdmin}
)

type world struct {
	svc *service.LifecycleService
	bus *bus.MemoryBus
}

func newWorld() *world {
	store := repository.NewMemoryStore()
	b := bus.NewMemoryBus()
	return &world{svc: service.NewLifecycleService(store, store, store, b), bus: b}
}

func (w *world) start(t *testing.T, p entity.Principal) *Session {
	t.Helper()
	s, err := Start(context.Background(), Config{Principal: p, Backend: w.svc.As(p), Subscriber: w.bus, PageSize: 10})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return s
}

func hasMessage(ns []reconcile.Notification, want string) bool {
	for _, n := range ns {
		if n.Message == want {
			return true
		}
	}
	return false
}

func TestOrderCancellationAcrossSessions(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	o, err := w.svc.CreateOrder(ctx, customer, service.CreateOrderRequest{
		PaymentMethod: entity.PaymentCOD,
		Items:         []entity.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mine := w.start(t, customer)
	ops := w.start(t, admin)
	if mine.Orders().Len() != 1 || ops.Orders().Len() != 1 {
		t.Fatalf("Expected both sessions to hold the order")
	}

	held, _ := mine.Orders().Get(o.ID)
	if _, err := mine.Controller().RequestOrderCancellation(ctx, held); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := mine.Controller().RequestOrderCancellation(ctx, held); !errors.Is(err, apperr.ErrDuplicateRequest) {
		t.Errorf("Expected DuplicateRequest while pending, got %v", err)
	}

	seen, _ := ops.Orders().Get(o.ID)
	if !seen.CancellationRequested || seen.Version != 2 {
		t.Fatalf("Expected the admin session to see the request, got %+v", seen)
	}
	if !hasMessage(ops.Notifications(), "Order "+o.ID+": cancellation requested") {
		t.Errorf("Expected a request notification, got %+v", ops.Notifications())
	}

	if _, err := ops.Controller().ReviewOrderCancellation(ctx, seen, false, "Already packed"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	after, _ := mine.Orders().Get(o.ID)
	if after.CancellationRequested || after.CancellationReason != "Already packed" || after.Version != 3 {
		t.Errorf("Expected the rejection to reach the customer, got %+v", after)
	}
	if !hasMessage(mine.Notifications(), "Order "+o.ID+": cancellation rejected (Already packed)") {
		t.Errorf("Expected a rejection notification, got %+v", mine.Notifications())
	}

	if _, err := mine.Controller().RequestOrderCancellation(ctx, after); err != nil {
		t.Errorf("Expected a new request after rejection, got %v", err)
	}
}

func TestAppointmentRejectionRevertsToPending(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	a, err := w.svc.CreateAppointment(ctx, customer, service.CreateAppointmentRequest{
		ServiceID:       "massage",
		AppointmentDate: time.Now().Add(48 * time.Hour),
		DurationMinutes: 90,
		Price:           decimal.NewFromInt(300000),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mine := w.start(t, customer)
	ops := w.start(t, admin)

	held, _ := mine.Appointments().Get(a.ID)
	if _, err := mine.Controller().RequestAppointmentCancellation(ctx, held, "Schedule clash"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	seen, _ := ops.Appointments().Get(a.ID)
	if seen.Status != entity.AppointmentCancelRequested {
		t.Fatalf("Expected CANCEL_REQUESTED on the admin side, got %s", seen.Status)
	}

	if _, err := ops.Controller().ReviewAppointmentCancellation(ctx, seen, false, "Too late to cancel"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	after, _ := mine.Appointments().Get(a.ID)
	if after.Status != entity.AppointmentPending || after.CancellationReason != "Too late to cancel" {
		t.Errorf("Expected PENDING with the reason, got %+v", after)
	}
}

func TestCustomerDoesNotSeeOtherCustomers(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	other := entity.Principal{UserID: "u2", Role: entity.RoleCustomer}
	mine := w.start(t, customer)

	var got []string
	theirs, err := Start(ctx, Config{
		Principal:  other,
		Backend:    w.svc.As(other),
		Subscriber: w.bus,
		Notifier:   reconcile.NotifierFunc(func(n reconcile.Notification) { got = append(got, n.Message) }),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer theirs.Close()

	if _, err := w.svc.CreateOrder(ctx, customer, service.CreateOrderRequest{
		PaymentMethod: entity.PaymentCOD,
		Items:         []entity.OrderItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := theirs.LoadOrders(ctx, 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if theirs.Orders().Len() != 0 || len(got) != 0 {
		t.Errorf("Expected nothing for u2, got %d orders and %v", theirs.Orders().Len(), got)
	}
	if err := mine.LoadOrders(ctx, 1); err != nil || mine.Orders().Len() != 1 {
		t.Errorf("Expected u1 to see the order, got %d, %v", mine.Orders().Len(), err)
	}
}

func TestTransportState(t *testing.T) {
	w := newWorld()
	s, err := Start(context.Background(), Config{Principal: customer, Backend: w.svc.As(customer), Subscriber: w.bus})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Transport(); err != nil {
		t.Errorf("Expected a connected transport, got %v", err)
	}
	s.Close()
	err = s.Transport()
	if !errors.Is(err, apperr.ErrTransportUnavailable) || !strings.Contains(err.Error(), "closed") {
		t.Errorf("Expected TransportUnavailable after close, got %v", err)
	}
	if w.bus.Subscribers() != 0 {
		t.Errorf("Expected the subscription to be removed, got %d", w.bus.Subscribers())
	}
}

func TestStartRequiresPrincipal(t *testing.T) {
	w := newWorld()
	_, err := Start(context.Background(), Config{Backend: w.svc.As(entity.Principal{}), Subscriber: w.bus})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("Expected Unauthorized, got %v", err)
	}
}
