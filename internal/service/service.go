package service

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/lifecycle"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "service").Logger()

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (entity.Order, error)
	CreateOrder(ctx context.Context, o entity.Order) error
	UpdateOrder(ctx context.Context, o entity.Order, expectedVersion int64) error
	ListOrders(ctx context.Context, userID string, page entity.PageRequest) (entity.Page[entity.Order], error)
}

type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (entity.Appointment, error)
	CreateAppointment(ctx context.Context, a entity.Appointment) error
	UpdateAppointment(ctx context.Context, a entity.Appointment, expectedVersion int64) error
	ListAppointments(ctx context.Context, userID string, page entity.PageRequest) (entity.Page[entity.Appointment], error)
	EmployeeBookings(ctx context.Context, employeeID string, from, to time.Time) ([]entity.Appointment, error)
}

type VoucherStore interface {
	GetVoucherByCode(ctx context.Context, code string) (entity.Voucher, error)
	ConsumeVoucher(ctx context.Context, code string) error
	ReleaseVoucher(ctx context.Context, code string) error
}

// Locker takes a short-lived exclusive lock. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

const assignLockTTL = 10 * time.Second

// LifecycleService is the authoritative side of the order and appointment
// lifecycles. It applies the transition tables, persists with an optimistic
// version check and publishes every committed snapshot to the bus.
type LifecycleService struct {
	orders       OrderStore
	appointments AppointmentStore
	vouchers     VoucherStore
	publisher    bus.Publisher
	locker       Locker
	now          func() time.Time
}

type Option func(*LifecycleService)

// WithLocker serialises employee assignment across service replicas.
func WithLocker(l Locker) Option { return func(s *LifecycleService) { s.locker = l } }

func WithClock(now func() time.Time) Option { return func(s *LifecycleService) { s.now = now } }

// NewLifecycleService creates a new instance of LifecycleService
func NewLifecycleService(orders OrderStore, appointments AppointmentStore, vouchers VoucherStore, publisher bus.Publisher, opts ...Option) *LifecycleService {
	s := &LifecycleService{
		orders:       orders,
		appointments: appointments,
		vouchers:     vouchers,
		publisher:    publisher,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LifecycleService) clock() time.Time {
	return s.now().UTC()
}

func authenticated(op string, p entity.Principal) error {
	if p.UserID == "" {
		return apperr.New(apperr.KindUnauthorized, op, "no authenticated principal")
	}
	return nil
}

// authorize checks that p may perform an action of the given actor on an
// entity owned by ownerID.
func authorize(op string, p entity.Principal, actor lifecycle.Actor, ownerID string) error {
	if err := authenticated(op, p); err != nil {
		return err
	}
	switch actor {
	case lifecycle.ActorAdmin:
		if !p.IsAdmin() {
			return apperr.New(apperr.KindForbidden, op, "administrator role required")
		}
	case lifecycle.ActorCustomer:
		if !p.Owns(ownerID) {
			return apperr.New(apperr.KindForbidden, op, "only the owner may do this")
		}
	}
	return nil
}

// visible reports whether p may read an entity owned by ownerID. Entities of
// other customers are reported as missing.
func visible(op string, p entity.Principal, ownerID string) error {
	if err := authenticated(op, p); err != nil {
		return err
	}
	if !p.IsAdmin() && !p.Owns(ownerID) {
		return apperr.New(apperr.KindNotFound, op, "not found")
	}
	return nil
}

// scope returns the user filter for list queries.
func scope(p entity.Principal) string {
	if p.IsAdmin() {
		return ""
	}
	return p.UserID
}

func (s *LifecycleService) publishOrder(ctx context.Context, o entity.Order) {
	msgs, err := bus.OrderMessages(o, s.clock())
	if err == nil {
		err = s.publisher.Publish(ctx, msgs...)
	}
	if err != nil {
		logger.Error().Err(err).Str("order_id", o.ID).Int64("version", o.Version).Msg("Error publishing order event")
	}
}

func (s *LifecycleService) publishAppointment(ctx context.Context, a entity.Appointment) {
	msgs, err := bus.AppointmentMessages(a, s.clock())
	if err == nil {
		err = s.publisher.Publish(ctx, msgs...)
	}
	if err != nil {
		logger.Error().Err(err).Str("appointment_id", a.ID).Int64("version", a.Version).Msg("Error publishing appointment event")
	}
}
