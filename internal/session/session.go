// Package session ties one principal's view together: the bus subscription,
// the reconciled page caches, the notification tray and the workflow
// controller. A Session is created at login and closed at logout; nothing in
// it is global.
package session

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/bus"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/reconcile"
	"lifecycle-service/internal/workflow"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "session").Logger()

const (
	DefaultNotificationTTL = 5 * time.Second
	notificationLimit      = 20
)

// Backend is the request/response surface a session talks to: the HTTP
// client in production, the service bound to a principal in process.
type Backend interface {
	workflow.API
	workflow.Queries
}

type Config struct {
	Principal  entity.Principal
	Backend    Backend
	Subscriber bus.Subscriber
	// Notifier, when set, receives every notification the tray receives.
	Notifier reconcile.Notifier
	Timeout  time.Duration
	PageSize int
}

type Session struct {
	principal    entity.Principal
	backend      Backend
	pageSize     int
	engine       *reconcile.Engine
	tray         *reconcile.Tray
	orders       *reconcile.Collection[entity.Order]
	appointments *reconcile.Collection[entity.Appointment]
	controller   *workflow.Controller
	sub          bus.Subscription
}

// Start subscribes to the principal's topics and returns a ready session.
// Pages are empty until LoadOrders / LoadAppointments is called.
func Start(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Principal.UserID == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "session.Start", "no principal")
	}
	if cfg.Backend == nil || cfg.Subscriber == nil {
		return nil, errors.New("session: backend and subscriber are required")
	}

	s := &Session{
		principal:    cfg.Principal,
		backend:      cfg.Backend,
		pageSize:     cfg.PageSize,
		tray:         reconcile.NewTray(DefaultNotificationTTL, notificationLimit),
		orders:       reconcile.NewCollection[entity.Order]("orders"),
		appointments: reconcile.NewCollection[entity.Appointment]("appointments"),
	}
	var notifier reconcile.Notifier = s.tray
	if cfg.Notifier != nil {
		extra := cfg.Notifier
		notifier = reconcile.NotifierFunc(func(n reconcile.Notification) {
			s.tray.Notify(n)
			extra.Notify(n)
		})
	}
	s.engine = reconcile.NewEngine(notifier)
	s.engine.TrackOrders(s.orders)
	s.engine.TrackAppointments(s.appointments)

	opts := []workflow.Option{workflow.WithSink(s.engine)}
	if cfg.Timeout > 0 {
		opts = append(opts, workflow.WithTimeout(cfg.Timeout))
	}
	s.controller = workflow.NewController(cfg.Backend, cfg.Principal, opts...)
	s.engine.Observe(s.controller)

	topics := bus.TopicsFor(cfg.Principal)
	sub, err := cfg.Subscriber.Subscribe(ctx, topics, s.engine.Handle)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransportUnavailable, "session.Start", err)
	}
	s.sub = sub
	logger.Info().Str("user_id", cfg.Principal.UserID).Str("role", string(cfg.Principal.Role)).Strs("topics", topics).Msg("Session started")
	return s, nil
}

func (s *Session) Principal() entity.Principal { return s.principal }

func (s *Session) Controller() *workflow.Controller { return s.controller }

func (s *Session) Orders() *reconcile.Collection[entity.Order] { return s.orders }

func (s *Session) Appointments() *reconcile.Collection[entity.Appointment] { return s.appointments }

// Notifications returns the notifications that have not yet been dismissed.
func (s *Session) Notifications() []reconcile.Notification { return s.tray.Active() }

// LoadOrders fetches page number of the principal's orders and makes it the
// held page. Loaded snapshots also seed the cancellation gate.
func (s *Session) LoadOrders(ctx context.Context, number int) error {
	page, err := s.backend.ListOrders(ctx, entity.PageRequest{Number: number, Size: s.pageSize})
	if err != nil {
		return err
	}
	s.orders.Load(page)
	for _, o := range page.Items {
		s.controller.ObserveOrder(o)
	}
	return nil
}

func (s *Session) LoadAppointments(ctx context.Context, number int) error {
	page, err := s.backend.ListAppointments(ctx, entity.PageRequest{Number: number, Size: s.pageSize})
	if err != nil {
		return err
	}
	s.appointments.Load(page)
	for _, a := range page.Items {
		s.controller.ObserveAppointment(a)
	}
	return nil
}

// Refresh reloads both held pages concurrently, keeping their page numbers.
// Used after a reconnect, since events published during the gap are lost.
func (s *Session) Refresh(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.LoadOrders(gctx, max(s.orders.Page().Number, 1)) })
	g.Go(func() error { return s.LoadAppointments(gctx, max(s.appointments.Page().Number, 1)) })
	return g.Wait()
}

func (s *Session) State() bus.State { return s.sub.State() }

// Transport returns TransportUnavailable while the subscription is not
// connected, so the UI can show a stale-data indicator.
func (s *Session) Transport() error {
	if state := s.sub.State(); state != bus.StateConnected {
		return apperr.New(apperr.KindTransportUnavailable, "session", "realtime updates "+state.String())
	}
	return nil
}

// Close tears the session down. Pushed events are no longer merged after
// Close returns.
func (s *Session) Close() error {
	s.engine.Untrack(s.orders.Name())
	s.engine.Untrack(s.appointments.Name())
	err := s.sub.Close()
	logger.Info().Str("user_id", s.principal.UserID).Msg("Session closed")
	return err
}
