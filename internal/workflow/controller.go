package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "workflow").Logger()

const DefaultTimeout = 15 * time.Second

type flightKey struct {
	entity string
	id     string
	action string
}

type Controller struct {
	api       API
	principal entity.Principal
	sink      Sink
	timeout   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	inflight map[flightKey]struct{}
	// pending maps an entity id to the version at which its cancellation
	// request was last seen pending.
	pendingOrders       map[string]int64
	pendingAppointments map[string]int64
}

type Option func(*Controller)

func WithSink(s Sink) Option { return func(c *Controller) { c.sink = s } }

func WithTimeout(d time.Duration) Option { return func(c *Controller) { c.timeout = d } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

func NewController(api API, principal entity.Principal, opts ...Option) *Controller {
	c := &Controller{
		api:                 api,
		principal:           principal,
		timeout:             DefaultTimeout,
		now:                 time.Now,
		inflight:            make(map[flightKey]struct{}),
		pendingOrders:       make(map[string]int64),
		pendingAppointments: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Principal() entity.Principal { return c.principal }

func (c *Controller) requireAdmin(op string) error {
	if !c.principal.IsAdmin() {
		return apperr.New(apperr.KindUnauthorized, op, "administrator role required")
	}
	return nil
}

func (c *Controller) requireOwner(op, userID string) error {
	if !c.principal.Owns(userID) {
		return apperr.New(apperr.KindUnauthorized, op, "not the owner")
	}
	return nil
}

// acquire claims key. pending, when given, is checked under the same lock so
// that a cancellation request recorded by a finished call cannot be missed.
func (c *Controller) acquire(op string, key flightKey, pending map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := pending[key.id]; ok {
		return apperr.New(apperr.KindDuplicateRequest, op, "a cancellation request is already pending")
	}
	if _, busy := c.inflight[key]; busy {
		return apperr.New(apperr.KindDuplicateRequest, op, "already in flight")
	}
	c.inflight[key] = struct{}{}
	return nil
}

func (c *Controller) release(key flightKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// InFlight reports whether a mutation is outstanding for the entity.
func (c *Controller) InFlight(entityKind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.inflight {
		if key.entity == entityKind && key.id == id {
			return true
		}
	}
	return false
}

// call runs fn under the single-flight guard and the controller timeout.
// commit records a successful result before key is released.
func call[T any](c *Controller, ctx context.Context, op string, key flightKey, pending map[string]int64, fn func(ctx context.Context) (T, error), commit func(T)) (T, error) {
	var zero T
	if err := c.acquire(op, key, pending); err != nil {
		return zero, err
	}
	defer c.release(key)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	out, err := fn(ctx)
	if err != nil {
		err = classify(ctx, op, err)
		logger.Warn().Err(err).Str("op", op).Str("id", key.id).Dur("elapsed", c.now().Sub(start)).Msg("Mutation failed")
		return zero, err
	}
	if commit != nil {
		commit(out)
	}
	logger.Info().Str("op", op).Str("id", key.id).Str("user_id", c.principal.UserID).Msg("Mutation committed")
	return out, nil
}

// classify turns a timeout or cancellation into Unknown: the service may
// still commit the transition and publish its event.
func classify(ctx context.Context, op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindUnknown {
		if appErr.Kind == apperr.KindForbidden {
			return apperr.Wrap(apperr.KindUnauthorized, op, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return apperr.Wrap(apperr.KindUnknown, op, err)
	}
	if appErr != nil {
		return err
	}
	return apperr.Wrap(apperr.KindTransportUnavailable, op, fmt.Errorf("request failed: %w", err))
}

func (c *Controller) applyOrder(o entity.Order) {
	c.ObserveOrder(o)
	if c.sink != nil {
		c.sink.ApplyOrder(o)
	}
}

func (c *Controller) applyAppointment(a entity.Appointment) {
	c.ObserveAppointment(a)
	if c.sink != nil {
		c.sink.ApplyAppointment(a)
	}
}

// ObserveOrder updates the pending gate from a snapshot. A pending request
// is only cleared by a snapshot newer than the one that showed it pending.
func (c *Controller) ObserveOrder(o entity.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pendingAt, pending := c.pendingOrders[o.ID]
	switch {
	case o.CancellationRequested && !o.Status.Terminal():
		if !pending || o.Version > pendingAt {
			c.pendingOrders[o.ID] = o.Version
		}
	case pending && resolves(pendingAt, o.Version):
		delete(c.pendingOrders, o.ID)
	}
}

func (c *Controller) ObserveAppointment(a entity.Appointment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pendingAt, pending := c.pendingAppointments[a.ID]
	switch {
	case a.Status == entity.AppointmentCancelRequested:
		if !pending || a.Version > pendingAt {
			c.pendingAppointments[a.ID] = a.Version
		}
	case pending && resolves(pendingAt, a.Version):
		delete(c.pendingAppointments, a.ID)
	}
}

func resolves(pendingAt, version int64) bool {
	return pendingAt == 0 || version == 0 || version > pendingAt
}

func (c *Controller) orderPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pendingOrders[id]
	return ok
}

func (c *Controller) appointmentPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pendingAppointments[id]
	return ok
}
