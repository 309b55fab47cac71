package reconcile

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lifecycle-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "reconcile").Logger()

// Observer sees every snapshot the engine handles, whether or not it was
// applied to a held page.
type Observer interface {
	ObserveOrder(o entity.Order)
	ObserveAppointment(a entity.Appointment)
}

// Engine routes pushed events into the registered collections of one
// session. Handle is meant to be the session's bus handler; it never does
// network I/O.
type Engine struct {
	notifier Notifier

	mu           sync.RWMutex
	orders       []*Collection[entity.Order]
	appointments []*Collection[entity.Appointment]
	observers    []Observer
}

func NewEngine(notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	return &Engine{notifier: notifier}
}

func (e *Engine) TrackOrders(c *Collection[entity.Order]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = append(e.orders, c)
}

func (e *Engine) TrackAppointments(c *Collection[entity.Appointment]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appointments = append(e.appointments, c)
}

// Untrack stops routing to the collection with the given name.
func (e *Engine) Untrack(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders = slices.DeleteFunc(e.orders, func(c *Collection[entity.Order]) bool { return c.Name() == name })
	e.appointments = slices.DeleteFunc(e.appointments, func(c *Collection[entity.Appointment]) bool { return c.Name() == name })
}

func (e *Engine) Observe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Handle decodes evt and merges its snapshot.
func (e *Engine) Handle(_ context.Context, topic string, evt entity.RealtimeEvent) {
	switch {
	case evt.Type.IsOrder():
		o, err := evt.Order()
		if err != nil {
			logger.Error().Err(err).Str("topic", topic).Msg("Dropping undecodable event")
			return
		}
		e.ApplyOrder(o)
	case evt.Type.IsAppointment():
		a, err := evt.Appointment()
		if err != nil {
			logger.Error().Err(err).Str("topic", topic).Msg("Dropping undecodable event")
			return
		}
		e.ApplyAppointment(a)
	default:
		logger.Warn().Str("topic", topic).Str("type", string(evt.Type)).Msg("Dropping event of unknown type")
	}
}

// ApplyOrder merges o into every tracked order collection and reports
// whether any held page changed.
func (e *Engine) ApplyOrder(o entity.Order) bool {
	e.mu.RLock()
	collections := slices.Clone(e.orders)
	observers := slices.Clone(e.observers)
	e.mu.RUnlock()

	var prev entity.Order
	var found, applied bool
	for _, c := range collections {
		if held, ok := c.Get(o.ID); ok && !found {
			prev, found = held, true
		}
		outcome := c.Apply(o)
		if outcome == Applied {
			applied = true
		}
		logger.Debug().Str("collection", c.Name()).Str("order_id", o.ID).Int64("version", o.Version).Stringer("outcome", outcome).Msg("Order snapshot merged")
	}
	for _, obs := range observers {
		obs.ObserveOrder(o)
	}
	if applied {
		e.notifier.Notify(Notification{
			Entity:  KindOrder,
			ID:      o.ID,
			Status:  string(o.Status),
			Message: orderMessage(prev, o),
			At:      time.Now(),
		})
	}
	return applied
}

func (e *Engine) ApplyAppointment(a entity.Appointment) bool {
	e.mu.RLock()
	collections := slices.Clone(e.appointments)
	observers := slices.Clone(e.observers)
	e.mu.RUnlock()

	var prev entity.Appointment
	var found, applied bool
	for _, c := range collections {
		if held, ok := c.Get(a.ID); ok && !found {
			prev, found = held, true
		}
		outcome := c.Apply(a)
		if outcome == Applied {
			applied = true
		}
		logger.Debug().Str("collection", c.Name()).Str("appointment_id", a.ID).Int64("version", a.Version).Stringer("outcome", outcome).Msg("Appointment snapshot merged")
	}
	for _, obs := range observers {
		obs.ObserveAppointment(a)
	}
	if applied {
		e.notifier.Notify(Notification{
			Entity:  KindAppointment,
			ID:      a.ID,
			Status:  string(a.Status),
			Message: appointmentMessage(prev, a),
			At:      time.Now(),
		})
	}
	return applied
}

func orderMessage(prev, next entity.Order) string {
	switch {
	case next.CancellationRequested && !prev.CancellationRequested:
		return fmt.Sprintf("Order %s: cancellation requested", next.ID)
	case prev.CancellationRequested && !next.CancellationRequested && next.Status != entity.OrderCancelled:
		return fmt.Sprintf("Order %s: cancellation rejected (%s)", next.ID, next.CancellationReason)
	}
	return fmt.Sprintf("Order %s is now %s", next.ID, next.Status)
}

func appointmentMessage(prev, next entity.Appointment) string {
	switch {
	case prev.Status == entity.AppointmentCancelRequested && next.Status != entity.AppointmentCancelled:
		return fmt.Sprintf("Appointment %s: cancellation rejected (%s)", next.ID, next.CancellationReason)
	case next.Status == entity.AppointmentConfirmed && next.EmployeeID != "":
		return fmt.Sprintf("Appointment %s is now CONFIRMED with %s", next.ID, next.EmployeeID)
	}
	return fmt.Sprintf("Appointment %s is now %s", next.ID, next.Status)
}
