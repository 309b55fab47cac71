package workflow

import (
	"context"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/lifecycle"
)

const (
	entityOrder       = "order"
	entityAppointment = "appointment"
)

// RequestOrderCancellation asks for o to be cancelled. No reason is needed.
// While a request is pending, repeat calls fail with DuplicateRequest
// without reaching the service.
func (c *Controller) RequestOrderCancellation(ctx context.Context, o entity.Order) (entity.Order, error) {
	const op = "RequestOrderCancellation"
	if err := c.requireOwner(op, o.UserID); err != nil {
		return o, err
	}
	if c.orderPending(o.ID) {
		return o, apperr.New(apperr.KindDuplicateRequest, op, "a cancellation request is already pending")
	}
	if _, err := lifecycle.ApplyOrder(o, lifecycle.OrderCommand{Action: lifecycle.OrderRequestCancel}); err != nil {
		return o, err
	}
	key := flightKey{entityOrder, o.ID, string(lifecycle.OrderRequestCancel)}
	out, err := call(c, ctx, op, key, c.pendingOrders, func(ctx context.Context) (entity.Order, error) {
		return c.api.RequestCancelOrder(ctx, o.ID, "")
	}, c.applyOrder)
	if err != nil {
		return o, err
	}
	return out, nil
}

// ReviewOrderCancellation approves or rejects a pending request. Rejection
// needs a reason, which is surfaced to the customer.
func (c *Controller) ReviewOrderCancellation(ctx context.Context, o entity.Order, approve bool, reason string) (entity.Order, error) {
	const op = "ReviewOrderCancellation"
	if err := c.requireAdmin(op); err != nil {
		return o, err
	}
	action := lifecycle.OrderRejectCancel
	if approve {
		action = lifecycle.OrderApproveCancel
		reason = ""
	}
	if _, err := lifecycle.ApplyOrder(o, lifecycle.OrderCommand{Action: action, Reason: reason}); err != nil {
		return o, err
	}
	key := flightKey{entityOrder, o.ID, "REVIEW_CANCEL"}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Order, error) {
		return c.api.ReviewCancelOrder(ctx, o.ID, approve, reason)
	}, c.applyOrder)
	if err != nil {
		return o, err
	}
	return out, nil
}

// CancelOrder cancels o directly, bypassing the request step.
func (c *Controller) CancelOrder(ctx context.Context, o entity.Order, reason string) (entity.Order, error) {
	const op = "CancelOrder"
	if err := c.requireAdmin(op); err != nil {
		return o, err
	}
	if _, err := lifecycle.ApplyOrder(o, lifecycle.OrderCommand{Action: lifecycle.OrderCancel, Reason: reason}); err != nil {
		return o, err
	}
	key := flightKey{entityOrder, o.ID, string(lifecycle.OrderCancel)}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Order, error) {
		return c.api.CancelOrder(ctx, o.ID, reason)
	}, c.applyOrder)
	if err != nil {
		return o, err
	}
	return out, nil
}

func (c *Controller) RequestAppointmentCancellation(ctx context.Context, a entity.Appointment, reason string) (entity.Appointment, error) {
	const op = "RequestAppointmentCancellation"
	if err := c.requireOwner(op, a.UserID); err != nil {
		return a, err
	}
	if c.appointmentPending(a.ID) {
		return a, apperr.New(apperr.KindDuplicateRequest, op, "a cancellation request is already pending")
	}
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentRequestCancel, Reason: reason}
	if _, err := lifecycle.ApplyAppointment(a, cmd); err != nil {
		return a, err
	}
	key := flightKey{entityAppointment, a.ID, string(lifecycle.AppointmentRequestCancel)}
	out, err := call(c, ctx, op, key, c.pendingAppointments, func(ctx context.Context) (entity.Appointment, error) {
		return c.api.RequestCancelAppointment(ctx, a.ID, reason)
	}, c.applyAppointment)
	if err != nil {
		return a, err
	}
	return out, nil
}

func (c *Controller) ReviewAppointmentCancellation(ctx context.Context, a entity.Appointment, approve bool, reason string) (entity.Appointment, error) {
	const op = "ReviewAppointmentCancellation"
	if err := c.requireAdmin(op); err != nil {
		return a, err
	}
	action := lifecycle.AppointmentRejectCancel
	if approve {
		action = lifecycle.AppointmentApproveCancel
		reason = ""
	}
	if _, err := lifecycle.ApplyAppointment(a, lifecycle.AppointmentCommand{Action: action, Reason: reason}); err != nil {
		return a, err
	}
	key := flightKey{entityAppointment, a.ID, "REVIEW_CANCEL"}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Appointment, error) {
		return c.api.ReviewCancelAppointment(ctx, a.ID, approve, reason)
	}, c.applyAppointment)
	if err != nil {
		return a, err
	}
	return out, nil
}

func (c *Controller) CancelAppointment(ctx context.Context, a entity.Appointment, reason string) (entity.Appointment, error) {
	const op = "CancelAppointment"
	if err := c.requireAdmin(op); err != nil {
		return a, err
	}
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentCancel, Reason: reason}
	if _, err := lifecycle.ApplyAppointment(a, cmd); err != nil {
		return a, err
	}
	key := flightKey{entityAppointment, a.ID, string(lifecycle.AppointmentCancel)}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Appointment, error) {
		return c.api.CancelAppointment(ctx, a.ID, reason)
	}, c.applyAppointment)
	if err != nil {
		return a, err
	}
	return out, nil
}
