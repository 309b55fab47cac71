package workflow

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/lifecycle"
)

// SetOrderStatus moves o forward along the happy path. Setting CANCELLED
// goes through CancelOrder, which needs a reason.
func (c *Controller) SetOrderStatus(ctx context.Context, o entity.Order, status entity.OrderStatus) (entity.Order, error) {
	const op = "SetOrderStatus"
	if err := c.requireAdmin(op); err != nil {
		return o, err
	}
	action, err := lifecycle.OrderActionForStatus(status)
	if err != nil {
		return o, err
	}
	if _, err := lifecycle.ApplyOrder(o, lifecycle.OrderCommand{Action: action}); err != nil {
		return o, err
	}
	key := flightKey{entityOrder, o.ID, string(action)}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Order, error) {
		return c.api.SetOrderStatus(ctx, o.ID, status)
	}, c.applyOrder)
	if err != nil {
		return o, err
	}
	return out, nil
}

// AssignEmployee confirms a pending appointment. A Conflict means the
// employee is booked in an overlapping window; the admin picks another.
func (c *Controller) AssignEmployee(ctx context.Context, a entity.Appointment, employeeID string) (entity.Appointment, error) {
	const op = "AssignEmployee"
	if err := c.requireAdmin(op); err != nil {
		return a, err
	}
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentAssign, EmployeeID: employeeID}
	if _, err := lifecycle.ApplyAppointment(a, cmd); err != nil {
		return a, err
	}
	key := flightKey{entityAppointment, a.ID, string(lifecycle.AppointmentAssign)}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Appointment, error) {
		return c.api.AssignEmployee(ctx, a.ID, strings.TrimSpace(employeeID))
	}, c.applyAppointment)
	if err != nil {
		return a, err
	}
	return out, nil
}

func (c *Controller) SetAppointmentStatus(ctx context.Context, a entity.Appointment, status entity.AppointmentStatus) (entity.Appointment, error) {
	const op = "SetAppointmentStatus"
	if err := c.requireAdmin(op); err != nil {
		return a, err
	}
	action, err := lifecycle.AppointmentActionForStatus(status)
	if err != nil {
		return a, err
	}
	if _, err := lifecycle.ApplyAppointment(a, lifecycle.AppointmentCommand{Action: action}); err != nil {
		return a, err
	}
	key := flightKey{entityAppointment, a.ID, string(action)}
	out, err := call(c, ctx, op, key, nil, func(ctx context.Context) (entity.Appointment, error) {
		return c.api.SetAppointmentStatus(ctx, a.ID, status)
	}, c.applyAppointment)
	if err != nil {
		return a, err
	}
	return out, nil
}

// PreviewVoucher asks the service to evaluate code against subtotal. Failed
// evaluations are returned together with a ValidationFailed error.
func (c *Controller) PreviewVoucher(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Evaluation, error) {
	const op = "PreviewVoucher"
	code = entity.NormalizeCode(code)
	if code == "" {
		return discount.Evaluation{}, apperr.New(apperr.KindValidationFailed, op, "a voucher code is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	eval, err := c.api.PreviewVoucher(ctx, code, subtotal)
	if err != nil {
		return eval, classify(ctx, op, err)
	}
	return eval, eval.Err()
}
