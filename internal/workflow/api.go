// Package workflow issues lifecycle mutations on behalf of one session.
//
// Every call is checked locally before any network I/O: the caller's role
// and ownership, the transition table, the cancellation pending gate and a
// single-flight guard per entity and action. Returned snapshots are fed back
// into the session's reconciliation engine.
package workflow

import (
	"context"

	"github.com/shopspring/decimal"

	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
)

// API is the request/response surface of the lifecycle service.
type API interface {
	RequestCancelOrder(ctx context.Context, id, reason string) (entity.Order, error)
	ReviewCancelOrder(ctx context.Context, id string, approve bool, reason string) (entity.Order, error)
	SetOrderStatus(ctx context.Context, id string, status entity.OrderStatus) (entity.Order, error)
	CancelOrder(ctx context.Context, id, reason string) (entity.Order, error)

	AssignEmployee(ctx context.Context, id, employeeID string) (entity.Appointment, error)
	SetAppointmentStatus(ctx context.Context, id string, status entity.AppointmentStatus) (entity.Appointment, error)
	RequestCancelAppointment(ctx context.Context, id, reason string) (entity.Appointment, error)
	ReviewCancelAppointment(ctx context.Context, id string, approve bool, reason string) (entity.Appointment, error)
	CancelAppointment(ctx context.Context, id, reason string) (entity.Appointment, error)

	PreviewVoucher(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Evaluation, error)
}

// Queries are the read operations a session uses to materialise pages.
type Queries interface {
	ListOrders(ctx context.Context, page entity.PageRequest) (entity.Page[entity.Order], error)
	ListAppointments(ctx context.Context, page entity.PageRequest) (entity.Page[entity.Appointment], error)
	GetOrder(ctx context.Context, id string) (entity.Order, error)
	GetAppointment(ctx context.Context, id string) (entity.Appointment, error)
}

// Sink receives snapshots returned by successful mutations.
type Sink interface {
	ApplyOrder(o entity.Order) bool
	ApplyAppointment(a entity.Appointment) bool
}
