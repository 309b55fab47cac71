package service

import (
	"context"

	"github.com/shopspring/decimal"

	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
)

// Bound is the service seen by one principal. It satisfies workflow.API and
// workflow.Queries, so a session can run in process against the service
// without the HTTP hop.
type Bound struct {
	svc       *LifecycleService
	principal entity.Principal
}

func (s *LifecycleService) As(p entity.Principal) *Bound {
	return &Bound{svc: s, principal: p}
}

func (b *Bound) CreateOrder(ctx context.Context, req CreateOrderRequest) (entity.Order, error) {
	return b.svc.CreateOrder(ctx, b.principal, req)
}

func (b *Bound) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (entity.Appointment, error) {
	return b.svc.CreateAppointment(ctx, b.principal, req)
}

func (b *Bound) ListOrders(ctx context.Context, page entity.PageRequest) (entity.Page[entity.Order], error) {
	return b.svc.ListOrders(ctx, b.principal, page)
}

func (b *Bound) ListAppointments(ctx context.Context, page entity.PageRequest) (entity.Page[entity.Appointment], error) {
	return b.svc.ListAppointments(ctx, b.principal, page)
}

func (b *Bound) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	return b.svc.GetOrder(ctx, b.principal, id)
}

func (b *Bound) GetAppointment(ctx context.Context, id string) (entity.Appointment, error) {
	return b.svc.GetAppointment(ctx, b.principal, id)
}

func (b *Bound) RequestCancelOrder(ctx context.Context, id, reason string) (entity.Order, error) {
	return b.svc.RequestCancelOrder(ctx, b.principal, id, reason)
}

func (b *Bound) ReviewCancelOrder(ctx context.Context, id string, approve bool, reason string) (entity.Order, error) {
	return b.svc.ReviewCancelOrder(ctx, b.principal, id, approve, reason)
}

func (b *Bound) SetOrderStatus(ctx context.Context, id string, status entity.OrderStatus) (entity.Order, error) {
	return b.svc.SetOrderStatus(ctx, b.principal, id, status)
}

func (b *Bound) CancelOrder(ctx context.Context, id, reason string) (entity.Order, error) {
	return b.svc.CancelOrder(ctx, b.principal, id, reason)
}

func (b *Bound) AssignEmployee(ctx context.Context, id, employeeID string) (entity.Appointment, error) {
	return b.svc.AssignEmployee(ctx, b.principal, id, employeeID)
}

func (b *Bound) SetAppointmentStatus(ctx context.Context, id string, status entity.AppointmentStatus) (entity.Appointment, error) {
	return b.svc.SetAppointmentStatus(ctx, b.principal, id, status)
}

func (b *Bound) RequestCancelAppointment(ctx context.Context, id, reason string) (entity.Appointment, error) {
	return b.svc.RequestCancelAppointment(ctx, b.principal, id, reason)
}

func (b *Bound) ReviewCancelAppointment(ctx context.Context, id string, approve bool, reason string) (entity.Appointment, error) {
	return b.svc.ReviewCancelAppointment(ctx, b.principal, id, approve, reason)
}

func (b *Bound) CancelAppointment(ctx context.Context, id, reason string) (entity.Appointment, error) {
	return b.svc.CancelAppointment(ctx, b.principal, id, reason)
}

func (b *Bound) PreviewVoucher(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Evaluation, error) {
	return b.svc.PreviewVoucher(ctx, b.principal, code, subtotal)
}
