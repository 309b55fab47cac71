package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/lifecycle"
)

type CreateAppointmentRequest struct {
	ServiceID       string          `json:"service_id"`
	AppointmentDate time.Time       `json:"appointment_date"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	VoucherCode     string          `json:"voucher_code,omitempty"`
}

func (r CreateAppointmentRequest) validate(op string) error {
	switch {
	case strings.TrimSpace(r.ServiceID) == "":
		return apperr.New(apperr.KindValidationFailed, op, "a service id is required")
	case r.AppointmentDate.IsZero():
		return apperr.New(apperr.KindValidationFailed, op, "an appointment date is required")
	case r.DurationMinutes <= 0:
		return apperr.New(apperr.KindValidationFailed, op, "duration must be positive")
	case r.Price.IsNegative():
		return apperr.New(apperr.KindValidationFailed, op, "price must not be negative")
	}
	return nil
}

func (s *LifecycleService) CreateAppointment(ctx context.Context, p entity.Principal, req CreateAppointmentRequest) (entity.Appointment, error) {
	const op = "CreateAppointment"
	if err := authenticated(op, p); err != nil {
		return entity.Appointment{}, err
	}
	if err := req.validate(op); err != nil {
		return entity.Appointment{}, err
	}

	now := s.clock()
	start := req.AppointmentDate.UTC()
	a := entity.Appointment{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		ServiceID:       strings.TrimSpace(req.ServiceID),
		Status:          entity.AppointmentPending,
		AppointmentDate: start,
		ExpectedEndTime: start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		PriceAtBooking:  req.Price,
		DiscountAmount:  decimal.Zero,
		FinalPrice:      req.Price,
		PaymentStatus:   entity.PaymentUnpaid,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	release, err := s.redeem(ctx, op, req.VoucherCode, req.Price, func(code string, eval discount.Evaluation) {
		a.VoucherCode = code
		a.DiscountAmount = eval.DiscountAmount
		a.FinalPrice = eval.FinalAmount
	})
	if err != nil {
		return entity.Appointment{}, err
	}

	if err := s.appointments.CreateAppointment(ctx, a); err != nil {
		logger.Error().Err(err).Str("user_id", p.UserID).Msg("Error creating appointment")
		release()
		return entity.Appointment{}, err
	}
	logger.Info().Str("appointment_id", a.ID).Str("user_id", a.UserID).Time("appointment_date", a.AppointmentDate).Msg("Appointment created")
	s.publishAppointment(ctx, a)
	return a, nil
}

func (s *LifecycleService) GetAppointment(ctx context.Context, p entity.Principal, id string) (entity.Appointment, error) {
	a, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return entity.Appointment{}, err
	}
	if err := visible("GetAppointment", p, a.UserID); err != nil {
		return entity.Appointment{}, err
	}
	return a, nil
}

func (s *LifecycleService) ListAppointments(ctx context.Context, p entity.Principal, page entity.PageRequest) (entity.Page[entity.Appointment], error) {
	if err := authenticated("ListAppointments", p); err != nil {
		return entity.Page[entity.Appointment]{}, err
	}
	return s.appointments.ListAppointments(ctx, scope(p), page)
}

// AssignEmployee confirms a pending appointment with employeeID. It fails
// with Conflict when the employee already holds an overlapping booking.
func (s *LifecycleService) AssignEmployee(ctx context.Context, p entity.Principal, id, employeeID string) (entity.Appointment, error) {
	const op = "AssignEmployee"
	employeeID = strings.TrimSpace(employeeID)
	if s.locker != nil && employeeID != "" && p.IsAdmin() {
		unlock, err := s.locker.Lock(ctx, "employee:"+employeeID, assignLockTTL)
		if err != nil {
			return entity.Appointment{}, err
		}
		defer unlock()
	}
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentAssign, EmployeeID: employeeID}
	return s.mutateAppointment(ctx, p, op, id, cmd, s.employeeAvailable)
}

func (s *LifecycleService) employeeAvailable(ctx context.Context, a entity.Appointment) error {
	booked, err := s.appointments.EmployeeBookings(ctx, a.EmployeeID, a.AppointmentDate, a.ExpectedEndTime)
	if err != nil {
		return err
	}
	for _, other := range booked {
		if other.ID == a.ID {
			continue
		}
		return apperr.New(apperr.KindConflict, "AssignEmployee", fmt.Sprintf("employee %s is booked from %s to %s",
			a.EmployeeID, other.AppointmentDate.Format(time.RFC3339), other.ExpectedEndTime.Format(time.RFC3339)))
	}
	return nil
}

func (s *LifecycleService) SetAppointmentStatus(ctx context.Context, p entity.Principal, id string, status entity.AppointmentStatus) (entity.Appointment, error) {
	action, err := lifecycle.AppointmentActionForStatus(status)
	if err != nil {
		return entity.Appointment{}, err
	}
	return s.mutateAppointment(ctx, p, "SetAppointmentStatus", id, lifecycle.AppointmentCommand{Action: action}, nil)
}

func (s *LifecycleService) RequestCancelAppointment(ctx context.Context, p entity.Principal, id, reason string) (entity.Appointment, error) {
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentRequestCancel, Reason: reason}
	return s.mutateAppointment(ctx, p, "RequestCancelAppointment", id, cmd, nil)
}

func (s *LifecycleService) ReviewCancelAppointment(ctx context.Context, p entity.Principal, id string, approve bool, reason string) (entity.Appointment, error) {
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentRejectCancel, Reason: reason}
	if approve {
		cmd = lifecycle.AppointmentCommand{Action: lifecycle.AppointmentApproveCancel}
	}
	return s.mutateAppointment(ctx, p, "ReviewCancelAppointment", id, cmd, nil)
}

func (s *LifecycleService) CancelAppointment(ctx context.Context, p entity.Principal, id, reason string) (entity.Appointment, error) {
	cmd := lifecycle.AppointmentCommand{Action: lifecycle.AppointmentCancel, Reason: reason}
	return s.mutateAppointment(ctx, p, "CancelAppointment", id, cmd, nil)
}

// mutateAppointment is mutateOrder for appointments. check, when set, runs
// against the next snapshot before it is written.
func (s *LifecycleService) mutateAppointment(ctx context.Context, p entity.Principal, op, id string, cmd lifecycle.AppointmentCommand,
	check func(ctx context.Context, next entity.Appointment) error) (entity.Appointment, error) {
	a, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		return entity.Appointment{}, err
	}
	if err := authorize(op, p, lifecycle.AppointmentActor(cmd.Action), a.UserID); err != nil {
		return entity.Appointment{}, err
	}
	next, err := lifecycle.ApplyAppointment(a, cmd)
	if err != nil {
		return entity.Appointment{}, err
	}
	if check != nil {
		if err := check(ctx, next); err != nil {
			return entity.Appointment{}, err
		}
	}
	next.Version = a.Version + 1
	next.UpdatedAt = s.clock()

	if err := s.appointments.UpdateAppointment(ctx, next, a.Version); err != nil {
		logger.Error().Err(err).Str("appointment_id", id).Str("action", string(cmd.Action)).Msg("Error updating appointment")
		return entity.Appointment{}, err
	}
	logger.Info().Str("appointment_id", id).Str("action", string(cmd.Action)).Str("status", string(next.Status)).
		Int64("version", next.Version).Msg("Appointment updated")
	s.publishAppointment(ctx, next)
	return next, nil
}
