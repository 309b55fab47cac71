package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	AppointmentPending         AppointmentStatus = "PENDING"
	AppointmentConfirmed       AppointmentStatus = "CONFIRMED"
	AppointmentInProcess       AppointmentStatus = "IN_PROCESS"
	AppointmentCompleted       AppointmentStatus = "COMPLETED"
	AppointmentCancelRequested AppointmentStatus = "CANCEL_REQUESTED"
	AppointmentCancelled       AppointmentStatus = "CANCELLED"
)

func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentCompleted || s == AppointmentCancelled
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentInProcess,
		AppointmentCompleted, AppointmentCancelRequested, AppointmentCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	ServiceID       string            `json:"service_id"`
	Status          AppointmentStatus `json:"status"`
	AppointmentDate time.Time         `json:"appointment_date"`
	ExpectedEndTime time.Time         `json:"expected_end_time"`
	EmployeeID      string            `json:"employee_id,omitempty"`
	PriceAtBooking  decimal.Decimal   `json:"price_at_booking"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	FinalPrice      decimal.Decimal   `json:"final_price"`
	VoucherCode     string            `json:"voucher_code,omitempty"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	// StatusBeforeCancel is the status restored when a cancellation request
	// is rejected. Empty unless Status is CANCEL_REQUESTED.
	StatusBeforeCancel AppointmentStatus `json:"status_before_cancel,omitempty"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	Version            int64             `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

func (a Appointment) GetID() string     { return a.ID }
func (a Appointment) GetVersion() int64 { return a.Version }

// Overlaps reports whether the booking windows of a and b intersect.
func (a Appointment) Overlaps(b Appointment) bool {
	return a.AppointmentDate.Before(b.ExpectedEndTime) && b.AppointmentDate.Before(a.ExpectedEndTime)
}
