package repository

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/sharding"
)

const appointmentColumns = `id, user_id, service_id, status, appointment_date, expected_end_time, employee_id, price_at_booking, discount_amount, final_price, voucher_code, payment_status, status_before_cancel, cancellation_reason, version, created_at, updated_at`

type AppointmentRepository struct {
	shards
}

func NewAppointmentRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *AppointmentRepository {
	return &AppointmentRepository{shards{dbShards, router}}
}

func scanAppointment(row rowScanner) (entity.Appointment, error) {
	var a entity.Appointment
	var employee, voucher, before, reason sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.ServiceID, &a.Status, &a.AppointmentDate, &a.ExpectedEndTime,
		&employee, &a.PriceAtBooking, &a.DiscountAmount, &a.FinalPrice, &voucher, &a.PaymentStatus,
		&before, &reason, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	a.EmployeeID = employee.String
	a.VoucherCode = voucher.String
	a.StatusBeforeCancel = entity.AppointmentStatus(before.String)
	a.CancellationReason = reason.String
	return a, err
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (entity.Appointment, error) {
	row := r.db(id).QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return entity.Appointment{}, notFound("GetAppointment", err)
	}
	return a, nil
}

func (r *AppointmentRepository) CreateAppointment(ctx context.Context, a entity.Appointment) error {
	query := `INSERT INTO appointments (` + appointmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db(a.ID).ExecContext(ctx, query, a.ID, a.UserID, a.ServiceID, a.Status, a.AppointmentDate, a.ExpectedEndTime,
		nullString(a.EmployeeID), a.PriceAtBooking, a.DiscountAmount, a.FinalPrice, nullString(a.VoucherCode), a.PaymentStatus,
		nullString(string(a.StatusBeforeCancel)), nullString(a.CancellationReason), a.Version, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, a entity.Appointment, expectedVersion int64) error {
	query := `UPDATE appointments SET status = ?, employee_id = ?, payment_status = ?, status_before_cancel = ?, cancellation_reason = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`
	res, err := r.db(a.ID).ExecContext(ctx, query, a.Status, nullString(a.EmployeeID), a.PaymentStatus,
		nullString(string(a.StatusBeforeCancel)), nullString(a.CancellationReason), a.Version, a.UpdatedAt, a.ID, expectedVersion)
	if err != nil {
		return err
	}
	return versionConflict("UpdateAppointment", res)
}

// ListAppointments returns one page ordered by appointment date, latest
// first, across all shards. An empty userID lists every appointment.
func (r *AppointmentRepository) ListAppointments(ctx context.Context, userID string, page entity.PageRequest) (entity.Page[entity.Appointment], error) {
	page = page.Normalize()
	where, args := "", []any{}
	if userID != "" {
		where, args = " WHERE user_id = ?", append(args, userID)
	}

	total, perShard, err := gather(ctx, r.dbShards, func(ctx context.Context, db *sql.DB) (int, []entity.Appointment, error) {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&n); err != nil {
			return 0, nil, err
		}
		query := `SELECT ` + appointmentColumns + ` FROM appointments` + where + ` ORDER BY appointment_date DESC, id DESC LIMIT ?`
		found, err := r.query(ctx, db, query, append(slices.Clone(args), page.Offset()+page.Size)...)
		return n, found, err
	})
	if err != nil {
		return entity.Page[entity.Appointment]{}, err
	}

	items := mergePage(perShard, laterAppointment, page.Offset(), page.Size)
	return entity.Page[entity.Appointment]{Number: page.Number, Size: page.Size, Total: total, Items: items}, nil
}

// EmployeeBookings returns the active appointments of employeeID whose
// window intersects [from, to).
func (r *AppointmentRepository) EmployeeBookings(ctx context.Context, employeeID string, from, to time.Time) ([]entity.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE employee_id = ? AND status IN (?, ?, ?) AND appointment_date < ? AND expected_end_time > ?`
	_, perShard, err := gather(ctx, r.dbShards, func(ctx context.Context, db *sql.DB) (int, []entity.Appointment, error) {
		found, err := r.query(ctx, db, query, employeeID,
			entity.AppointmentConfirmed, entity.AppointmentInProcess, entity.AppointmentCancelRequested, to, from)
		return len(found), found, err
	})
	if err != nil {
		return nil, err
	}
	return slices.Concat(perShard...), nil
}

func (r *AppointmentRepository) query(ctx context.Context, db *sql.DB, query string, args ...any) ([]entity.Appointment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func laterAppointment(a, b entity.Appointment) bool {
	if !a.AppointmentDate.Equal(b.AppointmentDate) {
		return a.AppointmentDate.After(b.AppointmentDate)
	}
	return a.ID > b.ID
}
