package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/sharding"
)

var orderCols = []string{"id", "user_id", "status", "payment_method", "payment_status", "total_amount", "discount_amount", "final_amount", "voucher_code", "cancellation_requested", "cancellation_reason", "version", "created_at", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestOrderRepository_GetOrder(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow("42", "u1", "SHIPPING", "COD", "UNPAID", "500000", "40000", "460000", "SALE10", true, "too slow", 3, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = ?")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "unit_price"}).
			AddRow("p1", 2, "250000"))

	o, err := repo.GetOrder(context.Background(), "42")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if o.Status != entity.OrderShipping || !o.CancellationRequested || o.CancellationReason != "too slow" {
		t.Errorf("Unexpected order %+v", o)
	}
	if !o.FinalAmount.Equal(decimal.NewFromInt(460000)) || o.VoucherCode != "SALE10" || o.Version != 3 {
		t.Errorf("Unexpected amounts %+v", o)
	}
	if len(o.OrderItems) != 1 || o.OrderItems[0].Quantity != 2 {
		t.Errorf("Unexpected items %+v", o.OrderItems)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestOrderRepository_GetOrderNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = ?")).WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetOrder(context.Background(), "404"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestOrderRepository_CreateOrderBatchesItems(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items (order_id, position, product_id, quantity, unit_price) VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	o := entity.Order{ID: "42", UserID: "u1", Status: entity.OrderPending, OrderItems: []entity.OrderItem{
		{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: "p2", Quantity: 3, UnitPrice: decimal.NewFromInt(20)},
	}}
	if err := repo.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestOrderRepository_CreateOrderRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	o := entity.Order{ID: "42", OrderItems: []entity.OrderItem{{ProductID: "p1", Quantity: 1}}}
	if err := repo.CreateOrder(context.Background(), o); err == nil {
		t.Fatalf("Expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestOrderRepository_UpdateOrderVersionConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateOrder(context.Background(), entity.Order{ID: "42", Version: 4}, 3)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected Conflict, got %v", err)
	}
}

func TestOrderRepository_ListOrders(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrderRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders WHERE user_id = ?")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")).
		WithArgs("u1", 4).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow("3", "u1", "PENDING", "COD", "UNPAID", "10", "0", "10", nil, false, nil, 1, t0.Add(2*time.Hour), t0).
			AddRow("2", "u1", "PENDING", "COD", "UNPAID", "10", "0", "10", nil, false, nil, 1, t0.Add(time.Hour), t0).
			AddRow("1", "u1", "PENDING", "COD", "UNPAID", "10", "0", "10", nil, false, nil, 1, t0, t0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items")).WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "unit_price"}).AddRow("p1", 1, "10"))

	page, err := repo.ListOrders(context.Background(), "u1", entity.PageRequest{Number: 2, Size: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].ID != "1" {
		t.Errorf("Unexpected page %+v", page)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMergePage(t *testing.T) {
	desc := func(a, b int) bool { return a > b }
	got := mergePage([][]int{{9, 5, 1}, {8, 7}, {6}}, desc, 2, 3)
	want := []int{7, 6, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
	if len(mergePage([][]int{{1}}, desc, 5, 3)) != 0 {
		t.Errorf("Expected an empty window past the end")
	}
}

func TestVoucherRepository_Consume(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVoucherRepository([]*sql.DB{db}, sharding.NewShardRouter(1))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vouchers SET quantity = quantity - 1 WHERE code = ? AND quantity > 0")).
		WithArgs("SALE10").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE vouchers SET quantity = quantity - 1")).
		WithArgs("SALE10").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.ConsumeVoucher(context.Background(), " sale10"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := repo.ConsumeVoucher(context.Background(), "SALE10"); !errors.Is(err, apperr.ErrValidationFailed) {
		t.Errorf("Expected ValidationFailed when exhausted, got %v", err)
	}
}

func TestAppointmentRepository_EmployeeBookings(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository([]*sql.DB{db}, sharding.NewShardRouter(1))
	from := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	cols := []string{"id", "user_id", "service_id", "status", "appointment_date", "expected_end_time", "employee_id", "price_at_booking", "discount_amount", "final_price", "voucher_code", "payment_status", "status_before_cancel", "cancellation_reason", "version", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE employee_id = ?")).
		WithArgs("e1", "CONFIRMED", "IN_PROCESS", "CANCEL_REQUESTED", to, from).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a7", "u2", "s1", "CONFIRMED", from.Add(-30*time.Minute), from.Add(30*time.Minute), "e1", "100", "0", "100", nil, "UNPAID", nil, nil, 2, from, from))

	got, err := repo.EmployeeBookings(context.Background(), "e1", from, to)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a7" || got[0].EmployeeID != "e1" || got[0].StatusBeforeCancel != "" {
		t.Errorf("Unexpected bookings %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestMemoryStore_VersionCheck(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := entity.Order{ID: "1", UserID: "u1", Version: 1}
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	o.Version = 2
	if err := m.UpdateOrder(ctx, o, 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := m.UpdateOrder(ctx, o, 1); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected Conflict on stale version, got %v", err)
	}
	if _, err := m.GetOrder(ctx, "2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}
