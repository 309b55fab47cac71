package repository

import (
	"context"
	"database/sql"
	"slices"
	"strings"

	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/sharding"
)

const orderColumns = `id, user_id, status, payment_method, payment_status, total_amount, discount_amount, final_amount, voucher_code, cancellation_requested, cancellation_reason, version, created_at, updated_at`

type OrderRepository struct {
	shards
}

func NewOrderRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *OrderRepository {
	return &OrderRepository{shards{dbShards, router}}
}

func scanOrder(row rowScanner) (entity.Order, error) {
	var o entity.Order
	var voucher, reason sql.NullString
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &voucher,
		&o.CancellationRequested, &reason, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	o.VoucherCode = voucher.String
	o.CancellationReason = reason.String
	return o, err
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (entity.Order, error) {
	db := r.db(id)
	row := db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		return entity.Order{}, notFound("GetOrder", err)
	}
	o.OrderItems, err = r.items(ctx, db, id)
	if err != nil {
		return entity.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) items(ctx context.Context, db *sql.DB, orderID string) ([]entity.OrderItem, error) {
	rows, err := db.QueryContext(ctx, `SELECT product_id, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []entity.OrderItem
	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o entity.Order) error {
	return inTx(ctx, r.db(o.ID), func(tx *sql.Tx) error {
		// Insert order
		orderQuery := `INSERT INTO orders (` + orderColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, orderQuery, o.ID, o.UserID, o.Status, o.PaymentMethod, o.PaymentStatus,
			o.TotalAmount, o.DiscountAmount, o.FinalAmount, nullString(o.VoucherCode),
			o.CancellationRequested, nullString(o.CancellationReason), o.Version, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return err
		}
		if len(o.OrderItems) == 0 {
			return nil
		}

		// Insert order items with batch
		placeholders := make([]string, 0, len(o.OrderItems))
		values := make([]any, 0, 5*len(o.OrderItems))
		for i, item := range o.OrderItems {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?)")
			values = append(values, o.ID, i, item.ProductID, item.Quantity, item.UnitPrice)
		}
		itemQuery := `INSERT INTO order_items (order_id, position, product_id, quantity, unit_price) VALUES ` + strings.Join(placeholders, ", ")
		_, err = tx.ExecContext(ctx, itemQuery, values...)
		return err
	})
}

// UpdateOrder writes the mutable fields of o if the stored version still is
// expectedVersion. Line items are immutable and never rewritten.
func (r *OrderRepository) UpdateOrder(ctx context.Context, o entity.Order, expectedVersion int64) error {
	query := `UPDATE orders SET status = ?, payment_status = ?, cancellation_requested = ?, cancellation_reason = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`
	res, err := r.db(o.ID).ExecContext(ctx, query, o.Status, o.PaymentStatus, o.CancellationRequested,
		nullString(o.CancellationReason), o.Version, o.UpdatedAt, o.ID, expectedVersion)
	if err != nil {
		return err
	}
	return versionConflict("UpdateOrder", res)
}

// ListOrders returns one page, newest first, across all shards. An empty
// userID lists every order.
func (r *OrderRepository) ListOrders(ctx context.Context, userID string, page entity.PageRequest) (entity.Page[entity.Order], error) {
	page = page.Normalize()
	where, args := "", []any{}
	if userID != "" {
		where, args = " WHERE user_id = ?", append(args, userID)
	}

	total, perShard, err := gather(ctx, r.dbShards, func(ctx context.Context, db *sql.DB) (int, []entity.Order, error) {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&n); err != nil {
			return 0, nil, err
		}
		query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC LIMIT ?`
		rows, err := db.QueryContext(ctx, query, append(slices.Clone(args), page.Offset()+page.Size)...)
		if err != nil {
			return 0, nil, err
		}
		defer rows.Close()

		var orders []entity.Order
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				return 0, nil, err
			}
			orders = append(orders, o)
		}
		return n, orders, rows.Err()
	})
	if err != nil {
		return entity.Page[entity.Order]{}, err
	}

	items := mergePage(perShard, newerOrder, page.Offset(), page.Size)
	for i := range items {
		items[i].OrderItems, err = r.items(ctx, r.db(items[i].ID), items[i].ID)
		if err != nil {
			return entity.Page[entity.Order]{}, err
		}
	}
	return entity.Page[entity.Order]{Number: page.Number, Size: page.Size, Total: total, Items: items}, nil
}

func newerOrder(a, b entity.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
