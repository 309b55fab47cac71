package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPreparing OrderStatus = "PREPARING"
	OrderShipping  OrderStatus = "SHIPPING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further lifecycle transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPreparing, OrderShipping, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "COD"
	PaymentBanking PaymentMethod = "BANKING"
)

type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "PAID"
	PaymentUnpaid PaymentStatus = "UNPAID"
)

type Order struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	Status                OrderStatus     `json:"status"`
	PaymentMethod         PaymentMethod   `json:"payment_method"`
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	FinalAmount           decimal.Decimal `json:"final_amount"`
	VoucherCode           string          `json:"voucher_code,omitempty"`
	CancellationRequested bool            `json:"cancellation_requested"`
	CancellationReason    string          `json:"cancellation_reason,omitempty"`
	OrderItems            []OrderItem     `json:"order_items"`
	Version               int64           `json:"version"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// OrderItem is a line item; its unit price is fixed at the time of order.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (o Order) GetID() string     { return o.ID }
func (o Order) GetVersion() int64 { return o.Version }

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	if o.OrderItems != nil {
		items := make([]OrderItem, len(o.OrderItems))
		copy(items, o.OrderItems)
		o.OrderItems = items
	}
	return o
}

// ItemsTotal sums the line items.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
