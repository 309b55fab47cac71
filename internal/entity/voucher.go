package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

type Voucher struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	// MaxDiscountAmount caps PERCENTAGE discounts; ignored for FIXED_AMOUNT.
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	MinOrderValue     decimal.Decimal     `json:"min_order_value"`
	StartDate         time.Time           `json:"start_date"`
	EndDate           time.Time           `json:"end_date"`
	Quantity          int                 `json:"quantity"`
	IsActive          bool                `json:"is_active"`
}

// NormalizeCode upper-cases and trims a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
