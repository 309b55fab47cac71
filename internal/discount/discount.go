// Package discount evaluates a voucher against a subtotal. Evaluation is
// pure: the clock is passed in and the voucher is never modified.
package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
)

type Reason string

const (
	ReasonExpired      Reason = "Expired"
	ReasonInactive     Reason = "Inactive"
	ReasonExhausted    Reason = "Exhausted"
	ReasonBelowMinimum Reason = "BelowMinimum"
)

var hundred = decimal.NewFromInt(100)

type Evaluation struct {
	Valid          bool            `json:"valid"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Reason         Reason          `json:"reason,omitempty"`
}

// Err returns a ValidationFailed error for an invalid evaluation and nil
// otherwise.
func (e Evaluation) Err() error {
	if e.Valid {
		return nil
	}
	return apperr.New(apperr.KindValidationFailed, "evaluate voucher", string(e.Reason))
}

func rejected(reason Reason, subtotal decimal.Decimal) Evaluation {
	return Evaluation{Reason: reason, DiscountAmount: decimal.Zero, FinalAmount: subtotal}
}

// Evaluate applies v to subtotal at instant now. The validity window is
// inclusive on both ends.
func Evaluate(v entity.Voucher, subtotal decimal.Decimal, now time.Time) Evaluation {
	switch {
	case now.Before(v.StartDate) || now.After(v.EndDate):
		return rejected(ReasonExpired, subtotal)
	case !v.IsActive:
		return rejected(ReasonInactive, subtotal)
	case v.Quantity <= 0:
		return rejected(ReasonExhausted, subtotal)
	case subtotal.LessThan(v.MinOrderValue):
		return rejected(ReasonBelowMinimum, subtotal)
	}

	var amount decimal.Decimal
	switch v.DiscountType {
	case entity.DiscountPercentage:
		amount = subtotal.Mul(v.DiscountValue).Div(hundred)
		if v.MaxDiscountAmount.Valid && amount.GreaterThan(v.MaxDiscountAmount.Decimal) {
			amount = v.MaxDiscountAmount.Decimal
		}
	default:
		amount = v.DiscountValue
	}
	amount = clamp(amount, decimal.Zero, subtotal)

	return Evaluation{
		Valid:          true,
		DiscountAmount: amount,
		FinalAmount:    FinalAmount(subtotal, amount),
	}
}

// FinalAmount is max(0, total - discount).
func FinalAmount(total, discount decimal.Decimal) decimal.Decimal {
	final := total.Sub(discount)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if hi.GreaterThanOrEqual(lo) && d.GreaterThan(hi) {
		return hi
	}
	return d
}
