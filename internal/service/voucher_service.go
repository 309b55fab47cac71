package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/discount"
	"lifecycle-service/internal/entity"
)

func (s *LifecycleService) voucher(ctx context.Context, op, code string) (entity.Voucher, error) {
	v, err := s.vouchers.GetVoucherByCode(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return entity.Voucher{}, apperr.New(apperr.KindValidationFailed, op, "unknown voucher code "+code)
	}
	return v, err
}

// PreviewVoucher evaluates code against subtotal without consuming it. An
// evaluation that fails a voucher rule is returned as is, with a nil error.
func (s *LifecycleService) PreviewVoucher(ctx context.Context, p entity.Principal, code string, subtotal decimal.Decimal) (discount.Evaluation, error) {
	const op = "PreviewVoucher"
	if err := authenticated(op, p); err != nil {
		return discount.Evaluation{}, err
	}
	code = entity.NormalizeCode(code)
	if code == "" || subtotal.IsNegative() {
		return discount.Evaluation{}, apperr.New(apperr.KindValidationFailed, op, "a voucher code and a non-negative subtotal are required")
	}
	v, err := s.voucher(ctx, op, code)
	if err != nil {
		return discount.Evaluation{}, err
	}
	return discount.Evaluate(v, subtotal, s.clock()), nil
}

// redeem evaluates and consumes the voucher for a new order or appointment.
// On success set receives the evaluation; the returned func gives the use
// back if the entity is not committed after all.
func (s *LifecycleService) redeem(ctx context.Context, op, code string, subtotal decimal.Decimal, set func(code string, eval discount.Evaluation)) (func(), error) {
	code = entity.NormalizeCode(code)
	if code == "" {
		return func() {}, nil
	}
	v, err := s.voucher(ctx, op, code)
	if err != nil {
		return nil, err
	}
	eval := discount.Evaluate(v, subtotal, s.clock())
	if err := eval.Err(); err != nil {
		return nil, err
	}
	if err := s.vouchers.ConsumeVoucher(ctx, code); err != nil {
		return nil, err
	}
	set(code, eval)
	return func() {
		if err := s.vouchers.ReleaseVoucher(context.WithoutCancel(ctx), code); err != nil {
			logger.Error().Err(err).Str("voucher_code", code).Msg("Error releasing voucher")
		}
	}, nil
}
