package repository

import (
	"context"
	"database/sql"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
	"lifecycle-service/internal/sharding"
)

const voucherColumns = `id, code, discount_type, discount_value, max_discount_amount, min_order_value, start_date, end_date, quantity, is_active`

// VoucherRepository stores vouchers on the shard of their normalised code.
type VoucherRepository struct {
	shards
}

func NewVoucherRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *VoucherRepository {
	return &VoucherRepository{shards{dbShards, router}}
}

func (r *VoucherRepository) GetVoucherByCode(ctx context.Context, code string) (entity.Voucher, error) {
	code = entity.NormalizeCode(code)
	var v entity.Voucher
	err := r.db(code).QueryRowContext(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = ?`, code).Scan(
		&v.ID, &v.Code, &v.DiscountType, &v.DiscountValue, &v.MaxDiscountAmount, &v.MinOrderValue,
		&v.StartDate, &v.EndDate, &v.Quantity, &v.IsActive)
	if err != nil {
		return entity.Voucher{}, notFound("GetVoucherByCode", err)
	}
	return v, nil
}

func (r *VoucherRepository) CreateVoucher(ctx context.Context, v entity.Voucher) error {
	v.Code = entity.NormalizeCode(v.Code)
	query := `INSERT INTO vouchers (` + voucherColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db(v.Code).ExecContext(ctx, query, v.ID, v.Code, v.DiscountType, v.DiscountValue, v.MaxDiscountAmount,
		v.MinOrderValue, v.StartDate, v.EndDate, v.Quantity, v.IsActive)
	return err
}

// ConsumeVoucher takes one use of the voucher. It fails with
// ValidationFailed when none is left.
func (r *VoucherRepository) ConsumeVoucher(ctx context.Context, code string) error {
	code = entity.NormalizeCode(code)
	res, err := r.db(code).ExecContext(ctx, `UPDATE vouchers SET quantity = quantity - 1 WHERE code = ? AND quantity > 0`, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindValidationFailed, "ConsumeVoucher", "Exhausted")
	}
	return nil
}

// ReleaseVoucher gives back a use taken by ConsumeVoucher.
func (r *VoucherRepository) ReleaseVoucher(ctx context.Context, code string) error {
	code = entity.NormalizeCode(code)
	_, err := r.db(code).ExecContext(ctx, `UPDATE vouchers SET quantity = quantity + 1 WHERE code = ?`, code)
	return err
}
