// Package cache puts a Redis read-through cache in front of voucher lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"lifecycle-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "cache").Logger()

const DefaultVoucherTTL = 5 * time.Minute

// VoucherStore is the backing store; it matches service.VoucherStore.
type VoucherStore interface {
	GetVoucherByCode(ctx context.Context, code string) (entity.Voucher, error)
	ConsumeVoucher(ctx context.Context, code string) error
	ReleaseVoucher(ctx context.Context, code string) error
}

type VoucherCache struct {
	store VoucherStore
	rdb   *redis.Client
	ttl   time.Duration
}

func NewVoucherCache(store VoucherStore, rdb *redis.Client, ttl time.Duration) *VoucherCache {
	return &VoucherCache{store: store, rdb: rdb, ttl: ttl}
}

func voucherKey(code string) string {
	return "voucher:" + entity.NormalizeCode(code)
}

// GetVoucherByCode serves from Redis when it can. A Redis failure falls back
// to the store; misses from the store are not cached.
func (c *VoucherCache) GetVoucherByCode(ctx context.Context, code string) (entity.Voucher, error) {
	key := voucherKey(code)
	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v entity.Voucher
		if err := json.Unmarshal(cached, &v); err == nil {
			return v, nil
		}
		logger.Error().Err(err).Str("key", key).Msg("Error unmarshalling cached voucher")
	case !errors.Is(err, redis.Nil):
		logger.Error().Err(err).Str("key", key).Msg("Error getting voucher from cache")
	}

	v, err := c.store.GetVoucherByCode(ctx, code)
	if err != nil {
		return v, err
	}
	payload, err := json.Marshal(v)
	if err == nil {
		err = c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Error setting voucher in cache")
	}
	return v, nil
}

// ConsumeVoucher and ReleaseVoucher change the remaining quantity, so the
// cached copy is dropped after the store accepts the change.
func (c *VoucherCache) ConsumeVoucher(ctx context.Context, code string) error {
	if err := c.store.ConsumeVoucher(ctx, code); err != nil {
		return err
	}
	c.evict(ctx, code)
	return nil
}

func (c *VoucherCache) ReleaseVoucher(ctx context.Context, code string) error {
	if err := c.store.ReleaseVoucher(ctx, code); err != nil {
		return err
	}
	c.evict(ctx, code)
	return nil
}

func (c *VoucherCache) evict(ctx context.Context, code string) {
	if err := c.rdb.Del(ctx, voucherKey(code)).Err(); err != nil {
		logger.Error().Err(err).Str("code", code).Msg("Error deleting voucher from cache")
	}
}
