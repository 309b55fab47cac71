// Package idempotency keeps Redis-backed request keys and short-lived locks.
package idempotency

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lifecycle-service/internal/apperr"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "idempotency").Logger()

const DefaultTTL = 24 * time.Hour

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: DefaultTTL}
}

func redisKey(key string) string {
	return fmt.Sprintf("idempotent-key:%s", key)
}

// Claim records key. A key already seen within the TTL fails with
// DuplicateRequest.
func (s *Store) Claim(ctx context.Context, key string) error {
	ok, err := s.rdb.SetNX(ctx, redisKey(key), "exists", s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.KindDuplicateRequest, "Claim", "idempotent key already exists")
	}
	return nil
}

// Release forgets key so the request may be sent again, used when the
// request failed before anything was committed.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, redisKey(key)).Err()
}

// Lock takes an exclusive lock on key for at most ttl. A lock held by
// someone else fails with Conflict.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := "lock:" + key
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, "Lock", key+" is busy, retry")
	}
	return func() {
		if err := unlockScript.Run(context.WithoutCancel(ctx), s.rdb, []string{lockKey}, token).Err(); err != nil {
			logger.Error().Err(err).Str("key", lockKey).Msg("Error releasing lock")
		}
	}, nil
}
