package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"lifecycle-service/internal/apperr"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb), mr
}

func TestClaim(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	if err := s.Claim(ctx, "k1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Claim(ctx, "k1"); !errors.Is(err, apperr.ErrDuplicateRequest) {
		t.Errorf("Expected DuplicateRequest, got %v", err)
	}
	if ttl := mr.TTL("idempotent-key:k1"); ttl != DefaultTTL {
		t.Errorf("Expected TTL %v, got %v", DefaultTTL, ttl)
	}

	mr.FastForward(DefaultTTL + time.Second)
	if err := s.Claim(ctx, "k1"); err != nil {
		t.Errorf("Expected the key to be claimable after expiry, got %v", err)
	}

	if err := s.Release(ctx, "k1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Claim(ctx, "k1"); err != nil {
		t.Errorf("Expected the key to be claimable after release, got %v", err)
	}
}

func TestLock(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	unlock, err := s.Lock(ctx, "employee:e1", 10*time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := s.Lock(ctx, "employee:e1", 10*time.Second); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Expected Conflict while held, got %v", err)
	}
	if _, err := s.Lock(ctx, "employee:e2", 10*time.Second); err != nil {
		t.Errorf("Expected an unrelated lock to succeed, got %v", err)
	}

	unlock()
	if mr.Exists("lock:employee:e1") {
		t.Errorf("Expected the lock to be released")
	}
	again, err := s.Lock(ctx, "employee:e1", 10*time.Second)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// A stale unlock must not release a lock taken by someone else.
	unlock()
	if !mr.Exists("lock:employee:e1") {
		t.Errorf("Expected the second holder to keep the lock")
	}
	again()
}
