package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLockExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	first := NewRedisLock(rdb, "lock:retire-sweep", time.Minute)
	second := NewRedisLock(rdb, "lock:retire-sweep", time.Minute)

	if err := first.Lock(ctx); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := second.Lock(ctx); !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
	// Unlock without holding must not release the other holder's lock.
	if err := second.Unlock(ctx); err != nil {
		t.Fatalf("noop unlock: %v", err)
	}
	if !mr.Exists("lock:retire-sweep") {
		t.Fatal("lock released by non-holder")
	}
	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := second.Lock(ctx); err != nil {
		t.Fatalf("lock after release: %v", err)
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	lock := NewRedisLock(rdb, "lock:ttl", time.Second)
	if err := lock.Lock(ctx); err != nil {
		t.Fatalf("lock: %v", err)
	}
	mr.FastForward(2 * time.Second)
	other := NewRedisLock(rdb, "lock:ttl", time.Second)
	if err := other.Lock(ctx); err != nil {
		t.Fatalf("expired lock should be acquirable: %v", err)
	}
}
