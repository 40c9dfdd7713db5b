package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (Locker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, 2*time.Second), client
}

func TestWithSlotLockRunsCriticalSection(t *testing.T) {
	locker, _ := newTestLocker(t)

	ran := false
	err := locker.WithSlotLock(context.Background(), "dr-sharma:2026-01-05T09:00", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("critical section did not run")
	}
}

func TestWithSlotLockRejectsConcurrentHolder(t *testing.T) {
	locker, client := newTestLocker(t)

	if err := client.Set(context.Background(), "lock:slot:contested", "other-token", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	err := locker.WithSlotLock(context.Background(), "contested", func(ctx context.Context) error {
		t.Fatal("critical section must not run while lock is held")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestWithSlotLockReleasesAfterRun(t *testing.T) {
	locker, client := newTestLocker(t)

	_ = locker.WithSlotLock(context.Background(), "released", func(ctx context.Context) error {
		return nil
	})

	exists, err := client.Exists(context.Background(), "lock:slot:released").Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 0 {
		t.Fatal("lock key should be released after the critical section")
	}
}

func TestNoopLockerAlwaysRuns(t *testing.T) {
	err := NoopLocker{}.WithSlotLock(context.Background(), "anything", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
