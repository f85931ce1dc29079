package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestAcquireAndRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, ok := locker.Acquire(ctx, "noshow", time.Minute)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	if _, ok := locker.Acquire(ctx, "noshow", time.Minute); ok {
		t.Fatal("expected second acquire to be blocked while lock is held")
	}

	release()

	release2, ok := locker.Acquire(ctx, "noshow", time.Minute)
	if !ok {
		t.Fatal("expected acquire to succeed after release")
	}
	release2()
}

func TestIndependentLockNames(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release1, ok := locker.Acquire(ctx, "noshow", time.Minute)
	if !ok {
		t.Fatal("expected noshow acquire to succeed")
	}
	defer release1()

	release2, ok := locker.Acquire(ctx, "ladder", time.Minute)
	if !ok {
		t.Fatal("expected ladder acquire to succeed while noshow lock is held")
	}
	defer release2()
}

func TestLockExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	if _, ok := locker.Acquire(ctx, "noshow", 10*time.Second); !ok {
		t.Fatal("expected acquire to succeed")
	}

	mr.FastForward(11 * time.Second)

	release, ok := locker.Acquire(ctx, "noshow", time.Minute)
	if !ok {
		t.Fatal("expected acquire to succeed after ttl expiry")
	}
	release()
}

func TestNilLockerFailsOpen(t *testing.T) {
	var locker *Locker

	release, ok := locker.Acquire(context.Background(), "noshow", time.Minute)
	if !ok {
		t.Fatal("expected nil locker to fail open")
	}
	release()
}
