// Package redislock provides a best-effort distributed lock used to keep
// overlapping sweeper instances from duplicating work. The sweeps themselves
// are idempotent, so the lock is an optimization, not a correctness
// requirement: when redis is unavailable the lock fails open.
package redislock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires short-lived named locks.
type Locker struct {
	client *redis.Client
}

// New creates a Locker backed by the given redis client.
func New(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// NewFromURL creates a Locker from a redis URL. Returns nil on a bad URL so
// callers can treat the locker as absent.
func NewFromURL(redisURL string) *Locker {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil
	}
	return &Locker{client: redis.NewClient(opt)}
}

// Acquire attempts to take the named lock for ttl. It returns a release
// function and true on success. On contention it returns false. On redis
// errors it fails open: the lock is reported as acquired with a no-op
// release, so a redis outage never stalls the sweeps.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool) {
	if l == nil || l.client == nil {
		return func() {}, true
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(name), token, ttl).Result()
	if err != nil {
		return func() {}, true
	}
	if !ok {
		return nil, false
	}

	release := func() {
		// Only delete the lock if we still own it.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.client.Eval(releaseCtx, script, []string{lockKey(name)}, token).Err()
	}
	return release, true
}

// Close releases the underlying redis client.
func (l *Locker) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func lockKey(name string) string {
	return "cleanops:lock:" + name
}
