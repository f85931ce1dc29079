// Package outbox provides the durable queue of pending external side effects.
// Business operations enqueue effects synchronously; a separate delivery
// worker drains them at-least-once. The idempotency key makes concurrent
// duplicate enqueues collapse into a single deliverable entry.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of an outbox entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Entry types produced by the core services.
const (
	TypeNotifyCleaner     = "notify_cleaner"
	TypeNotifyHost        = "notify_host"
	TypeNotifyMarketplace = "notify_marketplace"
	TypePaymentRequest    = "payment_request"
)

// Entry is a durable, pending external effect.
type Entry struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Type           string
	Payload        json.RawMessage
	IdempotencyKey string
	Status         Status
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
	NextAttemptAt  time.Time
}

// EnqueueParams contains parameters for enqueuing an entry.
type EnqueueParams struct {
	TenantID       uuid.UUID
	Type           string
	Payload        any
	IdempotencyKey string
}

// Enqueuer is the write side consumed by business services. Enqueue is
// synchronous with, and a precondition of, the caller's success: if the
// write fails the calling operation must be reported as failed.
type Enqueuer interface {
	Enqueue(ctx context.Context, params EnqueueParams) (Entry, error)
}

// Queue is the full outbox contract, including the delivery-worker side.
// ClaimPending pushes next_attempt_at forward on the rows it returns, so a
// claimed entry is not handed out again until the redeliver window expires.
type Queue interface {
	Enqueuer
	ClaimPending(ctx context.Context, limit int, redeliverAfter time.Duration) ([]Entry, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error
}
