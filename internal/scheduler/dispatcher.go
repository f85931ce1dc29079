package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleanops_backend/internal/outbox"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/logger"
)

const (
	dispatchInterval = 2 * time.Second
	dispatchBatch    = 50
	// redeliverWindow bounds how long a claimed entry stays invisible before
	// the dispatcher may hand it out again.
	redeliverWindow = 2 * time.Minute
)

// OutboxDispatcher claims due outbox entries and enqueues delivery tasks.
type OutboxDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *outbox.Repository
	log    *logger.Logger
}

// NewOutboxDispatcher creates a dispatcher from the scheduler config.
func NewOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*OutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &OutboxDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (d *OutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Run polls the outbox until the context is canceled. Enqueue failures are
// logged and left alone: the claim window expires and the entry is claimed
// again on a later tick.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		entries, err := d.repo.ClaimPending(ctx, dispatchBatch, redeliverWindow)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			continue
		}

		for _, entry := range entries {
			task, err := NewOutboxDeliverTask(OutboxDeliverPayload{
				OutboxID: entry.ID.String(),
				TenantID: entry.TenantID.String(),
			})
			if err != nil {
				d.log.Warn("outbox task encode failed", "outbox_id", entry.ID.String(), "error", err)
				continue
			}

			if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue)); err != nil {
				d.log.Warn("outbox task enqueue failed", "outbox_id", entry.ID.String(), "error", err)
			}
		}
	}
}
