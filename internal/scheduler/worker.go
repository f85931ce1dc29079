package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"cleanops_backend/internal/notify"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/platform/apperr"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/logger"
)

const (
	// maxDeliveryAttempts parks an entry as failed once exhausted.
	maxDeliveryAttempts = 8
	// deliveriesPerSecond throttles outbound notifications so a large sweep
	// does not hammer the SMTP relay.
	deliveriesPerSecond = 5
)

// DeliveryStore is the outbox slice the worker needs.
type DeliveryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Entry, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id uuid.UUID, lastError string) error
}

// Worker consumes delivery tasks and hands entries to the notifier.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    DeliveryStore
	notifier notify.Notifier
	limiter  *rate.Limiter
	log      *logger.Logger
}

// NewWorker creates the asynq delivery worker.
func NewWorker(cfg config.SchedulerConfig, store DeliveryStore, notifier notify.Notifier, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		store:    store,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(deliveriesPerSecond), deliveriesPerSecond),
		log:      log,
	}

	mux.HandleFunc(TaskOutboxDeliver, w.handleOutboxDeliver)

	return w, nil
}

// HandleOutboxDeliver delivers one claimed entry. Exposed through the mux
// only; the method does its own outbox bookkeeping, so asynq-level retries
// are a backstop rather than the retry mechanism.
func (w *Worker) handleOutboxDeliver(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboxDeliverPayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	entry, err := w.store.GetByID(ctx, outboxID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	if entry.Status != outbox.StatusPending {
		// Already delivered or parked; a duplicate task is harmless.
		return nil
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := w.notifier.Deliver(ctx, entry); err != nil {
		attempts := entry.Attempts + 1
		if attempts >= maxDeliveryAttempts {
			w.log.OutboxDelivery(entry.Type, attempts, false, err.Error())
			return w.store.MarkDead(ctx, entry.ID, err.Error())
		}
		w.log.OutboxDelivery(entry.Type, attempts, false, err.Error())
		return w.store.MarkFailed(ctx, entry.ID, err.Error(), time.Now().UTC().Add(retryDelay(attempts)))
	}

	if err := w.store.MarkSent(ctx, entry.ID); err != nil {
		return err
	}
	w.log.OutboxDelivery(entry.Type, entry.Attempts+1, true, "")
	return nil
}

// retryDelay doubles per attempt from one minute, capped at thirty.
func retryDelay(attempts int) time.Duration {
	delay := time.Minute << uint(attempts-1)
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	return delay
}

// Run serves delivery tasks until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("delivery worker stopped", "error", err)
	}
}
