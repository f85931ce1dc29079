package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/testsupport"
	"cleanops_backend/platform/logger"
)

type stubNotifier struct {
	err       error
	delivered []outbox.Entry
}

func (n *stubNotifier) Deliver(_ context.Context, entry outbox.Entry) error {
	if n.err != nil {
		return n.err
	}
	n.delivered = append(n.delivered, entry)
	return nil
}

func newTestWorker(store DeliveryStore, notifier *stubNotifier) *Worker {
	return &Worker{
		store:    store,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		log:      logger.New("test"),
	}
}

func enqueueEntry(t *testing.T, store *testsupport.Outbox) outbox.Entry {
	t.Helper()
	entry, err := store.Enqueue(context.Background(), outbox.EnqueueParams{
		TenantID:       uuid.New(),
		Type:           outbox.TypeNotifyCleaner,
		Payload:        map[string]string{"message": "hello"},
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	return entry
}

func deliverTask(t *testing.T, w *Worker, entry outbox.Entry) error {
	t.Helper()
	task, err := NewOutboxDeliverTask(OutboxDeliverPayload{
		OutboxID: entry.ID.String(),
		TenantID: entry.TenantID.String(),
	})
	if err != nil {
		t.Fatalf("NewOutboxDeliverTask() error = %v", err)
	}
	return w.handleOutboxDeliver(context.Background(), task)
}

func TestWorkerMarksEntrySent(t *testing.T) {
	store := testsupport.NewOutbox()
	notifier := &stubNotifier{}
	w := newTestWorker(store, notifier)
	entry := enqueueEntry(t, store)

	if err := deliverTask(t, w, entry); err != nil {
		t.Fatalf("handleOutboxDeliver() error = %v", err)
	}

	got, _ := store.GetByID(context.Background(), entry.ID)
	if got.Status != outbox.StatusSent {
		t.Errorf("status = %s, want sent", got.Status)
	}
	if len(notifier.delivered) != 1 {
		t.Errorf("deliveries = %d, want 1", len(notifier.delivered))
	}
}

func TestWorkerReschedulesFailedDelivery(t *testing.T) {
	store := testsupport.NewOutbox()
	notifier := &stubNotifier{err: errors.New("smtp down")}
	w := newTestWorker(store, notifier)
	entry := enqueueEntry(t, store)

	if err := deliverTask(t, w, entry); err != nil {
		t.Fatalf("handleOutboxDeliver() error = %v", err)
	}

	got, _ := store.GetByID(context.Background(), entry.ID)
	if got.Status != outbox.StatusPending {
		t.Errorf("status = %s, want pending (retryable)", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if !got.NextAttemptAt.After(time.Now()) {
		t.Error("next attempt must be in the future")
	}
	if got.LastError == nil || *got.LastError != "smtp down" {
		t.Errorf("last error = %v, want smtp down", got.LastError)
	}
}

func TestWorkerParksExhaustedEntry(t *testing.T) {
	store := testsupport.NewOutbox()
	notifier := &stubNotifier{err: errors.New("smtp down")}
	w := newTestWorker(store, notifier)
	entry := enqueueEntry(t, store)

	for i := 0; i < maxDeliveryAttempts; i++ {
		if err := deliverTask(t, w, entry); err != nil {
			t.Fatalf("handleOutboxDeliver() attempt %d error = %v", i+1, err)
		}
	}

	got, _ := store.GetByID(context.Background(), entry.ID)
	if got.Status != outbox.StatusFailed {
		t.Errorf("status = %s, want failed after exhausting attempts", got.Status)
	}
}

func TestWorkerSkipsAlreadySentEntry(t *testing.T) {
	store := testsupport.NewOutbox()
	notifier := &stubNotifier{}
	w := newTestWorker(store, notifier)
	entry := enqueueEntry(t, store)

	if err := deliverTask(t, w, entry); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if err := deliverTask(t, w, entry); err != nil {
		t.Fatalf("duplicate delivery error = %v", err)
	}
	if len(notifier.delivered) != 1 {
		t.Errorf("deliveries = %d, want 1 (duplicate task ignored)", len(notifier.delivered))
	}
}

func TestWorkerIgnoresMissingEntry(t *testing.T) {
	store := testsupport.NewOutbox()
	w := newTestWorker(store, &stubNotifier{})

	err := deliverTask(t, w, outbox.Entry{ID: uuid.New(), TenantID: uuid.New()})
	if err != nil {
		t.Fatalf("handleOutboxDeliver() error = %v, want nil for missing entry", err)
	}
}

func TestRetryDelayCaps(t *testing.T) {
	if got := retryDelay(1); got != time.Minute {
		t.Errorf("retryDelay(1) = %v, want 1m", got)
	}
	if got := retryDelay(3); got != 4*time.Minute {
		t.Errorf("retryDelay(3) = %v, want 4m", got)
	}
	if got := retryDelay(10); got != 30*time.Minute {
		t.Errorf("retryDelay(10) = %v, want 30m cap", got)
	}
}
