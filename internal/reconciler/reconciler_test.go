package reconciler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/reconciler"
	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/internal/testsupport"
	"cleanops_backend/platform/apperr"
	"cleanops_backend/platform/logger"
)

type reconcilerFixture struct {
	store    *testsupport.TaskStore
	outbox   *testsupport.Outbox
	journal  *testsupport.Ledger
	bus      *testsupport.CaptureBus
	rec      *reconciler.Reconciler
	tenantID uuid.UUID
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	store := testsupport.NewTaskStore()
	queue := testsupport.NewOutbox()
	journal := testsupport.NewLedger()
	bus := testsupport.NewCaptureBus()
	log := logger.New("test")
	recorder := ledger.NewRecorder(journal, log)

	return &reconcilerFixture{
		store:    store,
		outbox:   queue,
		journal:  journal,
		bus:      bus,
		rec:      reconciler.New(store, queue, recorder, bus, 90*time.Minute, log),
		tenantID: uuid.New(),
	}
}

func (f *reconcilerFixture) confirmedEvent(bookingID string, propertyID uuid.UUID, checkout time.Time) reconciler.BookingEvent {
	return reconciler.BookingEvent{
		TenantID:   f.tenantID,
		BookingID:  bookingID,
		PropertyID: propertyID,
		Status:     reconciler.BookingConfirmed,
		CheckoutAt: checkout,
	}
}

func TestConfirmedBookingCreatesTask(t *testing.T) {
	f := newReconcilerFixture(t)
	checkout := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	event := f.confirmedEvent("bk-1001", uuid.New(), checkout)

	res, err := f.rec.HandleBookingEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}
	if res.Action != reconciler.ActionCreated || res.TaskID == nil {
		t.Fatalf("result = %+v, want created with task id", res)
	}

	task, ok := f.store.Get(*res.TaskID)
	if !ok {
		t.Fatal("created task not stored")
	}
	if task.Status != domain.StatusScheduled {
		t.Errorf("status = %s, want scheduled", task.Status)
	}
	if !task.ScheduledStartAt.Equal(checkout) {
		t.Errorf("start = %v, want checkout %v", task.ScheduledStartAt, checkout)
	}
	if got := task.ScheduledEndAt.Sub(task.ScheduledStartAt); got != 90*time.Minute {
		t.Errorf("window = %v, want default 90m", got)
	}
}

func TestReplayedBookingEventIsNoOp(t *testing.T) {
	f := newReconcilerFixture(t)
	event := f.confirmedEvent("bk-1002", uuid.New(), time.Now().Add(24*time.Hour))
	ctx := context.Background()

	first, err := f.rec.HandleBookingEvent(ctx, event)
	if err != nil {
		t.Fatalf("first HandleBookingEvent() error = %v", err)
	}
	second, err := f.rec.HandleBookingEvent(ctx, event)
	if err != nil {
		t.Fatalf("second HandleBookingEvent() error = %v", err)
	}
	if second.Action != reconciler.ActionNoOp {
		t.Errorf("replay action = %s, want no_op", second.Action)
	}
	if second.TaskID == nil || *second.TaskID != *first.TaskID {
		t.Errorf("replay task = %v, want original %v", second.TaskID, first.TaskID)
	}
}

func TestModifiedBookingReschedulesTask(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	propertyID := uuid.New()
	original := f.confirmedEvent("bk-1003", propertyID, time.Now().Add(24*time.Hour).UTC())

	created, err := f.rec.HandleBookingEvent(ctx, original)
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}

	moved := original
	moved.Status = reconciler.BookingModified
	moved.CheckoutAt = original.CheckoutAt.Add(24 * time.Hour)

	res, err := f.rec.HandleBookingEvent(ctx, moved)
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}
	if res.Action != reconciler.ActionRescheduled {
		t.Fatalf("action = %s, want rescheduled", res.Action)
	}

	task, _ := f.store.Get(*created.TaskID)
	if !task.ScheduledStartAt.Equal(moved.CheckoutAt.UTC()) {
		t.Errorf("start = %v, want %v", task.ScheduledStartAt, moved.CheckoutAt.UTC())
	}
}

func TestRescheduleNotifiesAssignedCleaner(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	propertyID := uuid.New()
	event := f.confirmedEvent("bk-1004", propertyID, time.Now().Add(24*time.Hour).UTC())

	created, err := f.rec.HandleBookingEvent(ctx, event)
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}
	if _, err := f.store.AssignCleaner(ctx, f.tenantID, *created.TaskID, uuid.New()); err != nil {
		t.Fatalf("AssignCleaner() error = %v", err)
	}

	moved := event
	moved.Status = reconciler.BookingModified
	moved.CheckoutAt = event.CheckoutAt.Add(2 * time.Hour)
	if _, err := f.rec.HandleBookingEvent(ctx, moved); err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}

	if got := f.outbox.EntriesOfType(outbox.TypeNotifyCleaner); len(got) != 1 {
		t.Errorf("notify_cleaner entries = %d, want 1", len(got))
	}
}

func TestCanceledBookingCancelsTask(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	event := f.confirmedEvent("bk-1005", uuid.New(), time.Now().Add(24*time.Hour))

	created, err := f.rec.HandleBookingEvent(ctx, event)
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}

	cancel := reconciler.BookingEvent{
		TenantID:   f.tenantID,
		BookingID:  event.BookingID,
		PropertyID: event.PropertyID,
		Status:     reconciler.BookingCanceled,
	}
	res, err := f.rec.HandleBookingEvent(ctx, cancel)
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}
	if res.Action != reconciler.ActionCanceled {
		t.Fatalf("action = %s, want canceled", res.Action)
	}

	task, _ := f.store.Get(*created.TaskID)
	if task.Status != domain.StatusCanceled {
		t.Errorf("status = %s, want canceled", task.Status)
	}

	var payload map[string]string
	for _, rec := range f.journal.Records() {
		if rec.Type == "task.canceled" {
			if err := json.Unmarshal(rec.Payload, &payload); err != nil {
				t.Fatalf("decode ledger payload: %v", err)
			}
		}
	}
	if payload["reason"] != "booking_canceled" {
		t.Errorf("ledger reason = %q, want booking_canceled", payload["reason"])
	}

	// Canceling again must be a clean no-op, not an error.
	res, err = f.rec.HandleBookingEvent(ctx, cancel)
	if err != nil {
		t.Fatalf("repeat cancel error = %v", err)
	}
	if res.Action != reconciler.ActionNoOp {
		t.Errorf("repeat cancel action = %s, want no_op", res.Action)
	}
}

func TestCancelLeavesStartedCleaningAlone(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	bookingID := "bk-1006"
	task := repository.Task{
		ID:               uuid.New(),
		TenantID:         f.tenantID,
		PropertyID:       uuid.New(),
		BookingID:        &bookingID,
		ScheduledStartAt: time.Now().Add(-time.Hour),
		ScheduledEndAt:   time.Now().Add(30 * time.Minute),
		Status:           domain.StatusInProgress,
	}
	f.store.Seed(task)

	res, err := f.rec.HandleBookingEvent(ctx, reconciler.BookingEvent{
		TenantID:   f.tenantID,
		BookingID:  bookingID,
		PropertyID: task.PropertyID,
		Status:     reconciler.BookingCanceled,
	})
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}
	if res.Action != reconciler.ActionNoOp {
		t.Errorf("action = %s, want no_op", res.Action)
	}

	stored, _ := f.store.Get(task.ID)
	if stored.Status != domain.StatusInProgress {
		t.Errorf("status = %s, want in_progress (untouched)", stored.Status)
	}
}

func TestCancelForUnknownBookingIsNoOp(t *testing.T) {
	f := newReconcilerFixture(t)

	res, err := f.rec.HandleBookingEvent(context.Background(), reconciler.BookingEvent{
		TenantID:   f.tenantID,
		BookingID:  "bk-none",
		PropertyID: uuid.New(),
		Status:     reconciler.BookingCanceled,
	})
	if err != nil {
		t.Fatalf("HandleBookingEvent() error = %v", err)
	}
	if res.Action != reconciler.ActionNoOp {
		t.Errorf("action = %s, want no_op", res.Action)
	}
}

func TestBookingEventValidation(t *testing.T) {
	f := newReconcilerFixture(t)
	valid := f.confirmedEvent("bk-1007", uuid.New(), time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		mutate func(*reconciler.BookingEvent)
	}{
		{"missing tenant", func(e *reconciler.BookingEvent) { e.TenantID = uuid.Nil }},
		{"missing booking id", func(e *reconciler.BookingEvent) { e.BookingID = " " }},
		{"missing property", func(e *reconciler.BookingEvent) { e.PropertyID = uuid.Nil }},
		{"unknown status", func(e *reconciler.BookingEvent) { e.Status = "waitlisted" }},
		{"missing checkout", func(e *reconciler.BookingEvent) { e.CheckoutAt = time.Time{} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := valid
			tc.mutate(&event)
			_, err := f.rec.HandleBookingEvent(context.Background(), event)
			if !apperr.Is(err, apperr.KindBadRequest) {
				t.Errorf("error = %v, want bad request", err)
			}
		})
	}
}
