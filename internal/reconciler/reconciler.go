// Package reconciler translates booking events from the reservation system
// into cleaning task actions. It is the only writer that creates or cancels
// booking-linked tasks, and it is safe against replays: feeding the same
// booking event twice yields the same end state.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/events"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/platform/apperr"
	"cleanops_backend/platform/logger"
)

// Booking statuses accepted from the reservation system.
const (
	BookingConfirmed = "confirmed"
	BookingModified  = "modified"
	BookingCanceled  = "canceled"
)

// Actions taken in response to a booking event.
const (
	ActionCreated     = "created"
	ActionCanceled    = "canceled"
	ActionRescheduled = "rescheduled"
	ActionNoOp        = "no_op"
)

// BookingEvent is a change notification for a single booking.
type BookingEvent struct {
	TenantID                uuid.UUID `json:"tenantId" validate:"required"`
	BookingID               string    `json:"bookingId" validate:"required"`
	PropertyID              uuid.UUID `json:"propertyId" validate:"required"`
	Status                  string    `json:"status" validate:"required,oneof=confirmed modified canceled"`
	CheckoutAt              time.Time `json:"checkoutAt"`
	CleaningDurationMinutes int       `json:"cleaningDurationMinutes"`
}

// Result reports what the reconciler did for a booking event.
type Result struct {
	Action string
	TaskID *uuid.UUID
}

// Reconciler applies booking events to the task store.
type Reconciler struct {
	repo            repository.Repository
	outbox          outbox.Enqueuer
	recorder        *ledger.Recorder
	bus             events.Bus
	defaultDuration time.Duration
	log             *logger.Logger
}

// New creates a booking reconciler. defaultDuration is used when the event
// carries no cleaning duration.
func New(
	repo repository.Repository,
	queue outbox.Enqueuer,
	recorder *ledger.Recorder,
	bus events.Bus,
	defaultDuration time.Duration,
	log *logger.Logger,
) *Reconciler {
	if defaultDuration <= 0 {
		defaultDuration = 90 * time.Minute
	}
	return &Reconciler{
		repo:            repo,
		outbox:          queue,
		recorder:        recorder,
		bus:             bus,
		defaultDuration: defaultDuration,
		log:             log,
	}
}

// HandleBookingEvent reconciles one booking event against the task store.
//
// An active booking with no task gets a fresh task placed at checkout. An
// active booking whose task sits at a different time gets the task
// rescheduled. A canceled booking gets its task canceled, unless the cleaning
// has already started. Everything else is a no-op.
func (r *Reconciler) HandleBookingEvent(ctx context.Context, event BookingEvent) (Result, error) {
	if err := r.validate(event); err != nil {
		return Result{}, err
	}

	task, err := r.repo.GetActiveByBookingID(ctx, event.TenantID, event.BookingID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return Result{}, err
	}
	hasTask := err == nil

	var result Result
	switch event.Status {
	case BookingConfirmed, BookingModified:
		if !hasTask {
			result, err = r.createTask(ctx, event)
		} else {
			result, err = r.rescheduleTask(ctx, event, task)
		}
	case BookingCanceled:
		if !hasTask {
			result = Result{Action: ActionNoOp}
		} else {
			result, err = r.cancelTask(ctx, event, task)
		}
	}
	if err != nil {
		return Result{}, err
	}

	r.bus.Publish(ctx, events.BookingReconciled{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  event.TenantID,
		BookingID: event.BookingID,
		Action:    result.Action,
		TaskID:    result.TaskID,
	})

	return result, nil
}

func (r *Reconciler) validate(event BookingEvent) error {
	if event.TenantID == uuid.Nil {
		return apperr.BadRequest("tenantId is required")
	}
	if strings.TrimSpace(event.BookingID) == "" {
		return apperr.BadRequest("bookingId is required")
	}
	if event.PropertyID == uuid.Nil {
		return apperr.BadRequest("propertyId is required")
	}
	switch event.Status {
	case BookingConfirmed, BookingModified, BookingCanceled:
	default:
		return apperr.BadRequest(fmt.Sprintf("unknown booking status %q", event.Status))
	}
	if event.Status != BookingCanceled && event.CheckoutAt.IsZero() {
		return apperr.BadRequest("checkoutAt is required for active bookings")
	}
	return nil
}

func (r *Reconciler) cleaningWindow(event BookingEvent) (time.Time, time.Time) {
	duration := r.defaultDuration
	if event.CleaningDurationMinutes > 0 {
		duration = time.Duration(event.CleaningDurationMinutes) * time.Minute
	}
	start := event.CheckoutAt.UTC()
	return start, start.Add(duration)
}

func (r *Reconciler) createTask(ctx context.Context, event BookingEvent) (Result, error) {
	start, end := r.cleaningWindow(event)
	bookingID := event.BookingID
	task, err := r.repo.Create(ctx, repository.CreateParams{
		TenantID:         event.TenantID,
		PropertyID:       event.PropertyID,
		BookingID:        &bookingID,
		ScheduledStartAt: start,
		ScheduledEndAt:   end,
	})
	if err != nil {
		// A replayed event can race its own first delivery. The unique
		// booking constraint collapses the race; report the surviving task.
		if apperr.Is(err, apperr.KindConflict) {
			existing, lookupErr := r.repo.GetActiveByBookingID(ctx, event.TenantID, event.BookingID)
			if lookupErr != nil {
				return Result{}, err
			}
			return Result{Action: ActionNoOp, TaskID: &existing.ID}, nil
		}
		return Result{}, err
	}

	r.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   event.TenantID,
		Type:       "task.created",
		Payload:    map[string]string{"bookingId": event.BookingID},
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	return Result{Action: ActionCreated, TaskID: &task.ID}, nil
}

func (r *Reconciler) rescheduleTask(ctx context.Context, event BookingEvent, task repository.Task) (Result, error) {
	start, end := r.cleaningWindow(event)
	if task.ScheduledStartAt.Equal(start) && task.ScheduledEndAt.Equal(end) {
		return Result{Action: ActionNoOp, TaskID: &task.ID}, nil
	}
	if task.Status != domain.StatusScheduled && task.Status != domain.StatusAssigned {
		// The cleaning already started; moving it is an operator decision.
		return Result{Action: ActionNoOp, TaskID: &task.ID}, nil
	}

	updated, err := r.repo.Reschedule(ctx, event.TenantID, task.ID, start, end)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return Result{Action: ActionNoOp, TaskID: &task.ID}, nil
		}
		return Result{}, err
	}

	if updated.AssignedCleanerID != nil {
		if _, err := r.outbox.Enqueue(ctx, outbox.EnqueueParams{
			TenantID: event.TenantID,
			Type:     outbox.TypeNotifyCleaner,
			Payload: map[string]string{
				"taskId":           updated.ID.String(),
				"cleanerId":        updated.AssignedCleanerID.String(),
				"scheduledStartAt": start.Format(time.RFC3339),
				"message":          "your scheduled cleaning was moved",
			},
			IdempotencyKey: fmt.Sprintf("reschedule:%s:%d", updated.ID, start.Unix()),
		}); err != nil {
			return Result{}, fmt.Errorf("enqueue reschedule notification: %w", err)
		}
	}

	r.recorder.Record(ctx, ledger.AppendParams{
		TenantID: event.TenantID,
		Type:     "task.rescheduled",
		Payload: map[string]string{
			"bookingId":        event.BookingID,
			"scheduledStartAt": start.Format(time.RFC3339),
		},
		EntityType: "task",
		EntityID:   updated.ID.String(),
	})

	return Result{Action: ActionRescheduled, TaskID: &updated.ID}, nil
}

func (r *Reconciler) cancelTask(ctx context.Context, event BookingEvent, task repository.Task) (Result, error) {
	if task.Status != domain.StatusScheduled && task.Status != domain.StatusAssigned {
		return Result{Action: ActionNoOp, TaskID: &task.ID}, nil
	}

	canceled, err := r.repo.Transition(ctx, event.TenantID, task.ID, task.Status, domain.StatusCanceled)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
			return Result{Action: ActionNoOp, TaskID: &task.ID}, nil
		}
		return Result{}, err
	}

	if task.AssignedCleanerID != nil {
		if _, err := r.outbox.Enqueue(ctx, outbox.EnqueueParams{
			TenantID: event.TenantID,
			Type:     outbox.TypeNotifyCleaner,
			Payload: map[string]string{
				"taskId":    canceled.ID.String(),
				"cleanerId": task.AssignedCleanerID.String(),
				"message":   "your scheduled cleaning was canceled",
			},
			IdempotencyKey: fmt.Sprintf("booking_cancel:%s", canceled.ID),
		}); err != nil {
			return Result{}, fmt.Errorf("enqueue cancellation notification: %w", err)
		}
	}

	r.recorder.Record(ctx, ledger.AppendParams{
		TenantID: event.TenantID,
		Type:     "task.canceled",
		Payload: map[string]string{
			"bookingId": event.BookingID,
			"reason":    "booking_canceled",
		},
		EntityType: "task",
		EntityID:   canceled.ID.String(),
	})

	return Result{Action: ActionCanceled, TaskID: &canceled.ID}, nil
}
