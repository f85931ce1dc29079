// Package service implements the dispatch operations that drive the task
// state machine: assigning cleaners, recording confirmations and check-ins,
// and completing tasks. Expected failures (missing task, rejected transition,
// no cleaner on file) are returned as typed errors, never panics.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/events"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/platform/apperr"
	"cleanops_backend/platform/logger"
)

// Failure codes returned to dispatch callers.
const (
	ErrTaskNotFound     = "task_not_found"
	ErrNoPrimaryCleaner = "no_primary_cleaner"
)

// PaymentRequester triggers payment collection for a completed task.
type PaymentRequester interface {
	Request(ctx context.Context, tenantID, taskID uuid.UUID) error
}

// Service coordinates dispatching and task progression.
type Service struct {
	repo     repository.Repository
	cleaners cleaners.Lookup
	outbox   outbox.Enqueuer
	recorder *ledger.Recorder
	payments PaymentRequester
	bus      events.Bus
	log      *logger.Logger
}

// New creates a new dispatch service.
func New(
	repo repository.Repository,
	lookup cleaners.Lookup,
	queue outbox.Enqueuer,
	recorder *ledger.Recorder,
	payments PaymentRequester,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		cleaners: lookup,
		outbox:   queue,
		recorder: recorder,
		payments: payments,
		bus:      bus,
		log:      log,
	}
}

// notifyCleanerPayload is the outbox payload for cleaner notifications.
type notifyCleanerPayload struct {
	TaskID           uuid.UUID `json:"taskId"`
	PropertyID       uuid.UUID `json:"propertyId"`
	CleanerID        uuid.UUID `json:"cleanerId"`
	CleanerName      string    `json:"cleanerName,omitempty"`
	ScheduledStartAt string    `json:"scheduledStartAt"`
}

// DispatchTask assigns the primary cleaner of the task's property to a
// scheduled task, enqueues the cleaner notification, and records the
// assignment. Fails with task_not_found, invalid_status:<status>, or
// no_primary_cleaner.
func (s *Service) DispatchTask(ctx context.Context, tenantID, taskID uuid.UUID) (repository.Task, error) {
	task, err := s.repo.GetByID(ctx, tenantID, taskID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return repository.Task{}, apperr.NotFound(ErrTaskNotFound)
		}
		return repository.Task{}, err
	}
	if task.Status != domain.StatusScheduled {
		return repository.Task{}, invalidStatus(task.Status)
	}

	primary, err := s.cleaners.FindByPropertyAndPriority(ctx, tenantID, task.PropertyID, cleaners.PriorityPrimary)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return repository.Task{}, apperr.NotFound(ErrNoPrimaryCleaner)
		}
		return repository.Task{}, err
	}

	return s.assign(ctx, tenantID, taskID, primary, "primary")
}

// DispatchToBackup assigns a specific cleaner to a scheduled task. The caller
// is expected to have unassigned the previous cleaner first; this is the
// reassignment primitive used by the no-show sweep and the escalation ladder.
func (s *Service) DispatchToBackup(ctx context.Context, tenantID, taskID, cleanerID uuid.UUID) (repository.Task, error) {
	task, err := s.repo.GetByID(ctx, tenantID, taskID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return repository.Task{}, apperr.NotFound(ErrTaskNotFound)
		}
		return repository.Task{}, err
	}
	if task.Status != domain.StatusScheduled {
		return repository.Task{}, invalidStatus(task.Status)
	}

	backup := cleaners.Cleaner{ID: cleanerID, TenantID: tenantID}
	return s.assign(ctx, tenantID, taskID, backup, "backup")
}

func (s *Service) assign(ctx context.Context, tenantID, taskID uuid.UUID, cleaner cleaners.Cleaner, source string) (repository.Task, error) {
	task, err := s.repo.AssignCleaner(ctx, tenantID, taskID, cleaner.ID)
	if err != nil {
		// A concurrent caller may have won the race between our status
		// check and the conditional update.
		if apperr.Is(err, apperr.KindConflict) {
			return repository.Task{}, conflictAsInvalidStatus(ctx, s.repo, tenantID, taskID, err)
		}
		return repository.Task{}, err
	}

	// Each dispatch attempt notifies; the key is unique per attempt so a
	// re-dispatch after unassignment produces a fresh notification.
	_, err = s.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID: tenantID,
		Type:     outbox.TypeNotifyCleaner,
		Payload: notifyCleanerPayload{
			TaskID:           task.ID,
			PropertyID:       task.PropertyID,
			CleanerID:        cleaner.ID,
			CleanerName:      cleaner.Name,
			ScheduledStartAt: task.ScheduledStartAt.UTC().Format(time.RFC3339),
		},
		IdempotencyKey: fmt.Sprintf("notify_cleaner:%s:%s", task.ID, uuid.NewString()),
	})
	if err != nil {
		// The assignment is already durable. The operation still fails:
		// callers must not report success without the notification on disk.
		return repository.Task{}, apperr.Wrap(apperr.KindUnavailable, "cleaner notification could not be enqueued", err)
	}

	s.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   tenantID,
		Type:       "task.assigned",
		Payload:    map[string]string{"cleanerId": cleaner.ID.String(), "source": source},
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	s.bus.Publish(ctx, events.TaskAssigned{
		BaseEvent:  events.NewBaseEvent(),
		TaskID:     task.ID,
		TenantID:   tenantID,
		PropertyID: task.PropertyID,
		CleanerID:  cleaner.ID,
		Source:     source,
	})

	return task, nil
}

// AcceptTask records the assigned cleaner's confirmation.
func (s *Service) AcceptTask(ctx context.Context, tenantID, taskID uuid.UUID) (repository.Task, error) {
	task, err := s.repo.Confirm(ctx, tenantID, taskID)
	if err != nil {
		return repository.Task{}, err
	}

	s.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   tenantID,
		Type:       "task.confirmed",
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	cleanerID := uuid.Nil
	if task.AssignedCleanerID != nil {
		cleanerID = *task.AssignedCleanerID
	}
	s.bus.Publish(ctx, events.TaskConfirmed{
		BaseEvent: events.NewBaseEvent(),
		TaskID:    task.ID,
		TenantID:  tenantID,
		CleanerID: cleanerID,
	})

	return task, nil
}

// CheckInTask moves an assigned task to in_progress.
func (s *Service) CheckInTask(ctx context.Context, tenantID, taskID uuid.UUID) (repository.Task, error) {
	task, err := s.repo.Transition(ctx, tenantID, taskID, domain.StatusAssigned, domain.StatusInProgress)
	if err != nil {
		return repository.Task{}, err
	}

	s.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   tenantID,
		Type:       "task.checked_in",
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	s.bus.Publish(ctx, events.TaskStarted{
		BaseEvent: events.NewBaseEvent(),
		TaskID:    task.ID,
		TenantID:  tenantID,
	})

	return task, nil
}

// CompleteTask finishes an in-progress task and triggers payment collection.
func (s *Service) CompleteTask(ctx context.Context, tenantID, taskID uuid.UUID) (repository.Task, error) {
	task, err := s.repo.Transition(ctx, tenantID, taskID, domain.StatusInProgress, domain.StatusCompleted)
	if err != nil {
		return repository.Task{}, err
	}

	if s.payments != nil {
		if err := s.payments.Request(ctx, tenantID, task.ID); err != nil {
			// The completion is durable but the operation failed: the
			// payment request is a required external effect.
			return repository.Task{}, apperr.Wrap(apperr.KindUnavailable, "payment request could not be enqueued", err)
		}
	}

	s.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   tenantID,
		Type:       "task.completed",
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	s.bus.Publish(ctx, events.TaskCompleted{
		BaseEvent:   events.NewBaseEvent(),
		TaskID:      task.ID,
		TenantID:    tenantID,
		PropertyID:  task.PropertyID,
		CompletedAt: derefTime(task.CompletedAt),
	})

	return task, nil
}

func invalidStatus(status domain.Status) error {
	return apperr.Conflict(fmt.Sprintf("invalid_status:%s", status))
}

// conflictAsInvalidStatus reloads the task to report the status a racing
// caller left behind.
func conflictAsInvalidStatus(ctx context.Context, repo repository.TaskReader, tenantID, taskID uuid.UUID, fallback error) error {
	task, err := repo.GetByID(ctx, tenantID, taskID)
	if err != nil {
		return fallback
	}
	return invalidStatus(task.Status)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
