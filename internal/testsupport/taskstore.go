// Package testsupport provides in-memory doubles for the storage interfaces.
// The doubles mirror the conditional-update semantics of the PostgreSQL
// implementations so service tests exercise the same conflict paths.
package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/platform/apperr"
)

// TaskStore is an in-memory task repository.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]repository.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]repository.Task)}
}

var _ repository.Repository = (*TaskStore)(nil)

// Seed inserts a task as-is, bypassing creation rules.
func (s *TaskStore) Seed(task repository.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = domain.StatusScheduled
	}
	if task.PaymentStatus == "" {
		task.PaymentStatus = domain.PaymentNone
	}
	s.tasks[task.ID] = task
}

// Get returns a stored task by ID for assertions.
func (s *TaskStore) Get(id uuid.UUID) (repository.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	return task, ok
}

func (s *TaskStore) Create(_ context.Context, params repository.CreateParams) (repository.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.BookingID != nil {
		for _, existing := range s.tasks {
			if existing.TenantID == params.TenantID &&
				existing.BookingID != nil && *existing.BookingID == *params.BookingID &&
				existing.Status != domain.StatusCanceled {
				return repository.Task{}, apperr.Conflict("an active task already exists for this booking")
			}
		}
	}

	now := time.Now().UTC()
	task := repository.Task{
		ID:                 uuid.New(),
		TenantID:           params.TenantID,
		PropertyID:         params.PropertyID,
		BookingID:          params.BookingID,
		ScheduledStartAt:   params.ScheduledStartAt.UTC(),
		ScheduledEndAt:     params.ScheduledEndAt.UTC(),
		Status:             domain.StatusScheduled,
		PaymentStatus:      domain.PaymentNone,
		PaymentAmountCents: params.PaymentAmountCents,
		VendorTag:          params.VendorTag,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.tasks[task.ID] = task
	return task, nil
}

func (s *TaskStore) GetByID(_ context.Context, tenantID, id uuid.UUID) (repository.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.TenantID != tenantID {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	return task, nil
}

func (s *TaskStore) GetActiveByBookingID(_ context.Context, tenantID uuid.UUID, bookingID string) (repository.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.TenantID == tenantID &&
			task.BookingID != nil && *task.BookingID == bookingID &&
			task.Status != domain.StatusCanceled {
			return task, nil
		}
	}
	return repository.Task{}, apperr.NotFound("task not found")
}

func (s *TaskStore) FindOpenByProperty(_ context.Context, tenantID, propertyID uuid.UUID) (repository.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *repository.Task
	for _, task := range s.tasks {
		task := task
		if task.TenantID != tenantID || task.PropertyID != propertyID {
			continue
		}
		if task.Status != domain.StatusScheduled && task.Status != domain.StatusAssigned {
			continue
		}
		if found == nil || task.ScheduledStartAt.Before(found.ScheduledStartAt) {
			found = &task
		}
	}
	if found == nil {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	return *found, nil
}

func (s *TaskStore) AssignCleaner(_ context.Context, tenantID, id, cleanerID uuid.UUID) (repository.Task, error) {
	return s.update(tenantID, id, domain.StatusAssigned, func(task *repository.Task) bool {
		if task.Status != domain.StatusScheduled {
			return false
		}
		task.Status = domain.StatusAssigned
		task.AssignedCleanerID = &cleanerID
		return true
	})
}

func (s *TaskStore) Confirm(_ context.Context, tenantID, id uuid.UUID) (repository.Task, error) {
	return s.update(tenantID, id, domain.StatusAssigned, func(task *repository.Task) bool {
		if task.Status != domain.StatusAssigned {
			return false
		}
		now := time.Now().UTC()
		task.ConfirmedAt = &now
		return true
	})
}

func (s *TaskStore) Transition(_ context.Context, tenantID, id uuid.UUID, from, to domain.Status) (repository.Task, error) {
	if !domain.CanTransition(from, to) {
		return repository.Task{}, invalidTransition(from, to)
	}
	return s.update(tenantID, id, to, func(task *repository.Task) bool {
		if task.Status != from {
			return false
		}
		task.Status = to
		if to == domain.StatusCompleted {
			now := time.Now().UTC()
			task.CompletedAt = &now
		}
		return true
	})
}

func (s *TaskStore) Unassign(_ context.Context, tenantID, id uuid.UUID) (repository.Task, error) {
	return s.update(tenantID, id, domain.StatusScheduled, func(task *repository.Task) bool {
		if task.Status != domain.StatusAssigned {
			return false
		}
		task.Status = domain.StatusScheduled
		task.AssignedCleanerID = nil
		task.ConfirmedAt = nil
		return true
	})
}

func (s *TaskStore) Reschedule(_ context.Context, tenantID, id uuid.UUID, newStart, newEnd time.Time) (repository.Task, error) {
	return s.update(tenantID, id, domain.StatusScheduled, func(task *repository.Task) bool {
		if task.Status != domain.StatusScheduled && task.Status != domain.StatusAssigned {
			return false
		}
		task.ScheduledStartAt = newStart.UTC()
		task.ScheduledEndAt = newEnd.UTC()
		return true
	})
}

func (s *TaskStore) UpdatePaymentStatus(_ context.Context, tenantID, id uuid.UUID, from, to domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || task.TenantID != tenantID || task.PaymentStatus != from {
		return apperr.Conflict(fmt.Sprintf("payment status is not %s", from))
	}
	task.PaymentStatus = to
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = task
	return nil
}

func (s *TaskStore) ListNoShowCandidates(_ context.Context, cutoff time.Time, limit int) ([]repository.Task, error) {
	return s.listUnconfirmedBefore(cutoff, limit), nil
}

func (s *TaskStore) ListOverdueUnconfirmed(_ context.Context, now time.Time, limit int) ([]repository.Task, error) {
	return s.listUnconfirmedBefore(now, limit), nil
}

func (s *TaskStore) listUnconfirmedBefore(cutoff time.Time, limit int) []repository.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []repository.Task
	for _, task := range s.tasks {
		if task.Status == domain.StatusAssigned && task.ConfirmedAt == nil && !task.ScheduledStartAt.After(cutoff) {
			results = append(results, task)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ScheduledStartAt.Before(results[j].ScheduledStartAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// update applies fn under the lock with conditional-update semantics: fn
// returns false when the expected-status guard fails, which maps to the same
// conflict error the SQL implementation produces.
func (s *TaskStore) update(tenantID, id uuid.UUID, to domain.Status, fn func(*repository.Task) bool) (repository.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok || task.TenantID != tenantID {
		return repository.Task{}, apperr.NotFound("task not found")
	}
	if !fn(&task) {
		return repository.Task{}, invalidTransition(task.Status, to)
	}
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = task
	return task, nil
}

func invalidTransition(from, to domain.Status) error {
	return apperr.Conflict(fmt.Sprintf("invalid transition %s->%s", from, to)).
		WithDetails(map[string]string{"from": string(from), "to": string(to)})
}
