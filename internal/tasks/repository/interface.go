package repository

import (
	"context"
	"time"

	"cleanops_backend/internal/tasks/domain"

	"github.com/google/uuid"
)

// Task is a single scheduled cleaning job tied to a property and optionally
// a booking.
type Task struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	PropertyID         uuid.UUID
	BookingID          *string
	ScheduledStartAt   time.Time
	ScheduledEndAt     time.Time
	Status             domain.Status
	AssignedCleanerID  *uuid.UUID
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	PaymentStatus      domain.PaymentStatus
	PaymentAmountCents int64
	VendorTag          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateParams contains parameters for creating a task.
type CreateParams struct {
	TenantID           uuid.UUID
	PropertyID         uuid.UUID
	BookingID          *string
	ScheduledStartAt   time.Time
	ScheduledEndAt     time.Time
	PaymentAmountCents int64
	VendorTag          *string
}

// TaskReader provides read operations for tasks.
type TaskReader interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Task, error)
	GetActiveByBookingID(ctx context.Context, tenantID uuid.UUID, bookingID string) (Task, error)
	FindOpenByProperty(ctx context.Context, tenantID, propertyID uuid.UUID) (Task, error)
}

// TaskWriter provides the state-machine mutations. Every mutation is a single
// conditional update keyed on the expected current status; concurrent callers
// lose the race cleanly instead of clobbering each other.
type TaskWriter interface {
	Create(ctx context.Context, params CreateParams) (Task, error)
	AssignCleaner(ctx context.Context, tenantID, id, cleanerID uuid.UUID) (Task, error)
	Confirm(ctx context.Context, tenantID, id uuid.UUID) (Task, error)
	Transition(ctx context.Context, tenantID, id uuid.UUID, from, to domain.Status) (Task, error)
	Unassign(ctx context.Context, tenantID, id uuid.UUID) (Task, error)
	Reschedule(ctx context.Context, tenantID, id uuid.UUID, newStart, newEnd time.Time) (Task, error)
	UpdatePaymentStatus(ctx context.Context, tenantID, id uuid.UUID, from, to domain.PaymentStatus) error
}

// SweepReader provides the cross-tenant queries used by the periodic sweeps.
type SweepReader interface {
	// ListNoShowCandidates returns assigned, unconfirmed tasks whose
	// scheduled start is at or before the cutoff.
	ListNoShowCandidates(ctx context.Context, cutoff time.Time, limit int) ([]Task, error)
	// ListOverdueUnconfirmed returns assigned, unconfirmed tasks whose
	// scheduled start is at or before now.
	ListOverdueUnconfirmed(ctx context.Context, now time.Time, limit int) ([]Task, error)
}

// Repository combines all task store operations.
type Repository interface {
	TaskReader
	TaskWriter
	SweepReader
}
