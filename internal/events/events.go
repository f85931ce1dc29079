// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"cleanops_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Task Domain Events
// =============================================================================

// TaskAssigned is published when a cleaner is assigned to a task.
type TaskAssigned struct {
	BaseEvent
	TaskID     uuid.UUID `json:"taskId"`
	TenantID   uuid.UUID `json:"tenantId"`
	PropertyID uuid.UUID `json:"propertyId"`
	CleanerID  uuid.UUID `json:"cleanerId"`
	Source     string    `json:"source"` // "primary" or "backup"
}

func (e TaskAssigned) EventName() string { return "tasks.assigned" }

// TaskConfirmed is published when the assigned cleaner confirms the job.
type TaskConfirmed struct {
	BaseEvent
	TaskID    uuid.UUID `json:"taskId"`
	TenantID  uuid.UUID `json:"tenantId"`
	CleanerID uuid.UUID `json:"cleanerId"`
}

func (e TaskConfirmed) EventName() string { return "tasks.confirmed" }

// TaskStarted is published when the cleaner checks in at the property.
type TaskStarted struct {
	BaseEvent
	TaskID   uuid.UUID `json:"taskId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e TaskStarted) EventName() string { return "tasks.started" }

// TaskCompleted is published when a cleaning is finished.
type TaskCompleted struct {
	BaseEvent
	TaskID      uuid.UUID `json:"taskId"`
	TenantID    uuid.UUID `json:"tenantId"`
	PropertyID  uuid.UUID `json:"propertyId"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e TaskCompleted) EventName() string { return "tasks.completed" }

// =============================================================================
// Sweep Domain Events
// =============================================================================

// NoShowDetected is published when the no-show sweep flags an unconfirmed
// assignment past its deadline.
type NoShowDetected struct {
	BaseEvent
	TaskID         uuid.UUID `json:"taskId"`
	TenantID       uuid.UUID `json:"tenantId"`
	PropertyID     uuid.UUID `json:"propertyId"`
	BackupAssigned bool      `json:"backupAssigned"`
}

func (e NoShowDetected) EventName() string { return "sweeps.noshow.detected" }

// EscalationStepFired is published when the escalation ladder executes a step.
type EscalationStepFired struct {
	BaseEvent
	TaskID      uuid.UUID `json:"taskId"`
	TenantID    uuid.UUID `json:"tenantId"`
	Step        string    `json:"step"`
	MinutesLate int       `json:"minutesLate"`
	Success     bool      `json:"success"`
}

func (e EscalationStepFired) EventName() string { return "sweeps.ladder.step_fired" }

// =============================================================================
// Booking Domain Events
// =============================================================================

// BookingReconciled is published after a booking event has been translated
// into a task action.
type BookingReconciled struct {
	BaseEvent
	TenantID  uuid.UUID  `json:"tenantId"`
	BookingID string     `json:"bookingId"`
	Action    string     `json:"action"` // created|canceled|rescheduled|no_op
	TaskID    *uuid.UUID `json:"taskId,omitempty"`
}

func (e BookingReconciled) EventName() string { return "bookings.reconciled" }
