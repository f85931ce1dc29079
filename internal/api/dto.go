package api

import (
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/tasks/repository"
)

// BookingEventRequest is the inbound booking webhook payload.
type BookingEventRequest struct {
	BookingID               string    `json:"bookingId" validate:"required"`
	PropertyID              uuid.UUID `json:"propertyId" validate:"required"`
	Status                  string    `json:"status" validate:"required,oneof=confirmed modified canceled"`
	CheckoutAt              time.Time `json:"checkoutAt"`
	CleaningDurationMinutes int       `json:"cleaningDurationMinutes" validate:"omitempty,min=1"`
}

// BookingEventResponse reports the reconciliation outcome.
type BookingEventResponse struct {
	Action string     `json:"action"`
	TaskID *uuid.UUID `json:"taskId,omitempty"`
}

// EmergencyRequestRequest asks for an emergency marketplace cleaning.
type EmergencyRequestRequest struct {
	PropertyID uuid.UUID `json:"propertyId" validate:"required"`
	NeededBy   time.Time `json:"neededBy" validate:"required"`
	Reason     string    `json:"reason" validate:"required,max=500"`
}

// EmergencyRequestResponse reports the opened request.
type EmergencyRequestResponse struct {
	IncidentID uuid.UUID `json:"incidentId"`
	OutboxID   uuid.UUID `json:"outboxId"`
}

// TaskResponse is the API shape of a cleaning task.
type TaskResponse struct {
	ID                uuid.UUID  `json:"id"`
	PropertyID        uuid.UUID  `json:"propertyId"`
	BookingID         *string    `json:"bookingId,omitempty"`
	ScheduledStartAt  time.Time  `json:"scheduledStartAt"`
	ScheduledEndAt    time.Time  `json:"scheduledEndAt"`
	Status            string     `json:"status"`
	AssignedCleanerID *uuid.UUID `json:"assignedCleanerId,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	PaymentStatus     string     `json:"paymentStatus"`
}

func toTaskResponse(task repository.Task) TaskResponse {
	return TaskResponse{
		ID:                task.ID,
		PropertyID:        task.PropertyID,
		BookingID:         task.BookingID,
		ScheduledStartAt:  task.ScheduledStartAt,
		ScheduledEndAt:    task.ScheduledEndAt,
		Status:            string(task.Status),
		AssignedCleanerID: task.AssignedCleanerID,
		ConfirmedAt:       task.ConfirmedAt,
		CompletedAt:       task.CompletedAt,
		PaymentStatus:     string(task.PaymentStatus),
	}
}
