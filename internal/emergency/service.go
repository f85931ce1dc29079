// Package emergency raises marketplace requests when a property needs a
// cleaning and the regular cleaner chain has been exhausted.
package emergency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/incidents"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/platform/apperr"
)

// Result reports the incident and marketplace outbox entry created for a
// request.
type Result struct {
	IncidentID uuid.UUID
	OutboxID   uuid.UUID
}

// Service implements the emergency request collaborator.
type Service struct {
	repo            repository.Repository
	incidents       incidents.Sink
	outbox          outbox.Enqueuer
	recorder        *ledger.Recorder
	defaultDuration time.Duration
}

// New creates a new emergency request service.
func New(
	repo repository.Repository,
	sink incidents.Sink,
	queue outbox.Enqueuer,
	recorder *ledger.Recorder,
	defaultDuration time.Duration,
) *Service {
	if defaultDuration <= 0 {
		defaultDuration = 90 * time.Minute
	}
	return &Service{
		repo:            repo,
		incidents:       sink,
		outbox:          queue,
		recorder:        recorder,
		defaultDuration: defaultDuration,
	}
}

type marketplacePayload struct {
	TaskID     uuid.UUID `json:"taskId"`
	PropertyID uuid.UUID `json:"propertyId"`
	NeededBy   string    `json:"neededBy"`
	Reason     string    `json:"reason"`
}

type hostEmergencyPayload struct {
	TaskID     uuid.UUID `json:"taskId"`
	PropertyID uuid.UUID `json:"propertyId"`
	Reason     string    `json:"reason"`
	Message    string    `json:"message"`
}

// Request opens an emergency marketplace request for the property. An open
// task for the property is reused when one exists; otherwise a fresh
// scheduled task is created. A high-severity incident is recorded and both
// the marketplace and the host are notified through the outbox.
func (s *Service) Request(ctx context.Context, tenantID, propertyID uuid.UUID, neededBy time.Time, reason string) (Result, error) {
	task, err := s.repo.FindOpenByProperty(ctx, tenantID, propertyID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return Result{}, err
		}
		task, err = s.repo.Create(ctx, repository.CreateParams{
			TenantID:         tenantID,
			PropertyID:       propertyID,
			ScheduledStartAt: neededBy,
			ScheduledEndAt:   neededBy.Add(s.defaultDuration),
		})
		if err != nil {
			return Result{}, err
		}
	}

	incident, err := s.incidents.Create(ctx, incidents.CreateParams{
		TenantID:    tenantID,
		PropertyID:  propertyID,
		TaskID:      &task.ID,
		Type:        incidents.TypeEmergency,
		Severity:    incidents.SeverityHigh,
		Description: fmt.Sprintf("emergency cleaning request: %s", reason),
	})
	if err != nil {
		return Result{}, fmt.Errorf("record emergency incident: %w", err)
	}

	marketplaceEntry, err := s.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID: tenantID,
		Type:     outbox.TypeNotifyMarketplace,
		Payload: marketplacePayload{
			TaskID:     task.ID,
			PropertyID: propertyID,
			NeededBy:   neededBy.UTC().Format(time.RFC3339),
			Reason:     reason,
		},
		IdempotencyKey: fmt.Sprintf("emergency:marketplace:%s:%d", task.ID, neededBy.Unix()),
	})
	if err != nil {
		return Result{}, fmt.Errorf("enqueue marketplace request: %w", err)
	}

	_, err = s.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID: tenantID,
		Type:     outbox.TypeNotifyHost,
		Payload: hostEmergencyPayload{
			TaskID:     task.ID,
			PropertyID: propertyID,
			Reason:     reason,
			Message:    "an emergency marketplace request was opened for your property",
		},
		IdempotencyKey: fmt.Sprintf("emergency:host:%s:%d", task.ID, neededBy.Unix()),
	})
	if err != nil {
		return Result{}, fmt.Errorf("enqueue host notification: %w", err)
	}

	s.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   tenantID,
		Type:       "emergency.requested",
		Payload:    map[string]string{"reason": reason, "incidentId": incident.ID.String()},
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	return Result{IncidentID: incident.ID, OutboxID: marketplaceEntry.ID}, nil
}
