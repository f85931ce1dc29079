// Package payments triggers payment collection for completed cleanings.
// Settlement happens elsewhere; this module owns the durable payment request
// and the task's payment status.
package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/platform/apperr"
)

// Service implements the payment request collaborator.
type Service struct {
	repo     repository.TaskWriter
	outbox   outbox.Enqueuer
	recorder *ledger.Recorder
}

// New creates a new payments service.
func New(repo repository.TaskWriter, queue outbox.Enqueuer, recorder *ledger.Recorder) *Service {
	return &Service{repo: repo, outbox: queue, recorder: recorder}
}

type paymentRequestPayload struct {
	TaskID uuid.UUID `json:"taskId"`
}

// Request enqueues a payment request for the task and moves its payment
// status to requested. Requesting twice for the same task is a no-op: the
// outbox entry is keyed per task and the status update is conditional.
func (s *Service) Request(ctx context.Context, tenantID, taskID uuid.UUID) error {
	_, err := s.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID:       tenantID,
		Type:           outbox.TypePaymentRequest,
		Payload:        paymentRequestPayload{TaskID: taskID},
		IdempotencyKey: fmt.Sprintf("payment_request:%s", taskID),
	})
	if err != nil {
		return fmt.Errorf("enqueue payment request: %w", err)
	}

	err = s.repo.UpdatePaymentStatus(ctx, tenantID, taskID, domain.PaymentNone, domain.PaymentRequested)
	if err != nil && !apperr.Is(err, apperr.KindConflict) {
		return err
	}

	s.recorder.Record(ctx, ledger.AppendParams{
		TenantID:   tenantID,
		Type:       "payment.requested",
		EntityType: "task",
		EntityID:   taskID.String(),
	})

	return nil
}
