// Package sweep implements the periodic safety nets over the task store: the
// no-show detector and the escalation ladder. Both scan for assigned tasks
// whose cleaner has not confirmed, gate their actions on the event ledger so
// reruns stay idempotent, and isolate per-task failures so one bad row never
// stalls a whole pass.
package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/emergency"
	"cleanops_backend/internal/tasks/repository"
)

// sweepBatchLimit caps how many candidates a single pass examines.
const sweepBatchLimit = 200

// Dispatcher reassigns a scheduled task to a specific cleaner.
type Dispatcher interface {
	DispatchToBackup(ctx context.Context, tenantID, taskID, cleanerID uuid.UUID) (repository.Task, error)
}

// EmergencyRequester opens an emergency marketplace request for a property.
type EmergencyRequester interface {
	Request(ctx context.Context, tenantID, propertyID uuid.UUID, neededBy time.Time, reason string) (emergency.Result, error)
}
