package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/events"
	"cleanops_backend/internal/incidents"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/platform/apperr"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/logger"
	"cleanops_backend/platform/redislock"
)

const (
	noShowLockName = "sweep:noshow"
	noShowLedger   = "noshow.detected"
)

// NoShowResult summarizes a single detector pass.
type NoShowResult struct {
	Checked        int
	NoShows        int
	BackupAssigned int
	ManualNeeded   int
	Failed         int
}

// Detector flags tasks whose assigned cleaner never confirmed within the
// confirmation timeout, records the no-show, and reroutes the task to the
// property's backup cleaner when one is on file.
type Detector struct {
	repo       repository.Repository
	cleaners   cleaners.Lookup
	incidents  incidents.Sink
	outbox     outbox.Enqueuer
	dispatcher Dispatcher
	ledger     ledger.Ledger
	recorder   *ledger.Recorder
	bus        events.Bus
	cfg        config.EscalationConfig
	locker     *redislock.Locker
	log        *logger.Logger
}

// NewDetector creates a no-show detector.
func NewDetector(
	repo repository.Repository,
	lookup cleaners.Lookup,
	sink incidents.Sink,
	queue outbox.Enqueuer,
	dispatcher Dispatcher,
	journal ledger.Ledger,
	recorder *ledger.Recorder,
	bus events.Bus,
	cfg config.EscalationConfig,
	locker *redislock.Locker,
	log *logger.Logger,
) *Detector {
	return &Detector{
		repo:       repo,
		cleaners:   lookup,
		incidents:  sink,
		outbox:     queue,
		dispatcher: dispatcher,
		ledger:     journal,
		recorder:   recorder,
		bus:        bus,
		cfg:        cfg,
		locker:     locker,
		log:        log,
	}
}

// Run executes the detector on the configured sweep interval until the
// context is canceled.
func (d *Detector) Run(ctx context.Context) {
	interval := d.cfg.GetSweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			release, ok := d.locker.Acquire(ctx, noShowLockName, interval)
			if !ok {
				continue
			}
			if _, err := d.Sweep(ctx, time.Now().UTC()); err != nil {
				d.log.Error("noshow_sweep_failed", slog.String("error", err.Error()))
			}
			release()
		}
	}
}

// Sweep runs a single detector pass. Tasks already flagged in the ledger are
// skipped, so rerunning a pass over the same rows is a no-op.
func (d *Detector) Sweep(ctx context.Context, now time.Time) (NoShowResult, error) {
	cutoff := now.Add(-d.cfg.GetConfirmTimeout())
	tasks, err := d.repo.ListNoShowCandidates(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		return NoShowResult{}, fmt.Errorf("list no-show candidates: %w", err)
	}

	var res NoShowResult
	for _, task := range tasks {
		res.Checked++

		flagged, err := d.alreadyFlagged(ctx, task.ID)
		if err != nil {
			res.Failed++
			d.log.DatabaseError("noshow ledger check", err)
			continue
		}
		if flagged {
			continue
		}

		if err := d.handle(ctx, task, &res); err != nil {
			res.Failed++
			d.log.Error("noshow_handling_failed",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	d.log.SweepCompleted("noshow", res.Checked, res.NoShows, res.Failed)
	return res, nil
}

func (d *Detector) alreadyFlagged(ctx context.Context, taskID uuid.UUID) (bool, error) {
	records, err := d.ledger.FindByEntityAndTypePrefix(ctx, taskID.String(), noShowLedger)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (d *Detector) handle(ctx context.Context, task repository.Task, res *NoShowResult) error {
	previousCleaner := ""
	if task.AssignedCleanerID != nil {
		previousCleaner = task.AssignedCleanerID.String()
	}

	// Unassign is the race guard: if the cleaner confirmed or checked in
	// between the candidate query and now, the conditional update loses and
	// the task is left alone.
	unassigned, err := d.repo.Unassign(ctx, task.TenantID, task.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return fmt.Errorf("unassign task: %w", err)
	}
	res.NoShows++

	if _, err := d.incidents.Create(ctx, incidents.CreateParams{
		TenantID:    task.TenantID,
		PropertyID:  task.PropertyID,
		TaskID:      &task.ID,
		Type:        incidents.TypeNoShow,
		Severity:    incidents.SeverityMed,
		Description: fmt.Sprintf("cleaner %s did not confirm within the timeout", previousCleaner),
	}); err != nil {
		return fmt.Errorf("record no-show incident: %w", err)
	}

	backupAssigned := false
	backup, err := d.cleaners.FindByPropertyAndPriority(ctx, task.TenantID, task.PropertyID, cleaners.PriorityBackup)
	switch {
	case err == nil:
		if _, err := d.dispatcher.DispatchToBackup(ctx, task.TenantID, task.ID, backup.ID); err != nil {
			return fmt.Errorf("dispatch backup cleaner: %w", err)
		}
		backupAssigned = true
		res.BackupAssigned++

		if _, err := d.outbox.Enqueue(ctx, outbox.EnqueueParams{
			TenantID: task.TenantID,
			Type:     outbox.TypeNotifyHost,
			Payload: map[string]string{
				"taskId":     task.ID.String(),
				"propertyId": task.PropertyID.String(),
				"message":    "the scheduled cleaner did not confirm; the backup cleaner was assigned",
			},
			IdempotencyKey: fmt.Sprintf("noshow:host_swap:%s", task.ID),
		}); err != nil {
			return fmt.Errorf("enqueue host swap notification: %w", err)
		}

	case apperr.Is(err, apperr.KindNotFound):
		res.ManualNeeded++
		if _, err := d.incidents.Create(ctx, incidents.CreateParams{
			TenantID:    task.TenantID,
			PropertyID:  task.PropertyID,
			TaskID:      &task.ID,
			Type:        incidents.TypeOther,
			Severity:    incidents.SeverityHigh,
			Description: "no backup cleaner on file; host intervention required",
		}); err != nil {
			return fmt.Errorf("record manual intervention incident: %w", err)
		}
		if _, err := d.outbox.Enqueue(ctx, outbox.EnqueueParams{
			TenantID: task.TenantID,
			Type:     outbox.TypeNotifyHost,
			Payload: map[string]string{
				"taskId":     task.ID.String(),
				"propertyId": task.PropertyID.String(),
				"message":    "the scheduled cleaner did not confirm and no backup is on file; please arrange the cleaning",
			},
			IdempotencyKey: fmt.Sprintf("noshow:host_manual:%s", task.ID),
		}); err != nil {
			return fmt.Errorf("enqueue host manual notification: %w", err)
		}

	default:
		return fmt.Errorf("find backup cleaner: %w", err)
	}

	d.recorder.Record(ctx, ledger.AppendParams{
		TenantID: task.TenantID,
		Type:     noShowLedger,
		Payload: map[string]any{
			"cleanerId":      previousCleaner,
			"backupAssigned": backupAssigned,
		},
		EntityType: "task",
		EntityID:   task.ID.String(),
	})

	d.bus.Publish(ctx, events.NoShowDetected{
		BaseEvent:      events.NewBaseEvent(),
		TaskID:         unassigned.ID,
		TenantID:       task.TenantID,
		PropertyID:     task.PropertyID,
		BackupAssigned: backupAssigned,
	})

	return nil
}
