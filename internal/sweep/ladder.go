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

// Escalation steps, in increasing order of severity.
const (
	StepRemindPrimary    = "remind_primary"
	StepSwitchBackup     = "switch_backup"
	StepEmergencyRequest = "emergency_request"
	StepHostManual       = "host_manual"
)

const (
	ladderLockName     = "sweep:ladder"
	ladderLedgerPrefix = "ladder."
)

// LadderAction reports one executed escalation step.
type LadderAction struct {
	TaskID  uuid.UUID
	Step    string
	Success bool
	Detail  string
}

// LadderResult summarizes a single ladder pass.
type LadderResult struct {
	Evaluated int
	Actions   []LadderAction
	Failed    int
}

// Ladder escalates overdue unconfirmed tasks through a fixed sequence of
// steps. Each pass executes at most one step per task: the most severe step
// whose delay threshold has been reached and that has not already been
// recorded in the ledger. Less severe steps whose window has passed are
// skipped, not replayed.
type Ladder struct {
	repo       repository.Repository
	cleaners   cleaners.Lookup
	incidents  incidents.Sink
	outbox     outbox.Enqueuer
	dispatcher Dispatcher
	emergency  EmergencyRequester
	ledger     ledger.Ledger
	recorder   *ledger.Recorder
	bus        events.Bus
	cfg        config.EscalationConfig
	locker     *redislock.Locker
	log        *logger.Logger
}

// NewLadder creates an escalation ladder.
func NewLadder(
	repo repository.Repository,
	lookup cleaners.Lookup,
	sink incidents.Sink,
	queue outbox.Enqueuer,
	dispatcher Dispatcher,
	requester EmergencyRequester,
	journal ledger.Ledger,
	recorder *ledger.Recorder,
	bus events.Bus,
	cfg config.EscalationConfig,
	locker *redislock.Locker,
	log *logger.Logger,
) *Ladder {
	return &Ladder{
		repo:       repo,
		cleaners:   lookup,
		incidents:  sink,
		outbox:     queue,
		dispatcher: dispatcher,
		emergency:  requester,
		ledger:     journal,
		recorder:   recorder,
		bus:        bus,
		cfg:        cfg,
		locker:     locker,
		log:        log,
	}
}

// Run executes the ladder on the configured sweep interval until the context
// is canceled.
func (l *Ladder) Run(ctx context.Context) {
	interval := l.cfg.GetSweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			release, ok := l.locker.Acquire(ctx, ladderLockName, interval)
			if !ok {
				continue
			}
			if _, err := l.Sweep(ctx, time.Now().UTC()); err != nil {
				l.log.Error("ladder_sweep_failed", slog.String("error", err.Error()))
			}
			release()
		}
	}
}

// Sweep runs a single ladder pass over all overdue unconfirmed tasks.
func (l *Ladder) Sweep(ctx context.Context, now time.Time) (LadderResult, error) {
	tasks, err := l.repo.ListOverdueUnconfirmed(ctx, now, sweepBatchLimit)
	if err != nil {
		return LadderResult{}, fmt.Errorf("list overdue unconfirmed tasks: %w", err)
	}

	var res LadderResult
	for _, task := range tasks {
		res.Evaluated++

		late := now.Sub(task.ScheduledStartAt)
		step := l.applicableStep(late)
		if step == "" {
			continue
		}

		recorded, err := l.stepRecorded(ctx, task.ID, step)
		if err != nil {
			res.Failed++
			l.log.DatabaseError("ladder ledger check", err)
			continue
		}
		if recorded {
			continue
		}

		action := l.execute(ctx, task, step)
		res.Actions = append(res.Actions, action)
		if !action.Success {
			res.Failed++
		}

		minutesLate := int(late.Minutes())
		l.recorder.Record(ctx, ledger.AppendParams{
			TenantID: task.TenantID,
			Type:     ladderLedgerPrefix + step,
			Payload: map[string]any{
				"minutesLate": minutesLate,
				"success":     action.Success,
				"detail":      action.Detail,
			},
			EntityType: "task",
			EntityID:   task.ID.String(),
		})

		l.bus.Publish(ctx, events.EscalationStepFired{
			BaseEvent:   events.NewBaseEvent(),
			TaskID:      task.ID,
			TenantID:    task.TenantID,
			Step:        step,
			MinutesLate: minutesLate,
			Success:     action.Success,
		})
	}

	l.log.SweepCompleted("ladder", res.Evaluated, len(res.Actions), res.Failed)
	return res, nil
}

// applicableStep returns the most severe step whose threshold the delay has
// reached, or "" when the task is not late enough for any step.
func (l *Ladder) applicableStep(late time.Duration) string {
	switch {
	case late >= l.cfg.GetHostManualAfter():
		return StepHostManual
	case late >= l.cfg.GetEmergencyRequestAfter():
		return StepEmergencyRequest
	case late >= l.cfg.GetSwitchBackupAfter():
		return StepSwitchBackup
	case late >= l.cfg.GetRemindPrimaryAfter():
		return StepRemindPrimary
	default:
		return ""
	}
}

func (l *Ladder) stepRecorded(ctx context.Context, taskID uuid.UUID, step string) (bool, error) {
	records, err := l.ledger.FindByEntityAndTypePrefix(ctx, taskID.String(), ladderLedgerPrefix+step)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (l *Ladder) execute(ctx context.Context, task repository.Task, step string) LadderAction {
	action := LadderAction{TaskID: task.ID, Step: step}

	var err error
	switch step {
	case StepRemindPrimary:
		err = l.remindPrimary(ctx, task)
	case StepSwitchBackup:
		action.Detail, err = l.switchBackup(ctx, task)
	case StepEmergencyRequest:
		err = l.requestEmergency(ctx, task)
	case StepHostManual:
		err = l.requestHostManual(ctx, task)
	}

	if err != nil {
		action.Detail = err.Error()
		l.log.Error("ladder_step_failed",
			slog.String("task_id", task.ID.String()),
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
		return action
	}

	action.Success = true
	return action
}

func (l *Ladder) remindPrimary(ctx context.Context, task repository.Task) error {
	cleanerID := ""
	if task.AssignedCleanerID != nil {
		cleanerID = task.AssignedCleanerID.String()
	}
	_, err := l.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID: task.TenantID,
		Type:     outbox.TypeNotifyCleaner,
		Payload: map[string]string{
			"taskId":    task.ID.String(),
			"cleanerId": cleanerID,
			"message":   "reminder: please confirm your scheduled cleaning",
		},
		IdempotencyKey: fmt.Sprintf("ladder:remind_primary:%s", task.ID),
	})
	if err != nil {
		return fmt.Errorf("enqueue primary reminder: %w", err)
	}
	return nil
}

// switchBackup records the no-show and replaces the unresponsive cleaner with
// the property's backup. The step is recorded even when no backup exists so
// the ladder keeps moving toward the emergency request instead of retrying
// this rung forever.
func (l *Ladder) switchBackup(ctx context.Context, task repository.Task) (string, error) {
	unresponsiveCleaner := ""
	if task.AssignedCleanerID != nil {
		unresponsiveCleaner = task.AssignedCleanerID.String()
	}
	if _, err := l.incidents.Create(ctx, incidents.CreateParams{
		TenantID:    task.TenantID,
		PropertyID:  task.PropertyID,
		TaskID:      &task.ID,
		Type:        incidents.TypeNoShow,
		Severity:    incidents.SeverityMed,
		Description: fmt.Sprintf("cleaner %s has not confirmed the escalated cleaning", unresponsiveCleaner),
	}); err != nil {
		return "", fmt.Errorf("record no-show incident: %w", err)
	}

	backup, err := l.cleaners.FindByPropertyAndPriority(ctx, task.TenantID, task.PropertyID, cleaners.PriorityBackup)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return "no backup cleaner on file", nil
		}
		return "", fmt.Errorf("find backup cleaner: %w", err)
	}

	if _, err := l.repo.Unassign(ctx, task.TenantID, task.ID); err != nil {
		if apperr.Is(err, apperr.KindConflict) || apperr.Is(err, apperr.KindNotFound) {
			return "task no longer awaiting confirmation", nil
		}
		return "", fmt.Errorf("unassign task: %w", err)
	}
	if _, err := l.dispatcher.DispatchToBackup(ctx, task.TenantID, task.ID, backup.ID); err != nil {
		return "", fmt.Errorf("dispatch backup cleaner: %w", err)
	}

	if _, err := l.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID: task.TenantID,
		Type:     outbox.TypeNotifyHost,
		Payload: map[string]string{
			"taskId":     task.ID.String(),
			"propertyId": task.PropertyID.String(),
			"message":    "the scheduled cleaner has not confirmed; the backup cleaner was assigned",
		},
		IdempotencyKey: fmt.Sprintf("ladder:switch_backup:host:%s", task.ID),
	}); err != nil {
		return "", fmt.Errorf("enqueue host swap notification: %w", err)
	}

	return "backup cleaner assigned", nil
}

func (l *Ladder) requestEmergency(ctx context.Context, task repository.Task) error {
	_, err := l.emergency.Request(ctx, task.TenantID, task.PropertyID, task.ScheduledEndAt,
		"no cleaner confirmation received before the scheduled cleaning window")
	if err != nil {
		return fmt.Errorf("open emergency request: %w", err)
	}
	return nil
}

func (l *Ladder) requestHostManual(ctx context.Context, task repository.Task) error {
	if _, err := l.incidents.Create(ctx, incidents.CreateParams{
		TenantID:    task.TenantID,
		PropertyID:  task.PropertyID,
		TaskID:      &task.ID,
		Type:        incidents.TypeOther,
		Severity:    incidents.SeverityHigh,
		Description: "cleaning still unconfirmed after all escalation steps; host must intervene",
	}); err != nil {
		return fmt.Errorf("record host manual incident: %w", err)
	}

	if _, err := l.outbox.Enqueue(ctx, outbox.EnqueueParams{
		TenantID: task.TenantID,
		Type:     outbox.TypeNotifyHost,
		Payload: map[string]string{
			"taskId":     task.ID.String(),
			"propertyId": task.PropertyID.String(),
			"message":    "automated escalation is exhausted; please arrange the cleaning manually",
		},
		IdempotencyKey: fmt.Sprintf("ladder:host_manual:%s", task.ID),
	}); err != nil {
		return fmt.Errorf("enqueue host manual notification: %w", err)
	}
	return nil
}
