package sweep_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/incidents"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/sweep"
	"cleanops_backend/internal/tasks/domain"
)

func TestLadderRemindsPrimaryFirst(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	task := f.seedAssignedUnconfirmed(uuid.New(), 15*time.Minute, now)

	res, err := f.ladder.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(res.Actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(res.Actions))
	}
	action := res.Actions[0]
	if action.Step != sweep.StepRemindPrimary || !action.Success {
		t.Errorf("action = %+v, want successful remind_primary", action)
	}

	if got := f.outbox.EntriesOfType(outbox.TypeNotifyCleaner); len(got) != 1 {
		t.Errorf("notify_cleaner entries = %d, want 1", len(got))
	}
	types := f.journal.TypesFor(task.ID.String())
	if len(types) != 1 || types[0] != "ladder.remind_primary" {
		t.Errorf("ledger types = %v, want [ladder.remind_primary]", types)
	}
}

func TestLadderDoesNotRepeatARecordedStep(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	f.seedAssignedUnconfirmed(uuid.New(), 15*time.Minute, now)

	if _, err := f.ladder.Sweep(context.Background(), now); err != nil {
		t.Fatalf("first Sweep() error = %v", err)
	}
	res, err := f.ladder.Sweep(context.Background(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if len(res.Actions) != 0 {
		t.Errorf("second pass actions = %v, want none", res.Actions)
	}
	if got := f.outbox.EntriesOfType(outbox.TypeNotifyCleaner); len(got) != 1 {
		t.Errorf("notify_cleaner entries = %d, want 1", len(got))
	}
}

func TestLadderSwitchesToBackup(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	propertyID := uuid.New()
	task := f.seedAssignedUnconfirmed(propertyID, 25*time.Minute, now)
	backup := f.linkBackup(propertyID)

	res, err := f.ladder.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Step != sweep.StepSwitchBackup || !res.Actions[0].Success {
		t.Fatalf("actions = %+v, want successful switch_backup", res.Actions)
	}

	stored, _ := f.store.Get(task.ID)
	if stored.AssignedCleanerID == nil || *stored.AssignedCleanerID != backup.ID {
		t.Errorf("assigned cleaner = %v, want backup %s", stored.AssignedCleanerID, backup.ID)
	}
	if got := f.incidents.OfType(incidents.TypeNoShow); len(got) != 1 {
		t.Errorf("NO_SHOW incidents = %d, want 1", len(got))
	}
}

func TestLadderRecordsSwitchBackupWithoutBackup(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	task := f.seedAssignedUnconfirmed(uuid.New(), 25*time.Minute, now)

	res, err := f.ladder.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Step != sweep.StepSwitchBackup {
		t.Fatalf("actions = %+v, want switch_backup", res.Actions)
	}
	if !res.Actions[0].Success || res.Actions[0].Detail != "no backup cleaner on file" {
		t.Errorf("action = %+v, want recorded no-backup outcome", res.Actions[0])
	}

	// The step must be on the ledger so the ladder moves on instead of
	// retrying a rung that can never succeed.
	types := f.journal.TypesFor(task.ID.String())
	if len(types) != 1 || types[0] != "ladder.switch_backup" {
		t.Errorf("ledger types = %v, want [ladder.switch_backup]", types)
	}

	stored, _ := f.store.Get(task.ID)
	if stored.Status != domain.StatusAssigned {
		t.Errorf("status = %s, want assigned (unchanged)", stored.Status)
	}
	// The no-show itself is still an incident even with nobody to switch to.
	if got := f.incidents.OfType(incidents.TypeNoShow); len(got) != 1 {
		t.Errorf("NO_SHOW incidents = %d, want 1", len(got))
	}
}

func TestLadderOpensEmergencyRequest(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	task := f.seedAssignedUnconfirmed(uuid.New(), 45*time.Minute, now)

	res, err := f.ladder.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Step != sweep.StepEmergencyRequest || !res.Actions[0].Success {
		t.Fatalf("actions = %+v, want successful emergency_request", res.Actions)
	}

	if got := f.incidents.OfType(incidents.TypeEmergency); len(got) != 1 {
		t.Errorf("EMERGENCY_REQUEST incidents = %d, want 1", len(got))
	}
	if got := f.outbox.EntriesOfType(outbox.TypeNotifyMarketplace); len(got) != 1 {
		t.Errorf("notify_marketplace entries = %d, want 1", len(got))
	}

	types := f.journal.TypesFor(task.ID.String())
	if len(types) != 2 {
		t.Errorf("ledger types = %v, want emergency.requested and ladder.emergency_request", types)
	}
}

func TestLadderSkipsMissedLowerSteps(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	task := f.seedAssignedUnconfirmed(uuid.New(), 65*time.Minute, now)

	res, err := f.ladder.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if len(res.Actions) != 1 || res.Actions[0].Step != sweep.StepHostManual {
		t.Fatalf("actions = %+v, want only host_manual", res.Actions)
	}

	// Lower rungs whose window has passed are skipped, not replayed: a
	// follow-up pass finds host_manual recorded and does nothing.
	res, err = f.ladder.Sweep(context.Background(), now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if len(res.Actions) != 0 {
		t.Errorf("second pass actions = %v, want none", res.Actions)
	}

	if got := f.outbox.EntriesOfType(outbox.TypeNotifyCleaner); len(got) != 0 {
		t.Errorf("notify_cleaner entries = %d, want 0 (remind skipped)", len(got))
	}
	types := f.journal.TypesFor(task.ID.String())
	if len(types) != 1 || types[0] != "ladder.host_manual" {
		t.Errorf("ledger types = %v, want [ladder.host_manual]", types)
	}
}

func TestLadderProgressesOneStepPerPass(t *testing.T) {
	f := newSweepFixture(t)
	start := time.Now().UTC()
	propertyID := uuid.New()
	task := f.seedAssignedUnconfirmed(propertyID, 0, start)
	f.linkBackup(propertyID)

	steps := []struct {
		late time.Duration
		want string
	}{
		{15 * time.Minute, sweep.StepRemindPrimary},
		{25 * time.Minute, sweep.StepSwitchBackup},
		{45 * time.Minute, sweep.StepEmergencyRequest},
		{65 * time.Minute, sweep.StepHostManual},
	}

	for _, step := range steps {
		res, err := f.ladder.Sweep(context.Background(), start.Add(step.late))
		if err != nil {
			t.Fatalf("Sweep() at +%v error = %v", step.late, err)
		}
		if len(res.Actions) != 1 {
			t.Fatalf("at +%v actions = %+v, want exactly 1", step.late, res.Actions)
		}
		if res.Actions[0].Step != step.want {
			t.Errorf("at +%v step = %s, want %s", step.late, res.Actions[0].Step, step.want)
		}
		if res.Actions[0].TaskID != task.ID {
			t.Errorf("at +%v task = %s, want %s", step.late, res.Actions[0].TaskID, task.ID)
		}
	}
}
