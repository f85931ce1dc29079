package sweep_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/emergency"
	"cleanops_backend/internal/incidents"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/outbox"
	"cleanops_backend/internal/sweep"
	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/internal/tasks/service"
	"cleanops_backend/internal/testsupport"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/logger"
)

type sweepFixture struct {
	store     *testsupport.TaskStore
	dir       *testsupport.CleanerDirectory
	incidents *testsupport.IncidentLog
	outbox    *testsupport.Outbox
	journal   *testsupport.Ledger
	bus       *testsupport.CaptureBus
	cfg       *config.Config
	detector  *sweep.Detector
	ladder    *sweep.Ladder
	tenantID  uuid.UUID
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	store := testsupport.NewTaskStore()
	dir := testsupport.NewCleanerDirectory()
	incidentLog := testsupport.NewIncidentLog()
	queue := testsupport.NewOutbox()
	journal := testsupport.NewLedger()
	bus := testsupport.NewCaptureBus()
	log := logger.New("test")
	recorder := ledger.NewRecorder(journal, log)

	cfg := &config.Config{
		ConfirmTimeout:        30 * time.Minute,
		RemindPrimaryAfter:    10 * time.Minute,
		SwitchBackupAfter:     20 * time.Minute,
		EmergencyRequestAfter: 40 * time.Minute,
		HostManualAfter:       60 * time.Minute,
		SweepInterval:         5 * time.Minute,
	}

	dispatcher := service.New(store, dir, queue, recorder, nil, bus, log)
	requester := emergency.New(store, incidentLog, queue, recorder, 90*time.Minute)

	return &sweepFixture{
		store:     store,
		dir:       dir,
		incidents: incidentLog,
		outbox:    queue,
		journal:   journal,
		bus:       bus,
		cfg:       cfg,
		detector: sweep.NewDetector(store, dir, incidentLog, queue, dispatcher,
			journal, recorder, bus, cfg, nil, log),
		ladder: sweep.NewLadder(store, dir, incidentLog, queue, dispatcher, requester,
			journal, recorder, bus, cfg, nil, log),
		tenantID: uuid.New(),
	}
}

// seedAssignedUnconfirmed stores an assigned task whose cleaner has not
// confirmed, scheduled to start `late` before now.
func (f *sweepFixture) seedAssignedUnconfirmed(propertyID uuid.UUID, late time.Duration, now time.Time) repository.Task {
	cleanerID := uuid.New()
	task := repository.Task{
		ID:                uuid.New(),
		TenantID:          f.tenantID,
		PropertyID:        propertyID,
		ScheduledStartAt:  now.Add(-late),
		ScheduledEndAt:    now.Add(-late).Add(90 * time.Minute),
		Status:            domain.StatusAssigned,
		AssignedCleanerID: &cleanerID,
	}
	f.store.Seed(task)
	return task
}

func (f *sweepFixture) linkBackup(propertyID uuid.UUID) cleaners.Cleaner {
	backup := cleaners.Cleaner{ID: uuid.New(), TenantID: f.tenantID, Name: "Bruno", IsActive: true}
	f.dir.Link(propertyID, cleaners.PriorityBackup, backup)
	return backup
}

func TestNoShowReassignsBackup(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	propertyID := uuid.New()
	task := f.seedAssignedUnconfirmed(propertyID, 45*time.Minute, now)
	backup := f.linkBackup(propertyID)

	res, err := f.detector.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.NoShows != 1 || res.BackupAssigned != 1 || res.ManualNeeded != 0 {
		t.Errorf("result = %+v, want 1 no-show with backup assigned", res)
	}

	stored, _ := f.store.Get(task.ID)
	if stored.Status != domain.StatusAssigned {
		t.Errorf("status = %s, want assigned", stored.Status)
	}
	if stored.AssignedCleanerID == nil || *stored.AssignedCleanerID != backup.ID {
		t.Errorf("assigned cleaner = %v, want backup %s", stored.AssignedCleanerID, backup.ID)
	}
	if stored.ConfirmedAt != nil {
		t.Error("backup assignment must reset the confirmation stamp")
	}

	if got := f.incidents.OfType(incidents.TypeNoShow); len(got) != 1 {
		t.Errorf("NO_SHOW incidents = %d, want 1", len(got))
	}
	if got := f.outbox.EntriesOfType(outbox.TypeNotifyHost); len(got) != 1 {
		t.Errorf("notify_host entries = %d, want 1", len(got))
	}
}

func TestNoShowWithoutBackupEscalatesToHost(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	task := f.seedAssignedUnconfirmed(uuid.New(), 45*time.Minute, now)

	res, err := f.detector.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.NoShows != 1 || res.ManualNeeded != 1 {
		t.Errorf("result = %+v, want 1 no-show needing manual handling", res)
	}

	stored, _ := f.store.Get(task.ID)
	if stored.Status != domain.StatusScheduled {
		t.Errorf("status = %s, want scheduled (unassigned)", stored.Status)
	}

	if got := f.incidents.OfType(incidents.TypeNoShow); len(got) != 1 {
		t.Errorf("NO_SHOW incidents = %d, want 1", len(got))
	}
	if got := f.incidents.OfType(incidents.TypeOther); len(got) != 1 {
		t.Errorf("OTHER incidents = %d, want 1", len(got))
	}
	if got := f.outbox.EntriesOfType(outbox.TypeNotifyHost); len(got) != 1 {
		t.Errorf("notify_host entries = %d, want 1", len(got))
	}
}

func TestNoShowSkipsConfirmedAndFutureTasks(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()

	confirmed := f.seedAssignedUnconfirmed(uuid.New(), 45*time.Minute, now)
	if _, err := f.store.Confirm(context.Background(), f.tenantID, confirmed.ID); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	f.seedAssignedUnconfirmed(uuid.New(), 10*time.Minute, now) // inside the grace window

	res, err := f.detector.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Checked != 0 || res.NoShows != 0 {
		t.Errorf("result = %+v, want nothing flagged", res)
	}
	if got := f.incidents.Incidents(); len(got) != 0 {
		t.Errorf("incidents = %d, want 0", len(got))
	}
}

func TestNoShowSweepIsIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	now := time.Now().UTC()
	propertyID := uuid.New()
	f.seedAssignedUnconfirmed(propertyID, 45*time.Minute, now)
	f.linkBackup(propertyID)

	if _, err := f.detector.Sweep(context.Background(), now); err != nil {
		t.Fatalf("first Sweep() error = %v", err)
	}

	// The backup assignment is itself unconfirmed, so the task is a candidate
	// again; the ledger record must keep the second pass from re-flagging it.
	res, err := f.detector.Sweep(context.Background(), now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if res.NoShows != 0 {
		t.Errorf("second pass no-shows = %d, want 0", res.NoShows)
	}
	if got := f.incidents.OfType(incidents.TypeNoShow); len(got) != 1 {
		t.Errorf("NO_SHOW incidents = %d, want 1 after two passes", len(got))
	}
}
