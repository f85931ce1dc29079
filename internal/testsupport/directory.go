package testsupport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/incidents"
	"cleanops_backend/platform/apperr"
)

// CleanerDirectory is an in-memory cleaners lookup keyed by property and
// priority.
type CleanerDirectory struct {
	mu    sync.Mutex
	links map[uuid.UUID]map[int]cleaners.Cleaner
}

// NewCleanerDirectory creates an empty in-memory cleaner directory.
func NewCleanerDirectory() *CleanerDirectory {
	return &CleanerDirectory{links: make(map[uuid.UUID]map[int]cleaners.Cleaner)}
}

var _ cleaners.Lookup = (*CleanerDirectory)(nil)

// Link registers a cleaner for a property at a priority.
func (d *CleanerDirectory) Link(propertyID uuid.UUID, priority int, cleaner cleaners.Cleaner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.links[propertyID] == nil {
		d.links[propertyID] = make(map[int]cleaners.Cleaner)
	}
	d.links[propertyID][priority] = cleaner
}

func (d *CleanerDirectory) FindByPropertyAndPriority(_ context.Context, tenantID, propertyID uuid.UUID, priority int) (cleaners.Cleaner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cleaner, ok := d.links[propertyID][priority]
	if !ok || cleaner.TenantID != tenantID {
		return cleaners.Cleaner{}, apperr.NotFound("cleaner not found")
	}
	return cleaner, nil
}

// IncidentLog is an in-memory incidents sink.
type IncidentLog struct {
	mu        sync.Mutex
	incidents []incidents.Incident
}

// NewIncidentLog creates an empty in-memory incident log.
func NewIncidentLog() *IncidentLog {
	return &IncidentLog{}
}

var _ incidents.Sink = (*IncidentLog)(nil)

func (l *IncidentLog) Create(_ context.Context, params incidents.CreateParams) (incidents.Incident, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inc := incidents.Incident{
		ID:          uuid.New(),
		TenantID:    params.TenantID,
		PropertyID:  params.PropertyID,
		TaskID:      params.TaskID,
		Type:        params.Type,
		Severity:    params.Severity,
		Description: params.Description,
	}
	l.incidents = append(l.incidents, inc)
	return inc, nil
}

// Incidents returns all recorded incidents in creation order.
func (l *IncidentLog) Incidents() []incidents.Incident {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]incidents.Incident, len(l.incidents))
	copy(out, l.incidents)
	return out
}

// OfType returns the recorded incidents of the given type.
func (l *IncidentLog) OfType(incidentType string) []incidents.Incident {
	var out []incidents.Incident
	for _, inc := range l.Incidents() {
		if inc.Type == incidentType {
			out = append(out, inc)
		}
	}
	return out
}
