// Package incidents records operational incidents (no-shows, emergencies,
// conditions needing manual host intervention).
package incidents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Incident types.
const (
	TypeNoShow    = "NO_SHOW"
	TypeEmergency = "EMERGENCY_REQUEST"
	TypeOther     = "OTHER"
)

// Incident severities.
const (
	SeverityLow  = "low"
	SeverityMed  = "med"
	SeverityHigh = "high"
)

// Incident is a recorded operational problem tied to a property and
// optionally a task.
type Incident struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	PropertyID  uuid.UUID
	TaskID      *uuid.UUID
	Type        string
	Severity    string
	Description string
	CreatedAt   time.Time
}

// CreateParams contains parameters for recording an incident.
type CreateParams struct {
	TenantID    uuid.UUID
	PropertyID  uuid.UUID
	TaskID      *uuid.UUID
	Type        string
	Severity    string
	Description string
}

// Sink accepts incident reports.
type Sink interface {
	Create(ctx context.Context, params CreateParams) (Incident, error)
}

// Repository implements Sink with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new incidents repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements Sink.
var _ Sink = (*Repository)(nil)

// Create records a new incident.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Incident, error) {
	query := `
		INSERT INTO incidents (tenant_id, property_id, task_id, type, severity, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, property_id, task_id, type, severity, description, created_at`

	var inc Incident
	err := r.pool.QueryRow(ctx, query,
		params.TenantID, params.PropertyID, params.TaskID,
		params.Type, params.Severity, params.Description,
	).Scan(
		&inc.ID, &inc.TenantID, &inc.PropertyID, &inc.TaskID,
		&inc.Type, &inc.Severity, &inc.Description, &inc.CreatedAt,
	)
	if err != nil {
		return Incident{}, fmt.Errorf("create incident: %w", err)
	}
	return inc, nil
}
