// Package cleaners provides the directory of cleaners linked to properties.
// The dispatcher and sweeps resolve "the priority-N cleaner for a property"
// through this package.
package cleaners

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleanops_backend/platform/apperr"
)

// Link priorities for property cleaners.
const (
	PriorityPrimary = 1
	PriorityBackup  = 2
)

// Cleaner is a person who performs turnover cleanings.
type Cleaner struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Phone     string
	Email     string
	IsActive  bool
	CreatedAt time.Time
}

// Lookup resolves the active cleaner linked to a property at a priority.
type Lookup interface {
	FindByPropertyAndPriority(ctx context.Context, tenantID, propertyID uuid.UUID, priority int) (Cleaner, error)
}

// Repository implements Lookup with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new cleaners repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements Lookup.
var _ Lookup = (*Repository)(nil)

// FindByPropertyAndPriority returns the active cleaner linked to the property
// at the given priority. Inactive cleaners are skipped.
func (r *Repository) FindByPropertyAndPriority(ctx context.Context, tenantID, propertyID uuid.UUID, priority int) (Cleaner, error) {
	query := `
		SELECT c.id, c.tenant_id, c.name, c.phone, c.email, c.is_active, c.created_at
		FROM cleaners c
		JOIN property_cleaners pc ON pc.cleaner_id = c.id
		WHERE c.tenant_id = $1 AND pc.property_id = $2 AND pc.priority = $3 AND c.is_active = true`

	var cl Cleaner
	err := r.pool.QueryRow(ctx, query, tenantID, propertyID, priority).Scan(
		&cl.ID, &cl.TenantID, &cl.Name, &cl.Phone, &cl.Email, &cl.IsActive, &cl.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cleaner{}, apperr.NotFound("cleaner not found")
		}
		return Cleaner{}, fmt.Errorf("find cleaner by property and priority: %w", err)
	}
	return cl, nil
}
