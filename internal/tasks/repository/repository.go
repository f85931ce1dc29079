package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleanops_backend/internal/tasks/domain"
	"cleanops_backend/platform/apperr"
)

const taskNotFoundMessage = "task not found"

const taskColumns = `id, tenant_id, property_id, booking_id, scheduled_start_at, scheduled_end_at,
	status, assigned_cleaner_id, confirmed_at, completed_at,
	payment_status, payment_amount_cents, vendor_tag, created_at, updated_at`

// Repo implements the Repository interface with PostgreSQL.
//
// Mutations are compare-and-swap updates: the WHERE clause carries the
// expected current status, so a concurrent caller that already moved the task
// simply affects zero rows and receives a typed conflict error.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new task repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

// Create inserts a new task in the scheduled status.
func (r *Repo) Create(ctx context.Context, params CreateParams) (Task, error) {
	query := `
		INSERT INTO cleaning_tasks
			(tenant_id, property_id, booking_id, scheduled_start_at, scheduled_end_at, payment_amount_cents, vendor_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + taskColumns

	row := r.pool.QueryRow(ctx, query,
		params.TenantID, params.PropertyID, params.BookingID,
		params.ScheduledStartAt.UTC(), params.ScheduledEndAt.UTC(),
		params.PaymentAmountCents, params.VendorTag,
	)

	task, err := scanTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Task{}, apperr.Conflict("an active task already exists for this booking")
		}
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// GetByID retrieves a task by its ID.
func (r *Repo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (Task, error) {
	query := `SELECT ` + taskColumns + ` FROM cleaning_tasks WHERE id = $1 AND tenant_id = $2`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound(taskNotFoundMessage)
		}
		return Task{}, fmt.Errorf("get task by id: %w", err)
	}
	return task, nil
}

// GetActiveByBookingID retrieves the non-canceled task linked to a booking.
func (r *Repo) GetActiveByBookingID(ctx context.Context, tenantID uuid.UUID, bookingID string) (Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM cleaning_tasks
		WHERE tenant_id = $1 AND booking_id = $2 AND status <> 'canceled'`

	task, err := scanTask(r.pool.QueryRow(ctx, query, tenantID, bookingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound(taskNotFoundMessage)
		}
		return Task{}, fmt.Errorf("get task by booking id: %w", err)
	}
	return task, nil
}

// FindOpenByProperty retrieves the earliest scheduled or assigned task for a
// property, if any.
func (r *Repo) FindOpenByProperty(ctx context.Context, tenantID, propertyID uuid.UUID) (Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM cleaning_tasks
		WHERE tenant_id = $1 AND property_id = $2 AND status IN ('scheduled', 'assigned')
		ORDER BY scheduled_start_at ASC
		LIMIT 1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, tenantID, propertyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, apperr.NotFound(taskNotFoundMessage)
		}
		return Task{}, fmt.Errorf("find open task by property: %w", err)
	}
	return task, nil
}

// AssignCleaner moves a scheduled task to assigned and records the cleaner.
func (r *Repo) AssignCleaner(ctx context.Context, tenantID, id, cleanerID uuid.UUID) (Task, error) {
	query := `
		UPDATE cleaning_tasks
		SET status = 'assigned', assigned_cleaner_id = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'scheduled'
		RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, tenantID, cleanerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, r.conflictOrNotFound(ctx, tenantID, id, domain.StatusAssigned)
		}
		return Task{}, fmt.Errorf("assign cleaner: %w", err)
	}
	return task, nil
}

// Confirm stamps confirmed_at on an assigned task. The status is unchanged.
func (r *Repo) Confirm(ctx context.Context, tenantID, id uuid.UUID) (Task, error) {
	query := `
		UPDATE cleaning_tasks
		SET confirmed_at = now(), updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'assigned'
		RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, r.conflictOrNotFound(ctx, tenantID, id, domain.StatusAssigned)
		}
		return Task{}, fmt.Errorf("confirm task: %w", err)
	}
	return task, nil
}

// Transition performs a generic validated status change. Setting the status
// to completed also stamps completed_at.
func (r *Repo) Transition(ctx context.Context, tenantID, id uuid.UUID, from, to domain.Status) (Task, error) {
	if !domain.CanTransition(from, to) {
		return Task{}, invalidTransition(from, to)
	}

	query := `
		UPDATE cleaning_tasks
		SET status = $4,
		    completed_at = CASE WHEN $4 = 'completed' THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = $3
		RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, tenantID, string(from), string(to)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, r.conflictOrNotFound(ctx, tenantID, id, to)
		}
		return Task{}, fmt.Errorf("transition task: %w", err)
	}
	return task, nil
}

// Unassign moves an assigned task back to scheduled, clearing the cleaner and
// the confirmation stamp.
func (r *Repo) Unassign(ctx context.Context, tenantID, id uuid.UUID) (Task, error) {
	query := `
		UPDATE cleaning_tasks
		SET status = 'scheduled', assigned_cleaner_id = NULL, confirmed_at = NULL, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'assigned'
		RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, r.conflictOrNotFound(ctx, tenantID, id, domain.StatusScheduled)
		}
		return Task{}, fmt.Errorf("unassign task: %w", err)
	}
	return task, nil
}

// Reschedule updates the scheduled window while the task has not started.
func (r *Repo) Reschedule(ctx context.Context, tenantID, id uuid.UUID, newStart, newEnd time.Time) (Task, error) {
	query := `
		UPDATE cleaning_tasks
		SET scheduled_start_at = $3, scheduled_end_at = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status IN ('scheduled', 'assigned')
		RETURNING ` + taskColumns

	task, err := scanTask(r.pool.QueryRow(ctx, query, id, tenantID, newStart.UTC(), newEnd.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, r.conflictOrNotFound(ctx, tenantID, id, domain.StatusScheduled)
		}
		return Task{}, fmt.Errorf("reschedule task: %w", err)
	}
	return task, nil
}

// UpdatePaymentStatus moves the payment status, keyed on the expected prior value.
func (r *Repo) UpdatePaymentStatus(ctx context.Context, tenantID, id uuid.UUID, from, to domain.PaymentStatus) error {
	query := `
		UPDATE cleaning_tasks
		SET payment_status = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND payment_status = $3`

	result, err := r.pool.Exec(ctx, query, id, tenantID, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.Conflict(fmt.Sprintf("payment status is not %s", from))
	}
	return nil
}

// ListNoShowCandidates returns assigned, unconfirmed tasks past the cutoff,
// oldest first, across all tenants.
func (r *Repo) ListNoShowCandidates(ctx context.Context, cutoff time.Time, limit int) ([]Task, error) {
	return r.listUnconfirmedBefore(ctx, cutoff, limit, "list no-show candidates")
}

// ListOverdueUnconfirmed returns assigned, unconfirmed tasks whose scheduled
// start has passed, oldest first, across all tenants.
func (r *Repo) ListOverdueUnconfirmed(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	return r.listUnconfirmedBefore(ctx, now, limit, "list overdue unconfirmed")
}

func (r *Repo) listUnconfirmedBefore(ctx context.Context, cutoff time.Time, limit int, op string) ([]Task, error) {
	if limit < 1 {
		limit = 200
	}

	query := `SELECT ` + taskColumns + `
		FROM cleaning_tasks
		WHERE status = 'assigned' AND confirmed_at IS NULL AND scheduled_start_at <= $1
		ORDER BY scheduled_start_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var results []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		results = append(results, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return results, nil
}

// conflictOrNotFound distinguishes a missing task from a CAS miss after a
// conditional update affected zero rows.
func (r *Repo) conflictOrNotFound(ctx context.Context, tenantID, id uuid.UUID, to domain.Status) error {
	var current string
	err := r.pool.QueryRow(ctx,
		`SELECT status FROM cleaning_tasks WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(taskNotFoundMessage)
		}
		return fmt.Errorf("load current task status: %w", err)
	}
	return invalidTransition(domain.Status(current), to)
}

func invalidTransition(from, to domain.Status) error {
	return apperr.Conflict(fmt.Sprintf("invalid transition %s->%s", from, to)).
		WithDetails(map[string]string{"from": string(from), "to": string(to)})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var status, paymentStatus string
	err := row.Scan(
		&t.ID, &t.TenantID, &t.PropertyID, &t.BookingID,
		&t.ScheduledStartAt, &t.ScheduledEndAt,
		&status, &t.AssignedCleanerID, &t.ConfirmedAt, &t.CompletedAt,
		&paymentStatus, &t.PaymentAmountCents, &t.VendorTag,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return Task{}, err
	}
	t.Status = domain.Status(status)
	t.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return t, nil
}
