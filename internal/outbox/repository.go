package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cleanops_backend/platform/apperr"
)

const entryColumns = `id, tenant_id, type, payload, idempotency_key, status, attempts, last_error, created_at, next_attempt_at`

// Repository implements Queue with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new outbox repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements Queue.
var _ Queue = (*Repository)(nil)

// Enqueue durably writes a pending entry. When an entry with the same
// idempotency key already exists, the existing entry is returned and no new
// row is created.
func (r *Repository) Enqueue(ctx context.Context, params EnqueueParams) (Entry, error) {
	if params.TenantID == uuid.Nil {
		return Entry{}, apperr.Validation("tenantId is required")
	}
	if params.Type == "" {
		return Entry{}, apperr.Validation("type is required")
	}
	if params.IdempotencyKey == "" {
		return Entry{}, apperr.Validation("idempotencyKey is required")
	}

	payloadBytes, err := json.Marshal(params.Payload)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox_entries (tenant_id, type, payload, idempotency_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + entryColumns

	entry, err := scanEntry(r.pool.QueryRow(ctx, query,
		params.TenantID, params.Type, payloadBytes, params.IdempotencyKey,
	))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("enqueue outbox entry: %w", err)
	}

	// Conflict: report the entry that already carries this key.
	entry, err = r.getByIdempotencyKey(ctx, params.IdempotencyKey)
	if err != nil {
		return Entry{}, fmt.Errorf("load existing outbox entry: %w", err)
	}
	return entry, nil
}

// ClaimPending returns due pending entries, oldest first, and pushes their
// next_attempt_at past the redeliver window so concurrent dispatchers do not
// hand out the same entry twice.
func (r *Repository) ClaimPending(ctx context.Context, limit int, redeliverAfter time.Duration) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	if redeliverAfter <= 0 {
		redeliverAfter = 2 * time.Minute
	}

	query := `
		UPDATE outbox_entries
		SET next_attempt_at = now() + $2
		WHERE id IN (
			SELECT id FROM outbox_entries
			WHERE status = 'pending' AND next_attempt_at <= now()
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + entryColumns

	rows, err := r.pool.Query(ctx, query, limit, redeliverAfter)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox entries: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	// RETURNING does not preserve the inner ordering.
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE outbox_entries
		 SET status = 'sent', last_error = NULL
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("outbox entry not found")
	}
	return nil
}

// MarkFailed records a failed delivery attempt and reschedules the entry.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE outbox_entries
		 SET status = 'pending', attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		 WHERE id = $1`,
		id, lastError, nextAttemptAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("outbox entry not found")
	}
	return nil
}

// MarkDead parks an entry that exhausted its delivery attempts.
func (r *Repository) MarkDead(ctx context.Context, id uuid.UUID, lastError string) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE outbox_entries
		 SET status = 'failed', attempts = attempts + 1, last_error = $2
		 WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return fmt.Errorf("mark outbox entry dead: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("outbox entry not found")
	}
	return nil
}

// GetByID retrieves a single entry for the delivery worker.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox_entries WHERE id = $1`
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, apperr.NotFound("outbox entry not found")
		}
		return Entry{}, fmt.Errorf("get outbox entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) getByIdempotencyKey(ctx context.Context, key string) (Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM outbox_entries WHERE idempotency_key = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, key))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var status string
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Type, &e.Payload, &e.IdempotencyKey,
		&status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.NextAttemptAt,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	return e, nil
}
