// Package ledger provides the append-only record of domain events. Records
// are never mutated or deleted; they serve audit queries and "has step X
// already run for entity Y" checks.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is a single append-only domain fact.
type Record struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Type       string
	Payload    json.RawMessage
	EntityType *string
	EntityID   *string
	RequestID  *string
	Span       *string
	DurationMs *int64
	CreatedAt  time.Time
}

// AppendParams contains parameters for appending a record.
type AppendParams struct {
	TenantID   uuid.UUID
	Type       string
	Payload    any
	EntityType string
	EntityID   string
	RequestID  string
	Span       string
	DurationMs int64
}

// Ledger is the append/query contract.
type Ledger interface {
	Append(ctx context.Context, params AppendParams) (Record, error)
	FindByEntityAndTypePrefix(ctx context.Context, entityID, typePrefix string) ([]Record, error)
}

// Repository implements Ledger with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new ledger repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements Ledger.
var _ Ledger = (*Repository)(nil)

// Append inserts a new record.
func (r *Repository) Append(ctx context.Context, params AppendParams) (Record, error) {
	payloadBytes, err := json.Marshal(params.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal event payload: %w", err)
	}

	query := `
		INSERT INTO event_records (tenant_id, type, payload, entity_type, entity_id, request_id, span, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, tenant_id, type, payload, entity_type, entity_id, request_id, span, duration_ms, created_at`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query,
		params.TenantID, params.Type, payloadBytes,
		nullable(params.EntityType), nullable(params.EntityID),
		nullable(params.RequestID), nullable(params.Span),
		nullableInt(params.DurationMs),
	))
	if err != nil {
		return Record{}, fmt.Errorf("append event record: %w", err)
	}
	return rec, nil
}

// FindByEntityAndTypePrefix returns all records for an entity whose type
// starts with the given prefix, oldest first.
func (r *Repository) FindByEntityAndTypePrefix(ctx context.Context, entityID, typePrefix string) ([]Record, error) {
	query := `
		SELECT id, tenant_id, type, payload, entity_type, entity_id, request_id, span, duration_ms, created_at
		FROM event_records
		WHERE entity_id = $1 AND type LIKE $2 || '%'
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, entityID, typePrefix)
	if err != nil {
		return nil, fmt.Errorf("find event records: %w", err)
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event record: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event records: %w", err)
	}
	return results, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Type, &rec.Payload,
		&rec.EntityType, &rec.EntityID, &rec.RequestID, &rec.Span,
		&rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
