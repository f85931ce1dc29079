package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/ledger"
)

// Ledger is an in-memory append-only event ledger.
type Ledger struct {
	mu      sync.Mutex
	records []ledger.Record

	// FailAppend makes every Append call return an error when set.
	FailAppend error
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

var _ ledger.Ledger = (*Ledger)(nil)

func (l *Ledger) Append(_ context.Context, params ledger.AppendParams) (ledger.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailAppend != nil {
		return ledger.Record{}, l.FailAppend
	}

	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("marshal payload: %w", err)
	}

	rec := ledger.Record{
		ID:        uuid.New(),
		TenantID:  params.TenantID,
		Type:      params.Type,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if params.EntityType != "" {
		entityType := params.EntityType
		rec.EntityType = &entityType
	}
	if params.EntityID != "" {
		entityID := params.EntityID
		rec.EntityID = &entityID
	}
	l.records = append(l.records, rec)
	return rec, nil
}

func (l *Ledger) FindByEntityAndTypePrefix(_ context.Context, entityID, typePrefix string) ([]ledger.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []ledger.Record
	for _, rec := range l.records {
		if rec.EntityID != nil && *rec.EntityID == entityID && strings.HasPrefix(rec.Type, typePrefix) {
			results = append(results, rec)
		}
	}
	return results, nil
}

// Records returns all stored records in append order.
func (l *Ledger) Records() []ledger.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.Record, len(l.records))
	copy(out, l.records)
	return out
}

// TypesFor returns the record types stored for an entity, in append order.
func (l *Ledger) TypesFor(entityID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var types []string
	for _, rec := range l.records {
		if rec.EntityID != nil && *rec.EntityID == entityID {
			types = append(types, rec.Type)
		}
	}
	return types
}
