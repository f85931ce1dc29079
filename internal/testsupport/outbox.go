package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/outbox"
	"cleanops_backend/platform/apperr"
)

// Outbox is an in-memory outbox queue. Enqueue collapses duplicate
// idempotency keys into the existing entry, like the SQL implementation.
type Outbox struct {
	mu      sync.Mutex
	entries map[uuid.UUID]outbox.Entry
	byKey   map[string]uuid.UUID

	// FailEnqueue makes every Enqueue call return an error when set.
	FailEnqueue error
}

// NewOutbox creates an empty in-memory outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		entries: make(map[uuid.UUID]outbox.Entry),
		byKey:   make(map[string]uuid.UUID),
	}
}

var _ outbox.Queue = (*Outbox)(nil)

func (o *Outbox) Enqueue(_ context.Context, params outbox.EnqueueParams) (outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.FailEnqueue != nil {
		return outbox.Entry{}, o.FailEnqueue
	}
	if id, ok := o.byKey[params.IdempotencyKey]; ok {
		return o.entries[id], nil
	}

	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return outbox.Entry{}, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	entry := outbox.Entry{
		ID:             uuid.New(),
		TenantID:       params.TenantID,
		Type:           params.Type,
		Payload:        payload,
		IdempotencyKey: params.IdempotencyKey,
		Status:         outbox.StatusPending,
		CreatedAt:      now,
		NextAttemptAt:  now,
	}
	o.entries[entry.ID] = entry
	o.byKey[entry.IdempotencyKey] = entry.ID
	return entry, nil
}

func (o *Outbox) ClaimPending(_ context.Context, limit int, redeliverAfter time.Duration) ([]outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now().UTC()
	var results []outbox.Entry
	for _, entry := range o.entries {
		if entry.Status == outbox.StatusPending && !entry.NextAttemptAt.After(now) {
			results = append(results, entry)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i, entry := range results {
		entry.NextAttemptAt = now.Add(redeliverAfter)
		o.entries[entry.ID] = entry
		results[i] = entry
	}
	return results, nil
}

func (o *Outbox) GetByID(_ context.Context, id uuid.UUID) (outbox.Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[id]
	if !ok {
		return outbox.Entry{}, apperr.NotFound("outbox entry not found")
	}
	return entry, nil
}

func (o *Outbox) MarkSent(_ context.Context, id uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[id]
	if !ok {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	entry.Status = outbox.StatusSent
	entry.Attempts++
	o.entries[id] = entry
	return nil
}

func (o *Outbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string, nextAttemptAt time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[id]
	if !ok {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	entry.Attempts++
	entry.LastError = &lastError
	entry.NextAttemptAt = nextAttemptAt
	o.entries[id] = entry
	return nil
}

func (o *Outbox) MarkDead(_ context.Context, id uuid.UUID, lastError string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[id]
	if !ok {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	entry.Status = outbox.StatusFailed
	entry.Attempts++
	entry.LastError = &lastError
	o.entries[id] = entry
	return nil
}

// Entries returns all stored entries, oldest first.
func (o *Outbox) Entries() []outbox.Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	results := make([]outbox.Entry, 0, len(o.entries))
	for _, entry := range o.entries {
		results = append(results, entry)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results
}

// EntriesOfType returns stored entries of the given type, oldest first.
func (o *Outbox) EntriesOfType(entryType string) []outbox.Entry {
	var results []outbox.Entry
	for _, entry := range o.Entries() {
		if entry.Type == entryType {
			results = append(results, entry)
		}
	}
	return results
}
