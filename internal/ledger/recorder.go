package ledger

import (
	"context"

	"cleanops_backend/platform/logger"
)

// Recorder is the fire-and-forget facade over the ledger. Append failures
// are logged and swallowed: audit bookkeeping must never become a point of
// failure for the business operation that triggered it.
type Recorder struct {
	ledger Ledger
	log    *logger.Logger
}

// NewRecorder creates a Recorder over the given ledger.
func NewRecorder(l Ledger, log *logger.Logger) *Recorder {
	return &Recorder{ledger: l, log: log}
}

// Record appends a record, swallowing any error.
func (r *Recorder) Record(ctx context.Context, params AppendParams) {
	if r == nil || r.ledger == nil {
		return
	}
	if _, err := r.ledger.Append(ctx, params); err != nil {
		r.log.LedgerWriteFailed(params.Type, err)
	}
}
