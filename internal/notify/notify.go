// Package notify delivers outbox entries to the outside world. The delivery
// worker hands each claimed entry to a Notifier; failures bubble up so the
// worker can reschedule the entry.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"cleanops_backend/internal/outbox"
	"cleanops_backend/platform/logger"
)

// Notifier delivers a single outbox entry.
type Notifier interface {
	Deliver(ctx context.Context, entry outbox.Entry) error
}

// LogNotifier writes deliveries to the log instead of an external channel.
// It is the default when email delivery is disabled, which keeps the whole
// pipeline exercisable in development.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Deliver(_ context.Context, entry outbox.Entry) error {
	n.log.Info("notification_delivered",
		"type", entry.Type,
		"tenant_id", entry.TenantID.String(),
		"payload", string(entry.Payload),
	)
	return nil
}

// subjectFor maps an entry type to an email subject line.
func subjectFor(entryType string) string {
	switch entryType {
	case outbox.TypeNotifyCleaner:
		return "Cleaning assignment update"
	case outbox.TypeNotifyHost:
		return "Action needed for your property cleaning"
	case outbox.TypeNotifyMarketplace:
		return "Emergency cleaning request"
	case outbox.TypePaymentRequest:
		return "Payment request for completed cleaning"
	default:
		return "CleanOps notification"
	}
}

// renderBody produces a plain-text body from the entry payload. The payload
// message field, when present, leads the body; the remaining fields follow in
// key order so repeated deliveries of the same entry render identically.
func renderBody(entry outbox.Entry) string {
	var fields map[string]any
	if err := json.Unmarshal(entry.Payload, &fields); err != nil {
		return string(entry.Payload)
	}

	body := ""
	if msg, ok := fields["message"].(string); ok && msg != "" {
		body = msg + "\n\n"
		delete(fields, "message")
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		body += fmt.Sprintf("%s: %v\n", key, fields[key])
	}
	return body
}
