package notify

import (
	"encoding/json"
	"testing"

	"cleanops_backend/internal/outbox"
)

func TestRenderBodyLeadsWithMessage(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{
		"message":    "the backup cleaner was assigned",
		"taskId":     "t-1",
		"propertyId": "p-1",
	})
	body := renderBody(outbox.Entry{Payload: payload})

	want := "the backup cleaner was assigned\n\npropertyId: p-1\ntaskId: t-1\n"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestRenderBodyIsDeterministic(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{
		"cleanerId": "c-1",
		"bookingId": "b-1",
		"taskId":    "t-1",
		"email":     "ana@example.com",
	})
	entry := outbox.Entry{Payload: payload}

	first := renderBody(entry)
	for i := 0; i < 20; i++ {
		if got := renderBody(entry); got != first {
			t.Fatalf("body changed between renders:\n%q\n%q", first, got)
		}
	}
}

func TestRenderBodyFallsBackOnBadPayload(t *testing.T) {
	entry := outbox.Entry{Payload: []byte("not json")}
	if got := renderBody(entry); got != "not json" {
		t.Errorf("body = %q, want raw payload", got)
	}
}
