package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"cleanops_backend/internal/api"
	"cleanops_backend/internal/cleaners"
	"cleanops_backend/internal/emergency"
	"cleanops_backend/internal/ledger"
	"cleanops_backend/internal/payments"
	"cleanops_backend/internal/reconciler"
	"cleanops_backend/internal/tasks/service"
	"cleanops_backend/internal/testsupport"
	"cleanops_backend/platform/config"
	"cleanops_backend/platform/logger"
	"cleanops_backend/platform/validator"
)

type apiFixture struct {
	router   http.Handler
	store    *testsupport.TaskStore
	dir      *testsupport.CleanerDirectory
	tenantID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := testsupport.NewTaskStore()
	dir := testsupport.NewCleanerDirectory()
	incidentLog := testsupport.NewIncidentLog()
	queue := testsupport.NewOutbox()
	journal := testsupport.NewLedger()
	bus := testsupport.NewCaptureBus()
	log := logger.New("test")
	recorder := ledger.NewRecorder(journal, log)

	pay := payments.New(store, queue, recorder)
	tasks := service.New(store, dir, queue, recorder, pay, bus, log)
	rec := reconciler.New(store, queue, recorder, bus, 90*time.Minute, log)
	emg := emergency.New(store, incidentLog, queue, recorder, 90*time.Minute)

	handler := api.NewHandler(tasks, store, rec, emg, validator.New())
	cfg := &config.Config{CORSAllowAll: true}

	return &apiFixture{
		router:   api.NewRouter(cfg, handler, nil, log),
		store:    store,
		dir:      dir,
		tenantID: uuid.New(),
	}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", f.tenantID.String())

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestBookingWebhookCreatesTask(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.request(t, http.MethodPost, "/api/v1/bookings/events", map[string]any{
		"bookingId":  "bk-2001",
		"propertyId": uuid.New(),
		"status":     "confirmed",
		"checkoutAt": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp api.BookingEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Action != "created" || resp.TaskID == nil {
		t.Errorf("response = %+v, want created with task id", resp)
	}
}

func TestBookingWebhookRejectsUnknownStatus(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.request(t, http.MethodPost, "/api/v1/bookings/events", map[string]any{
		"bookingId":  "bk-2002",
		"propertyId": uuid.New(),
		"status":     "waitlisted",
		"checkoutAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	propertyID := uuid.New()
	f.dir.Link(propertyID, cleaners.PriorityPrimary,
		cleaners.Cleaner{ID: uuid.New(), TenantID: f.tenantID, Name: "Ana", IsActive: true})

	rr := f.request(t, http.MethodPost, "/api/v1/bookings/events", map[string]any{
		"bookingId":  "bk-2003",
		"propertyId": propertyID,
		"status":     "confirmed",
		"checkoutAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("webhook status = %d: %s", rr.Code, rr.Body.String())
	}
	var created api.BookingEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	base := fmt.Sprintf("/api/v1/tasks/%s", created.TaskID)
	for _, step := range []string{"dispatch", "accept", "checkin", "complete"} {
		rr := f.request(t, http.MethodPost, base+"/"+step, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200: %s", step, rr.Code, rr.Body.String())
		}
	}

	rr = f.request(t, http.MethodGet, base, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var task api.TaskResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Status != "completed" || task.PaymentStatus != "requested" {
		t.Errorf("task = %+v, want completed with payment requested", task)
	}
}

func TestDispatchConflictMapsTo409(t *testing.T) {
	f := newAPIFixture(t)
	propertyID := uuid.New()
	f.dir.Link(propertyID, cleaners.PriorityPrimary,
		cleaners.Cleaner{ID: uuid.New(), TenantID: f.tenantID, Name: "Ana", IsActive: true})

	rr := f.request(t, http.MethodPost, "/api/v1/bookings/events", map[string]any{
		"bookingId":  "bk-2004",
		"propertyId": propertyID,
		"status":     "confirmed",
		"checkoutAt": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	var created api.BookingEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	path := fmt.Sprintf("/api/v1/tasks/%s/dispatch", created.TaskID)
	if rr := f.request(t, http.MethodPost, path, nil); rr.Code != http.StatusOK {
		t.Fatalf("first dispatch status = %d", rr.Code)
	}
	if rr := f.request(t, http.MethodPost, path, nil); rr.Code != http.StatusConflict {
		t.Errorf("second dispatch status = %d, want 409", rr.Code)
	}
}

func TestUnknownTaskMapsTo404(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.request(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/dispatch", uuid.New()), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestMissingTenantHeaderRejected(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/tasks/%s", uuid.New()), nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestEmergencyRequestEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.request(t, http.MethodPost, "/api/v1/emergency-requests", map[string]any{
		"propertyId": uuid.New(),
		"neededBy":   time.Now().Add(6 * time.Hour).Format(time.RFC3339),
		"reason":     "guest arriving tonight, cleaner unreachable",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var resp api.EmergencyRequestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IncidentID == uuid.Nil || resp.OutboxID == uuid.Nil {
		t.Errorf("response = %+v, want incident and outbox ids", resp)
	}
}
