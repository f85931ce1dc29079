// Package api exposes the HTTP surface: the booking webhook, the task
// progression endpoints used by cleaner-facing clients, and emergency
// requests.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cleanops_backend/internal/emergency"
	"cleanops_backend/internal/reconciler"
	"cleanops_backend/internal/tasks/repository"
	"cleanops_backend/internal/tasks/service"
	"cleanops_backend/platform/httpkit"
	"cleanops_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidTaskID    = "invalid task id"
	msgMissingTenant    = "missing or invalid X-Tenant-ID header"
)

// Handler handles HTTP requests for the coordination API.
type Handler struct {
	tasks      *service.Service
	reader     repository.TaskReader
	reconciler *reconciler.Reconciler
	emergency  *emergency.Service
	val        *validator.Validator
}

// NewHandler creates the API handler.
func NewHandler(
	tasks *service.Service,
	reader repository.TaskReader,
	rec *reconciler.Reconciler,
	emg *emergency.Service,
	val *validator.Validator,
) *Handler {
	return &Handler{
		tasks:      tasks,
		reader:     reader,
		reconciler: rec,
		emergency:  emg,
		val:        val,
	}
}

// tenantID extracts and validates the tenant header. Writes the error
// response itself and reports ok=false when the header is unusable.
func tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetHeader("X-Tenant-ID"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgMissingTenant, nil)
		return uuid.Nil, false
	}
	return id, true
}

func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidTaskID, nil)
		return uuid.Nil, false
	}
	return id, true
}

// HandleBookingEvent ingests a booking change from the reservation system.
// POST /api/v1/bookings/events
func (h *Handler) HandleBookingEvent(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req BookingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.reconciler.HandleBookingEvent(c.Request.Context(), reconciler.BookingEvent{
		TenantID:                tenant,
		BookingID:               req.BookingID,
		PropertyID:              req.PropertyID,
		Status:                  req.Status,
		CheckoutAt:              req.CheckoutAt,
		CleaningDurationMinutes: req.CleaningDurationMinutes,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, BookingEventResponse{Action: result.Action, TaskID: result.TaskID})
}

// HandleGetTask retrieves a task.
// GET /api/v1/tasks/:id
func (h *Handler) HandleGetTask(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.reader.GetByID(c.Request.Context(), tenant, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toTaskResponse(task))
}

// HandleDispatchTask assigns the property's primary cleaner.
// POST /api/v1/tasks/:id/dispatch
func (h *Handler) HandleDispatchTask(c *gin.Context) {
	h.progress(c, h.tasks.DispatchTask)
}

// HandleAcceptTask records the cleaner's confirmation.
// POST /api/v1/tasks/:id/accept
func (h *Handler) HandleAcceptTask(c *gin.Context) {
	h.progress(c, h.tasks.AcceptTask)
}

// HandleCheckInTask records the cleaner's arrival.
// POST /api/v1/tasks/:id/checkin
func (h *Handler) HandleCheckInTask(c *gin.Context) {
	h.progress(c, h.tasks.CheckInTask)
}

// HandleCompleteTask finishes the cleaning and triggers payment.
// POST /api/v1/tasks/:id/complete
func (h *Handler) HandleCompleteTask(c *gin.Context) {
	h.progress(c, h.tasks.CompleteTask)
}

func (h *Handler) progress(c *gin.Context, op func(ctx context.Context, tenantID, taskID uuid.UUID) (repository.Task, error)) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := op(c.Request.Context(), tenant, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toTaskResponse(task))
}

// HandleEmergencyRequest opens an emergency marketplace request.
// POST /api/v1/emergency-requests
func (h *Handler) HandleEmergencyRequest(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var req EmergencyRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.emergency.Request(c.Request.Context(), tenant, req.PropertyID, req.NeededBy, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, EmergencyRequestResponse{
		IncidentID: result.IncidentID,
		OutboxID:   result.OutboxID,
	})
}
