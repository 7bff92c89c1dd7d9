package handler

import (
	"net/http"

	"followup_backend/internal/followups/service"
	"followup_backend/internal/followups/transport"
	"followup_backend/platform/httpkit"
	"followup_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for follow-up rules and passes.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid follow-up rule ID"
	msgInvalidLeadID    = "invalid lead ID"
)

// New creates a new follow-up handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// List retrieves all rules of the organization.
// GET /api/v1/organizations/:orgId/followup-rules
func (h *Handler) List(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	result, err := h.svc.List(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Get retrieves a rule by ID.
// GET /api/v1/organizations/:orgId/followup-rules/:id
func (h *Handler) Get(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", msgInvalidID)
	if !ok {
		return
	}

	result, err := h.svc.Get(c.Request.Context(), orgID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Create creates a rule.
// POST /api/v1/organizations/:orgId/followup-rules
func (h *Handler) Create(c *gin.Context) {
	var req transport.RuleRequest
	if !h.bind(c, &req) {
		return
	}
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), orgID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, result)
}

// Update replaces a rule.
// PUT /api/v1/organizations/:orgId/followup-rules/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", msgInvalidID)
	if !ok {
		return
	}
	var req transport.RuleRequest
	if !h.bind(c, &req) {
		return
	}
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	result, err := h.svc.Update(c.Request.Context(), orgID, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Toggle flips the active flag of a rule.
// PATCH /api/v1/organizations/:orgId/followup-rules/:id/toggle
func (h *Handler) Toggle(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", msgInvalidID)
	if !ok {
		return
	}

	result, err := h.svc.Toggle(c.Request.Context(), orgID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Delete removes a rule.
// DELETE /api/v1/organizations/:orgId/followup-rules/:id
func (h *Handler) Delete(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", msgInvalidID)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), orgID, id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// PreviewSendTime shows when a follow-up would be sent under a schedule.
// POST /api/v1/organizations/:orgId/followup-rules/preview-send-time
func (h *Handler) PreviewSendTime(c *gin.Context) {
	var req transport.PreviewSendTimeRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.PreviewSendTime(req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Run executes a pass synchronously and returns its report.
// POST /api/v1/organizations/:orgId/followups/run
func (h *Handler) Run(c *gin.Context) {
	var req transport.RunRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	result, err := h.svc.Run(c.Request.Context(), orgID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// IngestEvents queues a pass carrying event signals.
// POST /api/v1/organizations/:orgId/followups/events
func (h *Handler) IngestEvents(c *gin.Context) {
	var req transport.EventsRequest
	if !h.bind(c, &req) {
		return
	}
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	result, err := h.svc.IngestEvents(c.Request.Context(), orgID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, result)
}

// MarkReplied records an inbound reply and resets the lead's counters.
// POST /api/v1/organizations/:orgId/leads/:leadId/replied
func (h *Handler) MarkReplied(c *gin.Context) {
	leadID, ok := parseID(c, "leadId", msgInvalidLeadID)
	if !ok {
		return
	}
	var req transport.LeadRepliedRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	if err := h.svc.MarkReplied(c.Request.Context(), orgID, leadID, req); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

// ResetCounter clears one lead/rule counter.
// DELETE /api/v1/organizations/:orgId/leads/:leadId/followup-counters/:ruleId
func (h *Handler) ResetCounter(c *gin.Context) {
	leadID, ok := parseID(c, "leadId", msgInvalidLeadID)
	if !ok {
		return
	}
	ruleID, ok := parseID(c, "ruleId", msgInvalidID)
	if !ok {
		return
	}
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	if err := h.svc.ResetCounter(c.Request.Context(), orgID, leadID, ruleID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, message, nil)
		return uuid.UUID{}, false
	}
	return id, true
}
