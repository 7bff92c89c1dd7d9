package webhook

import (
	"net/http"

	"followup_backend/platform/httpkit"
	"followup_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errNoOrgContext   = "no organization context"
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errInvalidKeyID   = "invalid key ID"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// HandleWhatsAppInbound processes a message received by the gateway.
// POST /api/v1/webhook/whatsapp
// Authenticated via X-Webhook-API-Key header (set by middleware).
func (h *Handler) HandleWhatsAppInbound(c *gin.Context) {
	orgID, ok := getWebhookOrgID(c)
	if !ok {
		return
	}

	var msg InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}

	result, err := h.service.ProcessInbound(c.Request.Context(), orgID, msg)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateKeyRequest is the request body for creating a new API key.
type CreateKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// HandleCreateKey issues a key.
// POST /api/v1/organizations/:orgId/webhook/keys
func (h *Handler) HandleCreateKey(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	resp, err := h.service.CreateKey(c.Request.Context(), orgID, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// HandleListKeys lists the organization's keys.
// GET /api/v1/organizations/:orgId/webhook/keys
func (h *Handler) HandleListKeys(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}

	keys, err := h.service.ListKeys(c.Request.Context(), orgID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": keys, "total": len(keys)})
}

// HandleRevokeKey deactivates a key.
// DELETE /api/v1/organizations/:orgId/webhook/keys/:keyId
func (h *Handler) HandleRevokeKey(c *gin.Context) {
	orgID, ok := httpkit.MustGetOrganizationID(c)
	if !ok {
		return
	}
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidKeyID, nil)
		return
	}

	if httpkit.HandleError(c, h.service.RevokeKey(c.Request.Context(), orgID, keyID)) {
		return
	}
	httpkit.NoContent(c)
}

func getWebhookOrgID(c *gin.Context) (uuid.UUID, bool) {
	orgID, ok := c.Get(ctxOrgID)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, errNoOrgContext, nil)
		return uuid.UUID{}, false
	}
	return orgID.(uuid.UUID), true
}
