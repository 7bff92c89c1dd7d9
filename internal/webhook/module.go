package webhook

import (
	"followup_backend/internal/events"
	apphttp "followup_backend/internal/http"
	"followup_backend/platform/logger"
	"followup_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	keys    KeyStore
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, region string, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	return newModule(repo, repo, eventBus, region, val, log)
}

func newModule(keys KeyStore, leads LeadLookup, eventBus events.Bus, region string, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(keys, leads, eventBus, region, log)
	return &Module{
		handler: NewHandler(service, val),
		keys:    keys,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Gateway callback (API key auth)
	inbound := ctx.V1.Group("/webhook")
	inbound.Use(APIKeyAuthMiddleware(m.keys))
	inbound.POST("/whatsapp", m.handler.HandleWhatsAppInbound)

	keys := ctx.Organization.Group("/webhook/keys")
	keys.POST("", m.handler.HandleCreateKey)
	keys.GET("", m.handler.HandleListKeys)
	keys.DELETE("/:keyId", m.handler.HandleRevokeKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
