// Package http provides HTTP server infrastructure including the Module interface
// that all domain modules must implement for route registration.
package http

import (
	"followup_backend/internal/events"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the shared route groups.
	RegisterRoutes(ctx *RouterContext)
}

// EventSubscriber is implemented by modules that react to domain events.
type EventSubscriber interface {
	RegisterHandlers(bus *events.InMemoryBus)
}

// SubscribeAll lets every module that is an EventSubscriber register its
// handlers on bus. It returns the names of the subscribed modules.
func SubscribeAll(bus *events.InMemoryBus, modules []Module) []string {
	var names []string
	for _, m := range modules {
		if s, ok := m.(EventSubscriber); ok {
			s.RegisterHandlers(bus)
			names = append(names, m.Name())
		}
	}
	return names
}

// RouterContext provides shared route groups for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group.
	V1 *gin.RouterGroup
	// Organization is /api/v1/organizations/:orgId with the tenant resolved.
	Organization *gin.RouterGroup
}
