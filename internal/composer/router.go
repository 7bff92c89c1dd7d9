package composer

import (
	"context"
	"strings"

	"followup_backend/internal/followups/ports"
	"followup_backend/platform/logger"
)

// Router picks a composer per request: the rule's template when set, the AI
// writer when the rule asks for conversation context, style defaults
// otherwise. AI failures fall back to the style default.
type Router struct {
	template ports.Composer
	ai       ports.Composer
	fallback ports.Composer
	log      *logger.Logger
}

// NewRouter creates a router. ai may be nil when no LLM is configured.
func NewRouter(template, ai ports.Composer, log *logger.Logger) *Router {
	return &Router{
		template: template,
		ai:       ai,
		fallback: NewStyleComposer(),
		log:      log,
	}
}

// Compose implements ports.Composer.
func (r *Router) Compose(ctx context.Context, req ports.ComposeRequest) (ports.Message, error) {
	if strings.TrimSpace(req.Send.Template) != "" || strings.TrimSpace(req.Rule.Behavior().MessageTemplate) != "" {
		return r.template.Compose(ctx, req)
	}

	if r.ai != nil && req.Rule.Behavior().UseLastContext {
		msg, err := r.ai.Compose(ctx, req)
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil {
			return ports.Message{}, err
		}
		r.log.Warn("ai composer failed, using style default",
			"leadId", req.Lead.ID, "ruleId", req.Rule.ID(), "error", err)
	}

	return r.fallback.Compose(ctx, req)
}

var _ ports.Composer = (*Router)(nil)
