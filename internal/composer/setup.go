package composer

import (
	"followup_backend/internal/followups/ports"
	"followup_backend/platform/ai/moonshot"
	"followup_backend/platform/config"
	"followup_backend/platform/logger"
)

// NewFromConfig builds the composer router. The AI writer is only wired
// when a Moonshot key is configured; without it context-aware rules get
// the style default.
func NewFromConfig(cfg config.AIConfig, log *logger.Logger) ports.Composer {
	var ai ports.Composer
	if cfg.IsAIComposerEnabled() {
		writer, err := NewAIComposer(moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey()}))
		if err != nil {
			log.Error("failed to initialize AI composer, using style defaults", "error", err)
		} else {
			ai = writer
		}
	} else {
		log.Info("MOONSHOT_API_KEY not configured; AI composer disabled")
	}
	return NewRouter(NewTemplateComposer(), ai, log)
}
