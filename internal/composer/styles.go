package composer

import (
	"context"
	"strings"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"
)

// styleMessages are the pt-BR defaults, keyed by style. {{name}} becomes
// ", <first name>" or nothing when the name is unknown.
var styleMessages = map[domain.Style]string{
	domain.StyleDirect:    "Oi{{name}}! Passando para saber se podemos seguir com a sua proposta. Posso te ajudar com mais alguma informação?",
	domain.StyleValue:     "Oi{{name}}! Lembrei de você: muitos clientes no seu momento conseguiram resultados rápidos com a nossa solução. Quer que eu te mostre como funcionaria no seu caso?",
	domain.StyleCuriosity: "Oi{{name}}, tenho uma novidade que acho que vai te interessar. Posso te contar rapidinho?",
	domain.StyleBreakup:   "Oi{{name}}, como não tive retorno, vou encerrar seu atendimento por aqui. Se ainda fizer sentido, é só me responder que retomamos de onde paramos.",
}

// StyleComposer writes a fixed message per style.
type StyleComposer struct{}

// NewStyleComposer creates the default composer.
func NewStyleComposer() *StyleComposer {
	return &StyleComposer{}
}

// Compose implements ports.Composer.
func (StyleComposer) Compose(_ context.Context, req ports.ComposeRequest) (ports.Message, error) {
	return ports.Message{
		Recipient: req.Lead.Phone,
		Body:      StyleMessage(req.Send.Style, req.Lead.Name),
		Source:    ports.SourceDefault,
	}, nil
}

// StyleMessage returns the default text for a style addressed to name.
func StyleMessage(style domain.Style, name string) string {
	text, ok := styleMessages[style]
	if !ok {
		text = styleMessages[domain.StyleDirect]
	}
	greeting := ""
	if first := firstName(name); first != "" {
		greeting = ", " + first
	}
	return strings.ReplaceAll(text, "{{name}}", greeting)
}

var _ ports.Composer = StyleComposer{}
