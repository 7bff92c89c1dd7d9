package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	aiAppName      = "followup_writer"
	maxMessageLen  = 600
	maxPromptTurns = 12
)

var styleBriefs = map[domain.Style]string{
	domain.StyleDirect:    "direto e objetivo: pergunte se o lead quer seguir em frente",
	domain.StyleValue:     "focado em valor: lembre um benefício concreto ligado ao que o lead falou",
	domain.StyleCuriosity: "gerando curiosidade: mencione uma novidade sem entregar tudo",
	domain.StyleBreakup:   "mensagem de encerramento educada: avise que vai parar de insistir e deixe a porta aberta",
}

const writerInstruction = `Você escreve mensagens curtas de follow-up de vendas para WhatsApp em português do Brasil.
Regras:
- no máximo 3 frases, tom humano e cordial, sem emojis em excesso;
- nunca invente preços, prazos ou promessas que não estejam na conversa;
- responda apenas com o texto da mensagem, sem aspas e sem comentários.`

// AIComposer writes follow-ups with an LLM agent, using recent conversation
// as context.
type AIComposer struct {
	runner         *runner.Runner
	sessionService session.Service
}

// NewAIComposer builds the writer agent on top of llm.
func NewAIComposer(llm model.LLM) (*AIComposer, error) {
	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "FollowupWriter",
		Model:       llm,
		Description: "Writes short sales follow-up messages in Brazilian Portuguese.",
		Instruction: writerInstruction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create followup writer agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        aiAppName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create followup writer runner: %w", err)
	}

	return &AIComposer{runner: r, sessionService: sessionService}, nil
}

// Compose implements ports.Composer.
func (c *AIComposer) Compose(ctx context.Context, req ports.ComposeRequest) (ports.Message, error) {
	userID := "lead-" + req.Lead.ID.String()
	sessionID := uuid.NewString()

	if _, err := c.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   aiAppName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return ports.Message{}, fmt.Errorf("failed to create writer session: %w", err)
	}
	defer func() {
		_ = c.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   aiAppName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: BuildPrompt(req)}},
	}

	var out strings.Builder
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}
	for event, err := range c.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return ports.Message{}, fmt.Errorf("followup writer run failed: %w", err)
		}
		if event.Content == nil || event.Content.Role == "user" {
			continue
		}
		for _, part := range event.Content.Parts {
			out.WriteString(part.Text)
		}
	}

	body := cleanGenerated(out.String())
	if body == "" {
		return ports.Message{}, ErrEmptyMessage
	}
	return ports.Message{Recipient: req.Lead.Phone, Body: body, Source: ports.SourceAI}, nil
}

// BuildPrompt renders the per-lead request for the writer agent.
func BuildPrompt(req ports.ComposeRequest) string {
	var b strings.Builder
	brief, ok := styleBriefs[req.Send.Style]
	if !ok {
		brief = styleBriefs[domain.StyleDirect]
	}

	fmt.Fprintf(&b, "Estilo: %s.\n", brief)
	if name := firstName(req.Lead.Name); name != "" {
		fmt.Fprintf(&b, "Nome do lead: %s.\n", name)
	}
	if req.Lead.Stage != "" {
		fmt.Fprintf(&b, "Etapa do funil: %s.\n", req.Lead.Stage)
	}
	if req.Lead.Origin != "" {
		fmt.Fprintf(&b, "Origem: %s.\n", req.Lead.Origin)
	}

	messages := req.Context.Messages
	if len(messages) > maxPromptTurns {
		messages = messages[len(messages)-maxPromptTurns:]
	}
	if len(messages) == 0 {
		b.WriteString("Não há conversa recente; escreva uma mensagem de retomada genérica.\n")
	} else {
		fmt.Fprintf(&b, "Conversa dos últimos %d dias (mais antiga primeiro):\n", req.Context.LookbackDays)
		for _, m := range messages {
			who := "Vendedor"
			if m.Direction == ports.DirectionInbound {
				who = "Lead"
			}
			fmt.Fprintf(&b, "[%s] %s: %s\n", m.SentAt.UTC().Format(time.DateTime), who, strings.TrimSpace(m.Body))
		}
	}
	b.WriteString("Escreva a próxima mensagem de follow-up.")
	return b.String()
}

func cleanGenerated(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"“”'")
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > maxMessageLen {
		text = strings.TrimSpace(string(r[:maxMessageLen]))
	}
	return text
}

var _ ports.Composer = (*AIComposer)(nil)
