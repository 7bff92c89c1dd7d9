package composer

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"
	"followup_backend/platform/logger"

	"github.com/google/uuid"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func testRule(t *testing.T, template string, useContext bool) domain.Rule {
	t.Helper()
	r, err := domain.NewRule(domain.RuleParams{
		OrganizationID:          uuid.New(),
		Name:                    "Sem resposta",
		Priority:                1,
		IsActive:                true,
		TriggerKind:             "no_response",
		DelayHours:              24,
		MaxFollowups:            2,
		Style:                   "value",
		UseLastContext:          useContext,
		MessageTemplate:         template,
		RestrictToBusinessHours: true,
		AllowedWeekdays:         []string{"mon", "tue", "wed", "thu", "fri"},
		Timezone:                "America/Sao_Paulo",
	})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return r
}

func request(rule domain.Rule) ports.ComposeRequest {
	return ports.ComposeRequest{
		Send: domain.ScheduledSend{
			RuleID:   rule.ID(),
			SendAt:   time.Date(2024, time.June, 17, 12, 0, 0, 0, time.UTC),
			Style:    rule.Behavior().Style,
			Template: rule.Behavior().MessageTemplate,
		},
		Rule: rule,
		Lead: domain.LeadSnapshot{
			ID:           uuid.New(),
			Name:         "Ana Souza",
			Phone:        "+5511999990000",
			Stage:        "Proposta",
			CustomFields: map[string]any{"City": "Campinas"},
		},
		Context: ports.ConversationContext{
			LookbackDays: 7,
			Messages: []ports.ConversationMessage{
				{Direction: ports.DirectionOutbound, Body: "Segue a proposta", SentAt: time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)},
				{Direction: ports.DirectionInbound, Body: "Vou analisar", SentAt: time.Date(2024, time.June, 10, 13, 0, 0, 0, time.UTC)},
			},
		},
	}
}

func TestTemplateComposerRendersBindings(t *testing.T) {
	tpl := `Oi {{ lead.name | first_name }}! Em {{ lead.custom_fields.city }} na {{ followup.weekday }} às {{ followup.send_time }}. {{ lead.custom_fields.budget | default: "sem orçamento" }}`
	rule := testRule(t, tpl, false)

	msg, err := NewTemplateComposer().Compose(context.Background(), request(rule))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	want := "Oi Ana! Em Campinas na segunda-feira às 09:00. sem orçamento"
	if msg.Body != want {
		t.Fatalf("body = %q, want %q", msg.Body, want)
	}
	if msg.Source != ports.SourceTemplate || msg.Recipient != "+5511999990000" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestTemplateComposerRejectsEmptyOutput(t *testing.T) {
	rule := testRule(t, "{% if lead.vip %}Oi{% endif %}", false)
	if _, err := NewTemplateComposer().Compose(context.Background(), request(rule)); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestStyleMessage(t *testing.T) {
	tests := []struct {
		style  domain.Style
		name   string
		prefix string
	}{
		{style: domain.StyleDirect, name: "Ana Souza", prefix: "Oi, Ana! Passando"},
		{style: domain.StyleBreakup, name: "", prefix: "Oi, como não tive retorno"},
		{style: domain.Style("unknown"), name: "Bia", prefix: "Oi, Bia! Passando"},
	}
	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			if got := StyleMessage(tt.style, tt.name); !strings.HasPrefix(got, tt.prefix) {
				t.Fatalf("StyleMessage = %q, want prefix %q", got, tt.prefix)
			}
		})
	}
}

type fakeComposer struct {
	msg   ports.Message
	err   error
	calls int
}

func (f *fakeComposer) Compose(context.Context, ports.ComposeRequest) (ports.Message, error) {
	f.calls++
	return f.msg, f.err
}

func TestRouterChoosesComposer(t *testing.T) {
	ctx := context.Background()

	t.Run("template wins", func(t *testing.T) {
		tpl, ai := &fakeComposer{msg: ports.Message{Source: ports.SourceTemplate}}, &fakeComposer{}
		msg, err := NewRouter(tpl, ai, logger.Discard()).Compose(ctx, request(testRule(t, "Oi", true)))
		if err != nil || msg.Source != ports.SourceTemplate || ai.calls != 0 {
			t.Fatalf("got %+v, %v (ai calls %d)", msg, err, ai.calls)
		}
	})

	t.Run("ai when context requested", func(t *testing.T) {
		ai := &fakeComposer{msg: ports.Message{Body: "gerado", Source: ports.SourceAI}}
		msg, err := NewRouter(&fakeComposer{}, ai, logger.Discard()).Compose(ctx, request(testRule(t, "", true)))
		if err != nil || msg.Source != ports.SourceAI {
			t.Fatalf("got %+v, %v", msg, err)
		}
	})

	t.Run("ai failure falls back to style", func(t *testing.T) {
		ai := &fakeComposer{err: errors.New("llm down")}
		msg, err := NewRouter(&fakeComposer{}, ai, logger.Discard()).Compose(ctx, request(testRule(t, "", true)))
		if err != nil || msg.Source != ports.SourceDefault || !strings.Contains(msg.Body, "Ana") {
			t.Fatalf("got %+v, %v", msg, err)
		}
	})

	t.Run("style without ai", func(t *testing.T) {
		msg, err := NewRouter(&fakeComposer{}, nil, logger.Discard()).Compose(ctx, request(testRule(t, "", true)))
		if err != nil || msg.Source != ports.SourceDefault {
			t.Fatalf("got %+v, %v", msg, err)
		}
	})
}

func TestBuildPromptIncludesConversation(t *testing.T) {
	prompt := BuildPrompt(request(testRule(t, "", true)))
	for _, want := range []string{"focado em valor", "Nome do lead: Ana", "Lead: Vou analisar", "Vendedor: Segue a proposta", "últimos 7 dias"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestCleanGenerated(t *testing.T) {
	if got := cleanGenerated(`  "Oi Ana, tudo bem?" `); got != "Oi Ana, tudo bem?" {
		t.Fatalf("cleanGenerated = %q", got)
	}
	long := strings.Repeat("á", maxMessageLen+50)
	if got := []rune(cleanGenerated(long)); len(got) != maxMessageLen {
		t.Fatalf("expected truncation to %d runes, got %d", maxMessageLen, len(got))
	}
}

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, _ *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}, nil)
	}
}

func TestAIComposer(t *testing.T) {
	c, err := NewAIComposer(&fakeLLM{reply: `"Oi Ana, conseguiu analisar a proposta?"`})
	if err != nil {
		t.Fatalf("NewAIComposer: %v", err)
	}
	msg, err := c.Compose(context.Background(), request(testRule(t, "", true)))
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if msg.Body != "Oi Ana, conseguiu analisar a proposta?" || msg.Source != ports.SourceAI {
		t.Fatalf("unexpected message %+v", msg)
	}

	failing, err := NewAIComposer(&fakeLLM{err: errors.New("quota")})
	if err != nil {
		t.Fatalf("NewAIComposer: %v", err)
	}
	if _, err := failing.Compose(context.Background(), request(testRule(t, "", true))); err == nil {
		t.Fatal("expected model error")
	}
}
