// Package composer produces follow-up message bodies: liquid templates
// configured on the rule, an AI writer that uses recent conversation, and
// style defaults when neither applies.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"followup_backend/internal/followups/ports"

	"github.com/osteele/liquid"
)

// ErrEmptyMessage is returned when a composer produced no text.
var ErrEmptyMessage = errors.New("composed message is empty")

// TemplateComposer renders the rule's liquid template.
type TemplateComposer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewTemplateComposer creates a template composer with the follow-up filters.
func NewTemplateComposer() *TemplateComposer {
	engine := liquid.NewEngine()

	// {{ lead.name | first_name }}
	engine.RegisterFilter("first_name", firstName)
	// {{ lead.custom_fields.city | default: "sua cidade" }}
	engine.RegisterFilter("default", func(value any, fallback string) any {
		if value == nil {
			return fallback
		}
		if s := strings.TrimSpace(fmt.Sprint(value)); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	return &TemplateComposer{engine: engine}
}

// Compose implements ports.Composer.
func (c *TemplateComposer) Compose(_ context.Context, req ports.ComposeRequest) (ports.Message, error) {
	source := req.Send.Template
	if strings.TrimSpace(source) == "" {
		source = req.Rule.Behavior().MessageTemplate
	}
	if strings.TrimSpace(source) == "" {
		return ports.Message{}, errors.New("rule has no message template")
	}

	body, err := c.Render(source, Bindings(req))
	if err != nil {
		return ports.Message{}, err
	}
	if body == "" {
		return ports.Message{}, ErrEmptyMessage
	}
	return ports.Message{Recipient: req.Lead.Phone, Body: body, Source: ports.SourceTemplate}, nil
}

// Render parses (with caching) and renders a template.
func (c *TemplateComposer) Render(source string, bindings map[string]any) (string, error) {
	var tpl *liquid.Template
	if cached, ok := c.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := c.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		c.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Bindings exposes the lead, rule and send to templates.
func Bindings(req ports.ComposeRequest) map[string]any {
	lead := req.Lead
	schedule := req.Rule.Schedule()

	sendAt := req.Send.SendAt
	if schedule.Location != nil {
		sendAt = sendAt.In(schedule.Location)
	}

	tags := make([]any, len(lead.Tags))
	for i, t := range lead.Tags {
		tags[i] = t
	}
	customFields := map[string]any{}
	for k, v := range lead.CustomFields {
		customFields[strings.ToLower(k)] = v
	}

	var lastInbound string
	for _, m := range req.Context.Messages {
		if m.Direction == ports.DirectionInbound {
			lastInbound = m.Body
		}
	}

	return map[string]any{
		"lead": map[string]any{
			"name":          lead.Name,
			"first_name":    firstName(lead.Name),
			"phone":         lead.Phone,
			"origin":        lead.Origin,
			"pipe":          lead.Pipe,
			"stage":         lead.Stage,
			"tags":          tags,
			"custom_fields": customFields,
		},
		"rule": map[string]any{
			"name":  req.Rule.Name(),
			"style": string(req.Rule.Behavior().Style),
		},
		"followup": map[string]any{
			"send_date": sendAt.Format("02/01/2006"),
			"send_time": sendAt.Format("15:04"),
			"weekday":   weekdayPT[sendAt.Weekday()],
		},
		"conversation": map[string]any{
			"last_inbound": lastInbound,
			"messages":     len(req.Context.Messages),
		},
	}
}

var weekdayPT = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

var _ ports.Composer = (*TemplateComposer)(nil)
