// Package events provides the in-process event bus used to decouple the
// follow-up engine from its listeners.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything published on a Bus.
type Event interface {
	// EventName is the subscription key, e.g. "followups.followup.scheduled".
	EventName() string
	OccurredAt() time.Time
}

// TenantScoped events carry the organization they belong to. The bus adds
// it to handler failure logs.
type TenantScoped interface {
	Tenant() uuid.UUID
}

// BaseEvent is embedded by concrete events.
type BaseEvent struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return NewBaseEventAt(time.Now())
}

// NewBaseEventAt stamps a fresh id and at.
func NewBaseEventAt(at time.Time) BaseEvent {
	return BaseEvent{EventID: uuid.New(), Timestamp: at.UTC()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribers keyed by EventName.
type Bus interface {
	// Publish runs handlers asynchronously; failures are only logged.
	Publish(ctx context.Context, event Event)

	// PublishSync runs handlers in order and returns their joined errors.
	PublishSync(ctx context.Context, event Event) error

	Subscribe(eventName string, handler Handler)
}

func logFields(event Event) []any {
	fields := []any{"event", event.EventName()}
	if scoped, ok := event.(TenantScoped); ok {
		fields = append(fields, "organizationId", scoped.Tenant().String())
	}
	return fields
}
