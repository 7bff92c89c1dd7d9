package repository

import (
	"context"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"

	"github.com/google/uuid"
)

// RuleReader provides read operations for follow-up rules.
type RuleReader interface {
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.Rule, error)
	List(ctx context.Context, organizationID uuid.UUID) ([]domain.Rule, error)
}

// RuleWriter provides write operations for follow-up rules.
type RuleWriter interface {
	Create(ctx context.Context, rule domain.Rule) (domain.Rule, error)
	Update(ctx context.Context, rule domain.Rule) (domain.Rule, error)
	SetActive(ctx context.Context, organizationID, id uuid.UUID, isActive bool) (domain.Rule, error)
	Delete(ctx context.Context, organizationID, id uuid.UUID) error
}

// Repository combines rule persistence with the engine's rule source.
type Repository interface {
	RuleReader
	RuleWriter
	ports.RuleSource
}
