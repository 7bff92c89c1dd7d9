package repository

import (
	"context"
	"fmt"
	"time"

	"followup_backend/internal/followups/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxContextMessages caps how much history is handed to a composer.
const maxContextMessages = 30

// ConversationRepo reads recent messages exchanged with a lead.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

// NewConversationRepo creates a conversation reader.
func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

var _ ports.ConversationReader = (*ConversationRepo)(nil)

// RecentConversation returns up to maxContextMessages messages sent since the
// given instant, oldest first.
func (r *ConversationRepo) RecentConversation(ctx context.Context, organizationID, leadID uuid.UUID, since time.Time) ([]ports.ConversationMessage, error) {
	query := `
		SELECT direction, body, sent_at FROM (
			SELECT direction, COALESCE(body, '') AS body, sent_at
			FROM crm_messages
			WHERE organization_id = $1 AND lead_id = $2 AND sent_at >= $3
			ORDER BY sent_at DESC
			LIMIT $4
		) recent
		ORDER BY sent_at ASC`

	rows, err := r.pool.Query(ctx, query, organizationID, leadID, since, maxContextMessages)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	var messages []ports.ConversationMessage
	for rows.Next() {
		var m ports.ConversationMessage
		if err := rows.Scan(&m.Direction, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation: %w", err)
	}
	return messages, nil
}
