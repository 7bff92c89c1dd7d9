package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"
	"followup_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultOrigin is what imported leads carry when the CRM left origin blank.
const defaultOrigin = "import"

// LeadReader reads lead snapshots from the CRM's projection view.
type LeadReader struct {
	pool *pgxpool.Pool
}

// NewLeadReader creates a lead snapshot reader.
func NewLeadReader(pool *pgxpool.Pool) *LeadReader {
	return &LeadReader{pool: pool}
}

var _ ports.LeadProvider = (*LeadReader)(nil)

// QualifiableLeads returns the open leads of an organization that existed at asOf.
func (r *LeadReader) QualifiableLeads(ctx context.Context, organizationID uuid.UUID, asOf time.Time) ([]domain.LeadSnapshot, error) {
	query := `
		SELECT id, organization_id, COALESCE(name, ''), COALESCE(phone, ''),
			COALESCE(tags, '{}'), COALESCE(NULLIF(origin, ''), $3), COALESCE(pipe, ''), COALESCE(stage, ''),
			custom_fields, last_inbound_at, last_outbound_at, scheduled_event_at, created_at
		FROM crm_lead_snapshots
		WHERE organization_id = $1
			AND created_at <= $2
			AND is_closed = false
			AND COALESCE(phone, '') <> ''
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, organizationID, asOf, defaultOrigin)
	if err != nil {
		return nil, fmt.Errorf("query lead snapshots: %w", err)
	}
	defer rows.Close()

	var leads []domain.LeadSnapshot
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead snapshot: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead snapshots: %w", err)
	}
	return leads, nil
}

// GetLead returns a single open lead. Closed or missing leads are NotFound.
func (r *LeadReader) GetLead(ctx context.Context, organizationID, leadID uuid.UUID) (domain.LeadSnapshot, error) {
	query := `
		SELECT id, organization_id, COALESCE(name, ''), COALESCE(phone, ''),
			COALESCE(tags, '{}'), COALESCE(NULLIF(origin, ''), $3), COALESCE(pipe, ''), COALESCE(stage, ''),
			custom_fields, last_inbound_at, last_outbound_at, scheduled_event_at, created_at
		FROM crm_lead_snapshots
		WHERE organization_id = $1 AND id = $2 AND is_closed = false`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, organizationID, leadID, defaultOrigin))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeadSnapshot{}, apperr.NotFound("lead not found")
		}
		return domain.LeadSnapshot{}, fmt.Errorf("get lead snapshot: %w", err)
	}
	return lead, nil
}

func scanLead(row pgx.Row) (domain.LeadSnapshot, error) {
	var (
		lead      domain.LeadSnapshot
		customRaw []byte
	)
	if err := row.Scan(
		&lead.ID, &lead.OrganizationID, &lead.Name, &lead.Phone,
		&lead.Tags, &lead.Origin, &lead.Pipe, &lead.Stage,
		&customRaw, &lead.LastInboundAt, &lead.LastOutboundAt, &lead.ScheduledEventAt, &lead.CreatedAt,
	); err != nil {
		return domain.LeadSnapshot{}, err
	}
	if len(customRaw) > 0 {
		if err := json.Unmarshal(customRaw, &lead.CustomFields); err != nil {
			return domain.LeadSnapshot{}, fmt.Errorf("decode custom fields: %w", err)
		}
	}
	return lead, nil
}
