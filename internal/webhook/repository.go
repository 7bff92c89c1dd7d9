// Package webhook receives inbound WhatsApp messages from the gowa gateway
// and turns lead replies into LeadReplied events. Callers authenticate with
// per-organization API keys.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

var ErrLeadNotFound = errors.New("no open lead for phone")

// APIKey represents a webhook API key stored in the database.
type APIKey struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// KeyStore persists webhook API keys.
type KeyStore interface {
	Create(ctx context.Context, orgID uuid.UUID, name, keyHash, keyPrefix string) (APIKey, error)
	GetByHash(ctx context.Context, keyHash string) (APIKey, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]APIKey, error)
	Revoke(ctx context.Context, keyID, orgID uuid.UUID) error
}

// LeadLookup resolves the lead a WhatsApp sender belongs to.
type LeadLookup interface {
	LeadIDByPhone(ctx context.Context, orgID uuid.UUID, e164 string) (uuid.UUID, error)
}

// Repository provides data access for webhook API keys and lead lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key and its hash.
// The plaintext key is returned only once; only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "fuk_" + hex.EncodeToString(bytes)
	prefix = plaintext[:12] // "fuk_" + 8 hex chars
	return plaintext, HashKey(plaintext), prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const keyColumns = `id, organization_id, name, key_hash, key_prefix, is_active, created_at, updated_at`

func scanKey(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(&key.ID, &key.OrganizationID, &key.Name, &key.KeyHash, &key.KeyPrefix, &key.IsActive, &key.CreatedAt, &key.UpdatedAt)
	return key, err
}

// Create creates a new API key record.
func (r *Repository) Create(ctx context.Context, orgID uuid.UUID, name, keyHash, keyPrefix string) (APIKey, error) {
	key, err := scanKey(r.pool.QueryRow(ctx, `
		INSERT INTO followup_webhook_keys (organization_id, name, key_hash, key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING `+keyColumns,
		orgID, name, keyHash, keyPrefix))
	if err != nil {
		return APIKey{}, fmt.Errorf("create webhook key: %w", err)
	}
	return key, nil
}

// GetByHash retrieves an active API key by its hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	key, err := scanKey(r.pool.QueryRow(ctx, `
		SELECT `+keyColumns+`
		FROM followup_webhook_keys
		WHERE key_hash = $1 AND is_active = true`, keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListByOrganization returns all API keys for an organization.
func (r *Repository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+keyColumns+`
		FROM followup_webhook_keys
		WHERE organization_id = $1
		ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates an API key.
func (r *Repository) Revoke(ctx context.Context, keyID, orgID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE followup_webhook_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND organization_id = $2`, keyID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// LeadIDByPhone returns the most recently created open lead with the number.
func (r *Repository) LeadIDByPhone(ctx context.Context, orgID uuid.UUID, e164 string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT id
		FROM crm_lead_snapshots
		WHERE organization_id = $1
			AND is_closed = false
			AND regexp_replace(phone, '\D', '', 'g') = regexp_replace($2, '\D', '', 'g')
		ORDER BY created_at DESC
		LIMIT 1`, orgID, e164).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrLeadNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup lead by phone: %w", err)
	}
	return id, nil
}

var (
	_ KeyStore   = (*Repository)(nil)
	_ LeadLookup = (*Repository)(nil)
)
