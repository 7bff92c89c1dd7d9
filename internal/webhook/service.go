package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"followup_backend/internal/events"
	"followup_backend/platform/apperr"
	"followup_backend/platform/logger"
	"followup_backend/platform/phone"

	"github.com/google/uuid"
)

// Inbound outcomes.
const (
	StatusReset       = "reset"
	StatusIgnored     = "ignored"
	StatusUnknownLead = "unknown_lead"
)

// InboundMessage is the gowa webhook payload for a received message.
type InboundMessage struct {
	Event     string `json:"event"`
	From      string `json:"from"`
	ChatID    string `json:"chat_id"`
	Pushname  string `json:"pushname"`
	IsFromMe  bool   `json:"is_from_me"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"message"`
}

// InboundResult tells the gateway what happened to a message.
type InboundResult struct {
	Status string     `json:"status"`
	LeadID *uuid.UUID `json:"leadId,omitempty"`
}

// CreateKeyResponse includes the plaintext key (shown only once).
type CreateKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

// KeyResponse is returned when listing or creating API keys.
type KeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service handles inbound messages and API key management.
type Service struct {
	keys     KeyStore
	leads    LeadLookup
	eventBus events.Bus
	region   string
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a new webhook service. region resolves sender numbers
// that arrive without a country code.
func NewService(keys KeyStore, leads LeadLookup, eventBus events.Bus, region string, log *logger.Logger) *Service {
	return &Service{
		keys:     keys,
		leads:    leads,
		eventBus: eventBus,
		region:   region,
		log:      log,
		now:      time.Now,
	}
}

// ProcessInbound resets the follow-up counters of the lead that sent msg.
// Receipts, own messages, group chats and unknown numbers are acknowledged
// without side effects.
func (s *Service) ProcessInbound(ctx context.Context, orgID uuid.UUID, msg InboundMessage) (InboundResult, error) {
	if (msg.Event != "" && msg.Event != "message") || msg.IsFromMe || strings.HasSuffix(msg.ChatID, "@g.us") {
		return InboundResult{Status: StatusIgnored}, nil
	}

	digits := senderDigits(msg.From)
	if digits == "" {
		return InboundResult{}, apperr.BadRequest("sender is not a phone number")
	}

	leadID, err := s.leads.LeadIDByPhone(ctx, orgID, phone.NormalizeE164InRegion("+"+digits, s.region))
	if errors.Is(err, ErrLeadNotFound) {
		s.log.Debug("inbound whatsapp from unknown number", "organizationId", orgID)
		return InboundResult{Status: StatusUnknownLead}, nil
	}
	if err != nil {
		return InboundResult{}, err
	}

	repliedAt := s.now().UTC()
	if ts, err := time.Parse(time.RFC3339, msg.Timestamp); err == nil {
		repliedAt = ts.UTC()
	}

	if err := s.eventBus.PublishSync(ctx, events.LeadReplied{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: orgID,
		LeadID:         leadID,
		RepliedAt:      repliedAt,
	}); err != nil {
		return InboundResult{}, err
	}

	s.log.Info("lead replied on whatsapp", "organizationId", orgID, "leadId", leadID)
	return InboundResult{Status: StatusReset, LeadID: &leadID}, nil
}

// senderDigits extracts the phone digits from a JID such as
// "5511999990000@s.whatsapp.net" or "5511999990000:12@s.whatsapp.net".
func senderDigits(from string) string {
	user, _, _ := strings.Cut(strings.TrimSpace(from), "@")
	user, _, _ = strings.Cut(user, ":")
	user = strings.TrimPrefix(user, "+")
	if user == "" || strings.ContainsFunc(user, func(r rune) bool { return r < '0' || r > '9' }) {
		return ""
	}
	return user
}

// CreateKey issues a new API key for the organization.
func (s *Service) CreateKey(ctx context.Context, orgID uuid.UUID, name string) (CreateKeyResponse, error) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return CreateKeyResponse{}, err
	}
	key, err := s.keys.Create(ctx, orgID, strings.TrimSpace(name), hash, prefix)
	if err != nil {
		return CreateKeyResponse{}, err
	}
	s.log.Info("webhook key created", "organizationId", orgID, "keyPrefix", prefix)
	return CreateKeyResponse{KeyResponse: toKeyResponse(key), Key: plaintext}, nil
}

// ListKeys returns every key of the organization, newest first.
func (s *Service) ListKeys(ctx context.Context, orgID uuid.UUID) ([]KeyResponse, error) {
	keys, err := s.keys.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]KeyResponse, len(keys))
	for i, k := range keys {
		out[i] = toKeyResponse(k)
	}
	return out, nil
}

// RevokeKey deactivates a key of the organization.
func (s *Service) RevokeKey(ctx context.Context, orgID, keyID uuid.UUID) error {
	err := s.keys.Revoke(ctx, keyID, orgID)
	if errors.Is(err, ErrAPIKeyNotFound) {
		return apperr.NotFound("webhook key not found")
	}
	return err
}

func toKeyResponse(k APIKey) KeyResponse {
	return KeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		KeyPrefix: k.KeyPrefix,
		IsActive:  k.IsActive,
		CreatedAt: k.CreatedAt,
	}
}
