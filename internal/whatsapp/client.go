// Package whatsapp delivers follow-up messages through a gowa gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"followup_backend/platform/config"
	"followup_backend/platform/logger"
	"followup_backend/platform/phone"

	"golang.org/x/time/rate"
)

// ErrInvalidRecipient is returned when a phone number cannot be turned into a
// WhatsApp recipient.
var ErrInvalidRecipient = errors.New("invalid whatsapp recipient")

// ErrNotSent marks failures that happened before the request reached the
// gateway. Only these are safe to retry; any other error may hide a
// delivered message.
var ErrNotSent = errors.New("whatsapp message not sent")

// Client sends text messages through the gowa REST API.
type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	region   string
	http     *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewClient returns nil when no gateway URL is configured; a nil client
// drops messages silently.
func NewClient(cfg config.WhatsAppConfig, region string, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	limit := rate.Inf
	burst := 1
	if rps := cfg.GetWhatsAppRatePerSecond(); rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		region:   region,
		http:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
	}
}

// SendMessage posts message to phoneNumber. Sends are paced by the
// configured rate; waiting honours ctx.
func (c *Client) SendMessage(ctx context.Context, phoneNumber string, message string) error {
	if c == nil {
		return nil
	}

	recipient := phone.Digits(phoneNumber, c.region)
	if recipient == "" || strings.ContainsFunc(recipient, func(r rune) bool { return r < '0' || r > '9' }) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, phoneNumber)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", ErrNotSent, err)
	}

	body, err := json.Marshal(gowaRequest{Phone: recipient, Message: message})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return fmt.Errorf("%w: %w", ErrNotSent, err)
		}
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("whatsapp sent via gowa", "phone", recipient)
	return nil
}

// isDialError reports a failure to open the connection, before any byte of
// the request was written.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
