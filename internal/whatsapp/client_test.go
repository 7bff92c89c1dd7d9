package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"followup_backend/platform/logger"
)

type testConfig struct {
	url string
	key string
	rps float64
}

func (c testConfig) GetWhatsAppURL() string            { return c.url }
func (c testConfig) GetWhatsAppKey() string            { return c.key }
func (c testConfig) GetWhatsAppDeviceID() string       { return "device-1" }
func (c testConfig) GetWhatsAppRatePerSecond() float64 { return c.rps }

func TestNewClientWithoutURL(t *testing.T) {
	c := NewClient(testConfig{}, "BR", logger.Discard())
	if c != nil {
		t.Fatal("expected nil client without gateway URL")
	}
	if err := c.SendMessage(context.Background(), "+5511999990000", "oi"); err != nil {
		t.Fatalf("nil client must be a no-op, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	var got gowaRequest
	var auth, device string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/message" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		device = r.Header.Get("X-Device-Id")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig{url: srv.URL + "/", key: "user:pass", rps: 5}, "BR", logger.Discard())
	if err := c.SendMessage(context.Background(), "(11) 99999-0000", "Oi Ana"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Phone != "5511999990000" || got.Message != "Oi Ana" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if auth != "Basic dXNlcjpwYXNz" || device != "device-1" {
		t.Fatalf("unexpected headers auth=%q device=%q", auth, device)
	}
}

func TestSendMessageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig{url: srv.URL}, "BR", logger.Discard())

	err := c.SendMessage(context.Background(), "+5511999990000", "oi")
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "device offline") {
		t.Fatalf("expected gateway error, got %v", err)
	}

	if err := c.SendMessage(context.Background(), "not a phone", "oi"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestSendMessageHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(testConfig{url: srv.URL, rps: 0.001}, "BR", logger.Discard())
	if err := c.SendMessage(context.Background(), "+5511999990000", "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SendMessage(ctx, "+5511999990000", "second"); !errors.Is(err, ErrNotSent) {
		t.Fatalf("expected rate limit wait to fail as not sent, got %v", err)
	}
}

func TestSendMessageMarksOnlyUnsentFailures(t *testing.T) {
	refused := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	refusedURL := refused.URL
	refused.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer rejecting.Close()

	tests := []struct {
		name    string
		url     string
		notSent bool
	}{
		{name: "connection refused", url: refusedURL, notSent: true},
		{name: "timeout after the request was written", url: slow.URL},
		{name: "gateway error response", url: rejecting.URL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(testConfig{url: tt.url}, "BR", logger.Discard())
			c.http.Timeout = 50 * time.Millisecond

			err := c.SendMessage(context.Background(), "+5511999990000", "oi")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNotSent); got != tt.notSent {
				t.Fatalf("errors.Is(ErrNotSent) = %v, want %v (%v)", got, tt.notSent, err)
			}
		})
	}
}

func TestFormatAuthHeader(t *testing.T) {
	if got := formatAuthHeader("Basic abc"); got != "Basic abc" {
		t.Fatalf("got %q", got)
	}
}
