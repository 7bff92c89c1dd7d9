// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// OrganizationIDKey is the context key for the tenant being processed
	OrganizationIDKey contextKey = "organization_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Development uses the text
// handler at debug level; every other environment logs JSON at info level.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests and dry runs.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if orgID, ok := ctx.Value(OrganizationIDKey).(string); ok && orgID != "" {
		newLogger = newLogger.WithOrganization(orgID)
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// WithOrganization returns a logger scoped to one tenant.
func (l *Logger) WithOrganization(organizationID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("organization_id", organizationID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

// FollowupOutcome logs the result of processing one lead in a pass.
// Failures are logged at warn level, everything else at debug.
func (l *Logger) FollowupOutcome(leadID, ruleID, outcome string, err error) {
	attrs := []any{
		slog.String("lead_id", leadID),
		slog.String("outcome", outcome),
	}
	if ruleID != "" {
		attrs = append(attrs, slog.String("rule_id", ruleID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Warn("followup_outcome", attrs...)
		return
	}
	l.Debug("followup_outcome", attrs...)
}

// PassCompleted logs the summary of one orchestration pass.
func (l *Logger) PassCompleted(organizationID string, leads, scheduled, failed int, elapsed time.Duration) {
	l.Info("followup_pass_completed",
		slog.String("organization_id", organizationID),
		slog.Int("leads", leads),
		slog.Int("scheduled", scheduled),
		slog.Int("failed", failed),
		slog.Int64("elapsed_ms", elapsed.Milliseconds()),
	)
}
