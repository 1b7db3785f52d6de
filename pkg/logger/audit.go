package logger

import (
	"context"
	"log/slog"
	"time"
)

// AttemptEvent describes one credential verification outcome
type AttemptEvent struct {
	Kind      string // password, email_otp, totp, backup_code, passkey
	Result    string // success, failure, rejected_locked, rejected_expired
	AccountID string
	Email     string
	Cause     string // internal cause, never returned to the caller
	Remaining int
	At        time.Time
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAttempt logs a verification attempt. Emails are masked.
func (al *AuditLogger) LogAttempt(ctx context.Context, event AttemptEvent) {
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("kind", event.Kind),
		slog.String("result", event.Result),
		slog.Int("remaining_attempts", event.Remaining),
		slog.String("timestamp", at.UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.Cause != "" {
		attrs = append(attrs, slog.String("cause", event.Cause))
	}

	level := slog.LevelWarn
	if event.Result == "success" {
		level = slog.LevelInfo
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAccountAction logs account changes such as MFA enrollment or passkey revocation
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, accountID string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("account_id", accountID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
