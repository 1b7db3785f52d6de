package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Risk levels attached to security events
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// Security event types
const (
	SecurityEventLoginSuccess       = "login_success"
	SecurityEventLoginFailed        = "login_failed"
	SecurityEventAccountLocked      = "account_locked"
	SecurityEventMFAEnabled         = "mfa_enabled"
	SecurityEventMFADisabled        = "mfa_disabled"
	SecurityEventPasskeyAdded       = "passkey_added"
	SecurityEventPasskeyRevoked     = "passkey_revoked"
	SecurityEventCounterRegression  = "passkey_counter_regression"
	SecurityEventBackupCodeConsumed = "backup_code_used"
	SecurityEventBackupCodesRenewed = "backup_codes_regenerated"
	SecurityEventEmailVerified      = "email_verified"
)

// SecurityEvent is a persisted, per-account audit record
type SecurityEvent struct {
	ID        string        `json:"id"`
	AccountID string        `json:"account_id"`
	EventType string        `json:"type"`
	Kind      string        `json:"kind,omitempty"`
	Result    string        `json:"result,omitempty"`
	RiskLevel string        `json:"risk_level"`
	Metadata  AuditMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time     `json:"timestamp"`
}

// AuditMetadata holds additional context for audit events
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(am))
}
