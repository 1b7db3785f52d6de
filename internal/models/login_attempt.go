package models

import "time"

// Attempt kinds
const (
	AttemptKindPassword   = "password"
	AttemptKindEmailOTP   = "email_otp"
	AttemptKindTOTP       = "totp"
	AttemptKindBackupCode = "backup_code"
	AttemptKindPasskey    = "passkey"
)

// Attempt results
const (
	AttemptResultSuccess         = "success"
	AttemptResultFailure         = "failure"
	AttemptResultRejectedLocked  = "rejected_locked"
	AttemptResultRejectedExpired = "rejected_expired"
)

// AttemptRecord is the outcome of one verification call. It is derived,
// never stored on the account.
type AttemptRecord struct {
	Kind      string
	Result    string
	AccountID string
	Email     string
	Cause     string // internal failure cause, never shown to the caller
	At        time.Time
}

// RiskDecision is the Risk Gate's answer for one account key
type RiskDecision struct {
	Allowed           bool
	RemainingAttempts int
	LockedUntil       *time.Time
}
