package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in TokenClaims.Type
const (
	TokenTypeAccess     = "access"
	TokenTypeMFAPending = "mfa_pending"
)

// Login stages reported to callers
const (
	StageAuthenticated        = "authenticated"
	StageAwaitingSecondFactor = "awaiting_second_factor"
)

// Second factor methods
const (
	MFAMethodEmailOTP   = "email_otp"
	MFAMethodTOTP       = "totp"
	MFAMethodBackupCode = "backup_code"
	MFAMethodPasskey    = "passkey"
)

type TokenClaims struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// LoginResult is the orchestrator's answer to one authentication step.
// AccessToken is only set once the flow reaches StageAuthenticated;
// MFAToken is only set while a second factor is outstanding.
type LoginResult struct {
	Stage             string   `json:"stage"`
	AccountID         string   `json:"account_id,omitempty"`
	Email             string   `json:"email,omitempty"`
	RemainingAttempts int      `json:"remaining_attempts"`
	MFAToken          string   `json:"mfa_token,omitempty"`
	Methods           []string `json:"methods,omitempty"`
	AccessToken       string   `json:"access_token,omitempty"`
	ExpiresIn         int64    `json:"expires_in,omitempty"`
	RetryAfter        int64    `json:"retry_after,omitempty"` // seconds until a lock lifts
}
