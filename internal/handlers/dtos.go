package handlers

import (
	"encoding/json"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/go-webauthn/webauthn/protocol"
)

// Credential DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterResponse confirms a new account
type RegisterResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// PasswordStrengthRequest asks for an advisory strength score
type PasswordStrengthRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// Second factor DTOs

// MFATokenRequest carries the short-lived token issued after the password step
type MFATokenRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
}

// VerifyMFARequest completes the second factor with a code
type VerifyMFARequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Method   string `json:"method" validate:"required,oneof=email_otp totp backup_code"`
	Code     string `json:"code" validate:"required,max=20"`
}

// PasskeyFinishRequest carries a browser PublicKeyCredential for a challenge
type PasskeyFinishRequest struct {
	ChallengeID string          `json:"challenge_id" validate:"required,uuid"`
	Credential  json.RawMessage `json:"credential" validate:"required"`
}

// PasskeyMFAFinishRequest is PasskeyFinishRequest plus the pending MFA token
type PasskeyMFAFinishRequest struct {
	MFAToken    string          `json:"mfa_token" validate:"required"`
	ChallengeID string          `json:"challenge_id" validate:"required,uuid"`
	Credential  json.RawMessage `json:"credential" validate:"required"`
}

// PasskeyRegisterFinishRequest carries an attestation and an optional label
type PasskeyRegisterFinishRequest struct {
	ChallengeID string          `json:"challenge_id" validate:"required,uuid"`
	Credential  json.RawMessage `json:"credential" validate:"required"`
	Label       string          `json:"label" validate:"max=64"`
}

// AssertionOptionsResponse is handed to navigator.credentials.get()
type AssertionOptionsResponse struct {
	ChallengeID string                                     `json:"challenge_id"`
	ExpiresAt   time.Time                                  `json:"expires_at"`
	PublicKey   protocol.PublicKeyCredentialRequestOptions `json:"publicKey"`
}

// CreationOptionsResponse is handed to navigator.credentials.create()
type CreationOptionsResponse struct {
	ChallengeID string                                      `json:"challenge_id"`
	ExpiresAt   time.Time                                   `json:"expires_at"`
	PublicKey   protocol.PublicKeyCredentialCreationOptions `json:"publicKey"`
}

// MFA management DTOs

// VerifyMFASetupRequest confirms enrollment with the first TOTP code
type VerifyMFASetupRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableMFARequest requires a current TOTP or backup code
type DisableMFARequest struct {
	Code string `json:"code" validate:"required,max=20"`
}

// RegenerateBackupCodesRequest requires a current TOTP code
type RegenerateBackupCodesRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// BackupCodesResponse carries freshly issued backup codes
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// VerifyEmailRequest carries the token from a verification link
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// Passkey management DTOs

// PasskeyResponse describes a registered passkey without its key material
type PasskeyResponse struct {
	ID           string     `json:"id"`
	CredentialID string     `json:"credential_id"` // base64url
	Label        *string    `json:"label,omitempty"`
	Transports   []string   `json:"transports,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

func toPasskeyResponse(cred *models.PasskeyCredential) PasskeyResponse {
	return PasskeyResponse{
		ID:           cred.ID,
		CredentialID: encodeCredentialID(cred.CredentialID),
		Label:        cred.Label,
		Transports:   cred.Transports,
		CreatedAt:    cred.CreatedAt,
		LastUsedAt:   cred.LastUsedAt,
	}
}

// AccountSecurityResponse combines the security score with recent events
type AccountSecurityResponse struct {
	*models.SecurityScore
	Events []*models.SecurityEvent `json:"events"`
}
