package models

import (
	"time"
)

// EmailVerificationToken is a single-use link token proving control of an
// account's address. Only the SHA-256 of the token is stored.
type EmailVerificationToken struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	TokenHash string     `json:"-"`
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsExpired checks if the token has expired at now
func (t *EmailVerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsed checks if the token has already been redeemed
func (t *EmailVerificationToken) IsUsed() bool {
	return t.UsedAt != nil
}
