package models

import (
	"time"
)

// Account is the risk and MFA state the verification core owns for one identity.
// Password hashes are produced and checked by the identity provider; the core
// only carries the value through.
type Account struct {
	ID                 string
	Email              string
	PasswordHash       string
	EmailVerified      bool
	FailedAttempts     int // primary-credential failures since the last reset
	MFAFailedAttempts  int // second-factor failures; not reset by a password success
	LockedUntil        *time.Time
	LastLoginAt        *time.Time
	MFAEnabled         bool
	MFASecretEncrypted []byte // AES-256-GCM encrypted TOTP secret
	MFASecretNonce     []byte
	MFAEnrolledAt      *time.Time
	LastTOTPStep       int64    // last time step that authenticated, for replay prevention
	BackupCodes        []string // SHA-256 hex digests of unused backup codes
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsLocked reports whether a lockout window is active at now.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// HasTOTP reports whether a TOTP secret has been enrolled.
func (a *Account) HasTOTP() bool {
	return len(a.MFASecretEncrypted) > 0 && len(a.MFASecretNonce) > 0
}

// Clone returns a deep copy so store implementations can hand out values
// that callers may mutate freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	if a.MFAEnrolledAt != nil {
		t := *a.MFAEnrolledAt
		c.MFAEnrolledAt = &t
	}
	c.MFASecretEncrypted = append([]byte(nil), a.MFASecretEncrypted...)
	c.MFASecretNonce = append([]byte(nil), a.MFASecretNonce...)
	c.BackupCodes = append([]string(nil), a.BackupCodes...)
	return &c
}
