package services

import (
	"context"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

// AccountStore persists account risk and MFA state.
// Lookups return models.ErrNotFound for unknown accounts.
type AccountStore interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	// Update runs mutate against the current state and persists the result
	// atomically per account. If mutate returns an error nothing is written
	// and that error is returned unchanged.
	Update(ctx context.Context, id string, mutate func(*models.Account) error) (*models.Account, error)
}

// CodeStore holds emailed one-time codes and WebAuthn challenges.
// Records are kept for a grace period past ExpiresAt and then dropped, so
// callers must compare ExpiresAt against their own clock. A missing record
// is reported as models.ErrNotFound.
type CodeStore interface {
	PutOTP(ctx context.Context, code *models.OneTimeCode) error
	ListOTPs(ctx context.Context, subject, purpose string) ([]*models.OneTimeCode, error)
	PutChallenge(ctx context.Context, challenge *models.Challenge) error
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	// MarkUsed consumes a code or challenge by id. Exactly one concurrent
	// caller succeeds; the rest get models.ErrAlreadyUsed.
	MarkUsed(ctx context.Context, id string) error
}

// CredentialStore persists passkey credentials keyed by credential id
type CredentialStore interface {
	Put(ctx context.Context, cred *models.PasskeyCredential) error
	GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error)
	// UpdateCounter is a compare-and-set on the signature counter; it returns
	// models.ErrConflict when the stored value is no longer oldCount.
	UpdateCounter(ctx context.Context, credentialID []byte, oldCount, newCount uint32, usedAt time.Time) error
	Delete(ctx context.Context, accountID string, credentialID []byte) error
}

// SecurityEventStore persists the per-account security event feed
type SecurityEventStore interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmailVerificationStore persists email verification tokens by hash
type EmailVerificationStore interface {
	Create(ctx context.Context, token *models.EmailVerificationToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error)
	// LatestByAccount returns the newest token issued to the account
	LatestByAccount(ctx context.Context, accountID string) (*models.EmailVerificationToken, error)
	// MarkUsed redeems a token. Exactly one concurrent caller succeeds; the
	// rest get models.ErrAlreadyUsed.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// OTPSender delivers an email one-time code out of band
type OTPSender interface {
	SendOTPEmail(ctx context.Context, to, code string, ttl time.Duration) error
}

// VerificationSender delivers an email verification link
type VerificationSender interface {
	SendVerificationEmail(ctx context.Context, to, token string, expiresAt time.Time) error
}

// EmailSender is everything the service sends by mail
type EmailSender interface {
	OTPSender
	VerificationSender
}

// PasswordHasher is the identity-provider collaborator that owns password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
