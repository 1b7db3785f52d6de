package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/pkg/logger"
	"github.com/google/uuid"
)

const (
	// DefaultVerificationTTL is how long a verification link stays valid
	DefaultVerificationTTL = 24 * time.Hour
	// DefaultResendCooldown is the minimum gap between verification emails
	DefaultResendCooldown  = 20 * time.Minute
	verificationTokenBytes = 32
)

// EmailVerificationService issues and redeems email verification links.
// A verified address adds to the account's security score.
type EmailVerificationService struct {
	tokens         EmailVerificationStore
	accounts       AccountStore
	sender         VerificationSender
	audit          *AuditService
	clock          auth.Clock
	rand           io.Reader
	ttl            time.Duration
	resendCooldown time.Duration
	logger         *slog.Logger
}

// NewEmailVerificationService creates a new EmailVerificationService
func NewEmailVerificationService(
	tokens EmailVerificationStore,
	accounts AccountStore,
	sender VerificationSender,
	audit *AuditService,
	clock auth.Clock,
	rand io.Reader,
	ttl time.Duration,
	logger *slog.Logger,
) *EmailVerificationService {
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return &EmailVerificationService{
		tokens:         tokens,
		accounts:       accounts,
		sender:         sender,
		audit:          audit,
		clock:          clock,
		rand:           rand,
		ttl:            ttl,
		resendCooldown: DefaultResendCooldown,
		logger:         logger,
	}
}

// SendVerification stores a fresh token for the account and emails the link.
// Already verified accounts are left alone.
func (s *EmailVerificationService) SendVerification(ctx context.Context, accountID string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return storeErr("load account", err)
	}
	if account.EmailVerified {
		return nil
	}
	return s.issue(ctx, account)
}

// Resend emails a new link unless one went out within the cooldown
func (s *EmailVerificationService) Resend(ctx context.Context, accountID string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return storeErr("load account", err)
	}
	if account.EmailVerified {
		return fmt.Errorf("%w: email already verified", models.ErrConflict)
	}

	latest, err := s.tokens.LatestByAccount(ctx, accountID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return storeErr("load latest token", err)
	}
	if latest != nil {
		if since := s.clock.Now().Sub(latest.CreatedAt); since < s.resendCooldown {
			s.logger.Info("verification resend too soon",
				slog.String("account_id", accountID),
				slog.Duration("since_last", since))
			return models.ErrResendCooldown
		}
	}

	return s.issue(ctx, account)
}

// VerifyEmail redeems a token and marks the address verified. Unknown,
// expired and reused tokens all fail the same way.
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, plainToken string) (string, error) {
	if plainToken == "" {
		return "", models.ErrUnauthorized
	}

	token, err := s.tokens.GetByTokenHash(ctx, hashVerificationToken(plainToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verification token not found")
			return "", models.ErrUnauthorized
		}
		return "", storeErr("load verification token", err)
	}

	now := s.clock.Now()
	if token.IsUsed() {
		s.logger.Warn("verification token reused", slog.String("token_id", token.ID))
		return "", models.ErrUnauthorized
	}
	if token.IsExpired(now) {
		s.logger.Info("verification token expired",
			slog.String("token_id", token.ID),
			slog.Time("expires_at", token.ExpiresAt))
		return "", models.ErrUnauthorized
	}

	if err := s.tokens.MarkUsed(ctx, token.ID, now); err != nil {
		if errors.Is(err, models.ErrAlreadyUsed) || errors.Is(err, models.ErrNotFound) {
			return "", models.ErrUnauthorized
		}
		return "", storeErr("redeem verification token", err)
	}

	_, err = s.accounts.Update(ctx, token.AccountID, func(a *models.Account) error {
		// The link only proves the address it was sent to
		if a.Email != token.Email {
			return models.ErrUnauthorized
		}
		a.EmailVerified = true
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) || errors.Is(err, models.ErrNotFound) {
			return "", models.ErrUnauthorized
		}
		return "", storeErr("mark email verified", err)
	}

	s.logger.Info("email verified", slog.String("account_id", token.AccountID))
	s.audit.RecordAccountEvent(ctx, token.AccountID, models.SecurityEventEmailVerified, models.RiskLevelLow, nil)
	return token.AccountID, nil
}

// PurgeExpired drops tokens whose link can no longer be redeemed
func (s *EmailVerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.clock.Now())
}

func (s *EmailVerificationService) issue(ctx context.Context, account *models.Account) error {
	raw := make([]byte, verificationTokenBytes)
	if _, err := io.ReadFull(s.rand, raw); err != nil {
		s.logger.Error("failed to generate verification token", slog.Any("error", err))
		return models.ErrInternalServer
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)

	now := s.clock.Now()
	token := &models.EmailVerificationToken{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		TokenHash: hashVerificationToken(plain),
		Email:     account.Email,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return storeErr("store verification token", err)
	}

	if err := s.sender.SendVerificationEmail(ctx, account.Email, plain, token.ExpiresAt); err != nil {
		s.logger.Error("failed to send verification email",
			slog.String("account_id", account.ID),
			slog.String("email", logger.SanitizedEmail(account.Email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("verification email sent", slog.String("account_id", account.ID))
	return nil
}

func hashVerificationToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
