package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/google/uuid"
)

// DefaultOTPTTL is how long an emailed code stays redeemable
const DefaultOTPTTL = 10 * time.Minute

// OTPService issues and verifies email codes, TOTP codes and backup codes.
// The Verify* methods answer with a boolean only; the Check* methods return
// the precise failure kind for internal logging and are what the orchestrator uses.
type OTPService struct {
	codes    CodeStore
	accounts AccountStore
	sender   OTPSender
	totp     *auth.TOTPManager
	clock    auth.Clock
	rand     io.Reader
	ttl      time.Duration
	logger   *slog.Logger
}

// NewOTPService creates a new OTPService
func NewOTPService(codes CodeStore, accounts AccountStore, sender OTPSender, totp *auth.TOTPManager, clock auth.Clock, rand io.Reader, ttl time.Duration, logger *slog.Logger) *OTPService {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{
		codes:    codes,
		accounts: accounts,
		sender:   sender,
		totp:     totp,
		clock:    clock,
		rand:     rand,
		ttl:      ttl,
		logger:   logger,
	}
}

// IssueEmailOTP generates a fresh 6-digit code for the account, stores it
// unused and emails it. Older unused codes stay valid until their own expiry.
func (s *OTPService) IssueEmailOTP(ctx context.Context, key string) (*models.OneTimeCode, error) {
	account, err := s.accounts.Get(ctx, key)
	if err != nil {
		return nil, storeErr("load account", err)
	}

	value, err := auth.RandomNumericCode(s.rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := s.clock.Now()
	code := &models.OneTimeCode{
		ID:        uuid.New().String(),
		Code:      value,
		Subject:   account.ID,
		Purpose:   models.OTPPurposeEmail,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.codes.PutOTP(ctx, code); err != nil {
		return nil, storeErr("store code", err)
	}

	if s.sender != nil {
		if err := s.sender.SendOTPEmail(ctx, account.Email, code.Code, s.ttl); err != nil {
			s.logger.Error("failed to send otp email", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, fmt.Errorf("failed to send code: %w", err)
		}
	}

	s.logger.Info("email otp issued", slog.String("account_id", account.ID), slog.Time("expires_at", code.ExpiresAt))
	return code, nil
}

// VerifyEmailOTP reports whether code redeems an unused, unexpired email code
func (s *OTPService) VerifyEmailOTP(ctx context.Context, key, code string) (bool, error) {
	return verdict(s.CheckEmailOTP(ctx, key, code))
}

// VerifyTOTP reports whether code is valid for the account's TOTP secret
func (s *OTPService) VerifyTOTP(ctx context.Context, key, code string) (bool, error) {
	return verdict(s.CheckTOTP(ctx, key, code))
}

// VerifyBackupCode reports whether code was an unused backup code, consuming it
func (s *OTPService) VerifyBackupCode(ctx context.Context, key, code string) (bool, error) {
	return verdict(s.CheckBackupCode(ctx, key, code))
}

// CheckEmailOTP redeems an email code. Every stored code for the subject is
// compared so the time taken does not depend on which one matched.
// Expired and unknown codes both surface as ErrExpired or ErrInvalidCredential
// internally and are collapsed by the caller.
func (s *OTPService) CheckEmailOTP(ctx context.Context, key, code string) error {
	records, err := s.codes.ListOTPs(ctx, key, models.OTPPurposeEmail)
	if err != nil {
		return storeErr("list codes", err)
	}

	now := s.clock.Now()
	var match, expiredMatch, usedMatch *models.OneTimeCode
	for _, r := range records {
		if subtle.ConstantTimeCompare([]byte(r.Code), []byte(code)) != 1 {
			continue
		}
		switch {
		case r.Used:
			usedMatch = r
		case r.IsExpired(now):
			expiredMatch = r
		case match == nil:
			match = r
		}
	}

	if match == nil {
		switch {
		case expiredMatch != nil:
			return fmt.Errorf("%w: email code past expiry", models.ErrExpired)
		case usedMatch != nil:
			return fmt.Errorf("%w: email code already redeemed", models.ErrAlreadyUsed)
		default:
			return fmt.Errorf("%w: no matching email code", models.ErrInvalidCredential)
		}
	}

	if err := s.codes.MarkUsed(ctx, match.ID); err != nil {
		if errors.Is(err, models.ErrAlreadyUsed) {
			return fmt.Errorf("%w: email code redeemed concurrently", models.ErrAlreadyUsed)
		}
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: email code expired before redemption", models.ErrExpired)
		}
		return storeErr("mark code used", err)
	}
	return nil
}

// CheckTOTP validates a TOTP code and advances the account's replay guard
// to the matched time step
func (s *OTPService) CheckTOTP(ctx context.Context, key, code string) error {
	account, err := s.accounts.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: unknown account", models.ErrInvalidCredential)
		}
		return storeErr("load account", err)
	}
	if !account.HasTOTP() {
		return fmt.Errorf("%w: totp not enrolled", models.ErrInvalidCredential)
	}

	secret, err := s.totp.DecryptSecret(account.MFASecretEncrypted, account.MFASecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt totp secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return fmt.Errorf("failed to decrypt totp secret: %w", err)
	}

	step, ok, err := s.totp.Validate(secret, code, s.clock.Now(), account.LastTOTPStep)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: totp code mismatch", models.ErrInvalidCredential)
	}

	_, err = s.accounts.Update(ctx, account.ID, func(a *models.Account) error {
		if step <= a.LastTOTPStep {
			return fmt.Errorf("%w: totp step already used", models.ErrAlreadyUsed)
		}
		a.LastTOTPStep = step
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyUsed) {
			return err
		}
		return storeErr("record totp step", err)
	}
	return nil
}

// CheckBackupCode removes the matching digest from the account's backup set
// in one atomic update
func (s *OTPService) CheckBackupCode(ctx context.Context, key, code string) error {
	digest := []byte(auth.HashBackupCode(code))

	_, err := s.accounts.Update(ctx, key, func(a *models.Account) error {
		idx := -1
		for i, stored := range a.BackupCodes {
			if subtle.ConstantTimeCompare([]byte(stored), digest) == 1 && idx < 0 {
				idx = i
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: no matching backup code", models.ErrInvalidCredential)
		}
		a.BackupCodes = append(a.BackupCodes[:idx:idx], a.BackupCodes[idx+1:]...)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredential):
			return err
		case errors.Is(err, models.ErrNotFound):
			return fmt.Errorf("%w: unknown account", models.ErrInvalidCredential)
		default:
			return storeErr("consume backup code", err)
		}
	}

	s.logger.Info("backup code consumed", slog.String("account_id", key))
	return nil
}

// GenerateBackupCodes returns count fresh codes and their digests for storage
func (s *OTPService) GenerateBackupCodes(count int) ([]string, []string, error) {
	codes, err := s.totp.GenerateBackupCodes(count)
	if err != nil {
		return nil, nil, err
	}
	digests := make([]string, len(codes))
	for i, c := range codes {
		digests[i] = auth.HashBackupCode(c)
	}
	return codes, digests, nil
}

// verdict converts a Check* result into the boolean contract.
// Only infrastructure faults are returned as errors.
func verdict(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if isCredentialFailure(err) {
		return false, nil
	}
	return false, err
}

// isCredentialFailure reports whether err is a normal verification outcome
// rather than a fault
func isCredentialFailure(err error) bool {
	return errors.Is(err, models.ErrInvalidCredential) ||
		errors.Is(err, models.ErrExpired) ||
		errors.Is(err, models.ErrAlreadyUsed) ||
		errors.Is(err, models.ErrCeremonyMismatch) ||
		errors.Is(err, models.ErrCounterRegression)
}

// storeErr tags store failures as ErrStoreUnavailable, leaving ErrNotFound intact
func storeErr(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
}
