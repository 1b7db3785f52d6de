package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
)

// DefaultBackupCodeCount is the number of backup codes issued at enrollment
const DefaultBackupCodeCount = 8

// MFAService handles TOTP enrollment and second-factor management
type MFAService struct {
	accounts        AccountStore
	credentials     CredentialStore
	otp             *OTPService
	gate            *RiskGate
	totpMgr         *auth.TOTPManager
	audit           *AuditService
	clock           auth.Clock
	backupCodeCount int
	logger          *slog.Logger
}

// NewMFAService creates a new MFA service
func NewMFAService(
	accounts AccountStore,
	credentials CredentialStore,
	otp *OTPService,
	gate *RiskGate,
	totpMgr *auth.TOTPManager,
	audit *AuditService,
	clock auth.Clock,
	logger *slog.Logger,
) *MFAService {
	return &MFAService{
		accounts:        accounts,
		credentials:     credentials,
		otp:             otp,
		gate:            gate,
		totpMgr:         totpMgr,
		audit:           audit,
		clock:           clock,
		backupCodeCount: DefaultBackupCodeCount,
		logger:          logger,
	}
}

// InitiateSetup generates a TOTP secret and backup codes for the account.
// The secret is stored pending until VerifySetup confirms the first code.
func (s *MFAService) InitiateSetup(ctx context.Context, accountID string) (*models.MFASetupResponse, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, storeErr("load account", err)
	}
	if account.MFAEnabled {
		return nil, fmt.Errorf("%w: mfa already enabled", models.ErrConflict)
	}

	enrollment, err := s.totpMgr.Enroll(account.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, digests, err := s.otp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	_, err = s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		if a.MFAEnabled {
			return fmt.Errorf("%w: mfa already enabled", models.ErrConflict)
		}
		a.MFASecretEncrypted = enrollment.SecretEncrypted
		a.MFASecretNonce = enrollment.SecretNonce
		a.BackupCodes = digests
		a.LastTOTPStep = 0
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		return nil, storeErr("store pending secret", err)
	}

	s.logger.Info("MFA setup initiated", slog.String("account_id", accountID))

	return &models.MFASetupResponse{
		Secret:      enrollment.Secret,
		QRCode:      enrollment.QRCodeDataURL,
		BackupCodes: codes,
	}, nil
}

// VerifySetup checks the first TOTP code from the pending secret and enables MFA
func (s *MFAService) VerifySetup(ctx context.Context, accountID, code string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return storeErr("load account", err)
	}
	if account.MFAEnabled {
		return fmt.Errorf("%w: mfa already enabled", models.ErrConflict)
	}
	if !account.HasTOTP() {
		return fmt.Errorf("%w: no pending enrollment", models.ErrBadRequest)
	}

	secret, err := s.totpMgr.DecryptSecret(account.MFASecretEncrypted, account.MFASecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := s.clock.Now()
	step, ok, err := s.totpMgr.Validate(secret, code, now, account.LastTOTPStep)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("invalid TOTP code during setup", slog.String("account_id", accountID))
		return fmt.Errorf("%w: totp code mismatch", models.ErrInvalidCredential)
	}

	_, err = s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		if a.MFAEnabled {
			return fmt.Errorf("%w: mfa already enabled", models.ErrConflict)
		}
		a.MFAEnabled = true
		a.MFAEnrolledAt = &now
		a.LastTOTPStep = step
		a.MFAFailedAttempts = 0
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return err
		}
		return storeErr("enable mfa", err)
	}

	s.audit.RecordAccountEvent(ctx, accountID, models.SecurityEventMFAEnabled, models.RiskLevelLow, nil)
	return nil
}

// Disable turns MFA off after a current TOTP or backup code proves possession.
// The secret and remaining backup codes are discarded. Wrong codes spend the
// same second-factor budget as the login flow.
func (s *MFAService) Disable(ctx context.Context, accountID, code string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return storeErr("load account", err)
	}
	if !account.MFAEnabled {
		return models.ErrMFANotEnabled
	}

	err = s.confirm(ctx, accountID, code, true)
	if err != nil {
		return err
	}

	_, err = s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		a.MFAEnabled = false
		a.MFAEnrolledAt = nil
		a.MFASecretEncrypted = nil
		a.MFASecretNonce = nil
		a.BackupCodes = nil
		a.LastTOTPStep = 0
		return nil
	})
	if err != nil {
		return storeErr("disable mfa", err)
	}
	if err := s.gate.RecordSecondFactorSuccess(ctx, accountID); err != nil {
		return err
	}

	s.audit.RecordAccountEvent(ctx, accountID, models.SecurityEventMFADisabled, models.RiskLevelMedium, nil)
	return nil
}

// RegenerateBackupCodes replaces every backup code after a current TOTP code.
// The new plaintext codes are returned once.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, storeErr("load account", err)
	}
	if !account.MFAEnabled || !account.HasTOTP() {
		return nil, models.ErrMFANotEnabled
	}

	if err := s.confirm(ctx, accountID, code, false); err != nil {
		return nil, err
	}

	codes, digests, err := s.otp.GenerateBackupCodes(s.backupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	_, err = s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		if !a.MFAEnabled {
			return models.ErrMFANotEnabled
		}
		a.BackupCodes = digests
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrMFANotEnabled) {
			return nil, err
		}
		return nil, storeErr("store backup codes", err)
	}
	if err := s.gate.RecordSecondFactorSuccess(ctx, accountID); err != nil {
		return nil, err
	}

	s.audit.RecordAccountEvent(ctx, accountID, models.SecurityEventBackupCodesRenewed, models.RiskLevelMedium, models.AuditMetadata{
		"count": len(codes),
	})
	return codes, nil
}

// confirm checks a management code against the account's second factors,
// falling back to a backup code when allowBackup is set. The attempt is
// reserved first, so a refused or wrong code never goes unbudgeted.
func (s *MFAService) confirm(ctx context.Context, accountID, code string, allowBackup bool) error {
	decision, err := s.gate.ReserveSecondFactorAttempt(ctx, accountID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return models.ErrRateLimited
	}

	err = s.otp.CheckTOTP(ctx, accountID, code)
	if err != nil && allowBackup && isCredentialFailure(err) {
		err = s.otp.CheckBackupCode(ctx, accountID, code)
	}
	if err != nil {
		if isCredentialFailure(err) {
			s.logger.Warn("invalid code for MFA change",
				slog.String("account_id", accountID),
				slog.Int("remaining_attempts", decision.RemainingAttempts))
			return fmt.Errorf("%w: change not confirmed", models.ErrInvalidCredential)
		}
		return err
	}
	return nil
}

// Status reports the account's second-factor state
func (s *MFAService) Status(ctx context.Context, accountID string) (*models.MFAStatus, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, storeErr("load account", err)
	}

	creds, err := s.credentials.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("list credentials", err)
	}

	status := &models.MFAStatus{
		MFAEnabled:   account.MFAEnabled,
		TOTPEnrolled: account.MFAEnabled && account.HasTOTP(),
		PasskeyCount: len(creds),
		EnrolledAt:   account.MFAEnrolledAt,
	}
	if account.MFAEnabled {
		status.BackupCodesRemaining = len(account.BackupCodes)
	}
	return status, nil
}
