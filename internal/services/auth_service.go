package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkgauth "github.com/BradenHooton/authgate/pkg/auth"
	"github.com/google/uuid"
)

// BcryptHasher is the default PasswordHasher
type BcryptHasher struct{}

// Hash returns a bcrypt hash of password
func (BcryptHasher) Hash(password string) (string, error) {
	return pkgauth.HashPassword(password)
}

// Compare returns nil when password matches hash
func (BcryptHasher) Compare(hash, password string) error {
	return pkgauth.ComparePassword(hash, password)
}

// AuthService drives the login state machine:
// anonymous, primary verified, awaiting second factor, authenticated.
// Every failure leaving this service is ErrRateLimited, ErrCounterRegression,
// ErrInvalidCredential or an infrastructure error; the precise cause only
// reaches the audit log.
type AuthService struct {
	accounts AccountStore
	hasher   PasswordHasher
	gate     *RiskGate
	otp      *OTPService
	passkeys *PasskeyService
	tokens   *auth.TokenManager
	audit    *AuditService
	timing   *auth.TimingDelay
	clock    auth.Clock
	logger   *slog.Logger
	verifier *EmailVerificationService
}

// NewAuthService creates a new AuthService
func NewAuthService(
	accounts AccountStore,
	hasher PasswordHasher,
	gate *RiskGate,
	otp *OTPService,
	passkeys *PasskeyService,
	tokens *auth.TokenManager,
	audit *AuditService,
	timing *auth.TimingDelay,
	verifier *EmailVerificationService,
	clock auth.Clock,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		gate:     gate,
		otp:      otp,
		passkeys: passkeys,
		tokens:   tokens,
		audit:    audit,
		timing:   timing,
		clock:    clock,
		logger:   logger,
		verifier: verifier,
	}
}

// Register creates an account after the password passes the strength gate
// and sends the first email verification link
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}

	_, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: account already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, storeErr("lookup account", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	account, err := s.accounts.Create(ctx, &models.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, storeErr("create account", err)
	}

	s.logger.Info("account registered", slog.String("account_id", account.ID))

	// The account exists either way; a lost email can be resent
	if s.verifier != nil {
		if err := s.verifier.SendVerification(ctx, account.ID); err != nil {
			s.logger.Warn("verification email not sent",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
		}
	}
	return account, nil
}

// Login checks the password. Accounts with MFA enabled move to the second
// factor stage; the rest are authenticated immediately.
// On failure the returned result still carries RemainingAttempts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	start := time.Now()
	email = normalizeEmail(email)

	account, err := s.accountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	key := ""
	if account != nil {
		key = account.ID
	}

	decision, err := s.gate.ReserveAttempt(ctx, key)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.recordAttempt(ctx, models.AttemptKindPassword, models.AttemptResultRejectedLocked, key, email, "account locked", 0)
		return s.lockedResult(decision), models.ErrRateLimited
	}

	var cause string
	switch {
	case account == nil:
		cause = "unknown account"
	case s.hasher.Compare(account.PasswordHash, password) != nil:
		cause = "password mismatch"
	}

	if cause != "" {
		s.recordAttempt(ctx, models.AttemptKindPassword, models.AttemptResultFailure, key, email, cause, decision.RemainingAttempts)
		s.timing.WaitFrom(ctx, start, false)
		return &models.LoginResult{RemainingAttempts: decision.RemainingAttempts}, models.ErrInvalidCredential
	}

	if err := s.gate.RecordSuccess(ctx, account.ID); err != nil {
		return nil, err
	}
	s.timing.WaitFrom(ctx, start, true)

	if account.MFAEnabled {
		s.recordAttempt(ctx, models.AttemptKindPassword, models.AttemptResultSuccess, account.ID, email, "", s.gate.Policy().MaxAttempts)
		return s.awaitSecondFactor(ctx, account)
	}
	return s.authenticated(ctx, account, models.AttemptKindPassword)
}

// SendEmailOTP emails a one-time code to the account behind mfaToken
func (s *AuthService) SendEmailOTP(ctx context.Context, mfaToken string) error {
	account, err := s.pendingAccount(ctx, mfaToken)
	if err != nil {
		return err
	}

	decision, err := s.gate.CheckSecondFactorAllowed(ctx, account.ID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return models.ErrRateLimited
	}

	_, err = s.otp.IssueEmailOTP(ctx, account.ID)
	return err
}

// VerifySecondFactor completes the MFA stage with an email code, TOTP code
// or backup code. Failures consume the second-factor budget, which shares the
// account lock with password failures.
func (s *AuthService) VerifySecondFactor(ctx context.Context, mfaToken, method, code string) (*models.LoginResult, error) {
	account, err := s.pendingAccount(ctx, mfaToken)
	if err != nil {
		return nil, err
	}

	var check func(context.Context, string, string) error
	kind := method
	switch method {
	case models.MFAMethodEmailOTP:
		check, kind = s.otp.CheckEmailOTP, models.AttemptKindEmailOTP
	case models.MFAMethodTOTP:
		check, kind = s.otp.CheckTOTP, models.AttemptKindTOTP
	case models.MFAMethodBackupCode:
		check, kind = s.otp.CheckBackupCode, models.AttemptKindBackupCode
	default:
		return nil, models.ErrMFAMethod
	}

	decision, err := s.gate.ReserveSecondFactorAttempt(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.recordAttempt(ctx, kind, models.AttemptResultRejectedLocked, account.ID, account.Email, "account locked", 0)
		return s.lockedResult(decision), models.ErrRateLimited
	}

	if err := check(ctx, account.ID, code); err != nil {
		return s.secondFactorFailure(ctx, account, kind, err, decision)
	}

	if kind == models.AttemptKindBackupCode {
		s.audit.RecordAccountEvent(ctx, account.ID, models.SecurityEventBackupCodeConsumed, models.RiskLevelMedium, nil)
	}
	if err := s.gate.RecordSecondFactorSuccess(ctx, account.ID); err != nil {
		return nil, err
	}
	return s.authenticated(ctx, account, kind)
}

// BeginPasskeySecondFactor issues a challenge bound to the pending account and
// returns the credentials it may be answered with
func (s *AuthService) BeginPasskeySecondFactor(ctx context.Context, mfaToken string) (*models.Challenge, []*models.PasskeyCredential, error) {
	account, err := s.pendingAccount(ctx, mfaToken)
	if err != nil {
		return nil, nil, err
	}

	decision, err := s.gate.CheckSecondFactorAllowed(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, nil, models.ErrRateLimited
	}

	creds, err := s.passkeys.ListCredentials(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(creds) == 0 {
		return nil, nil, models.ErrMFAMethod
	}

	ch, err := s.passkeys.BeginSecondFactor(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}
	return ch, creds, nil
}

// CompletePasskeySecondFactor completes the MFA stage with a passkey assertion
func (s *AuthService) CompletePasskeySecondFactor(ctx context.Context, mfaToken string, resp *models.AssertionResponse) (*models.LoginResult, error) {
	account, err := s.pendingAccount(ctx, mfaToken)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.ReserveSecondFactorAttempt(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.discardChallenge(ctx, resp.ChallengeID)
		s.recordAttempt(ctx, models.AttemptKindPasskey, models.AttemptResultRejectedLocked, account.ID, account.Email, "account locked", 0)
		return s.lockedResult(decision), models.ErrRateLimited
	}

	result, err := s.passkeys.CompleteAuthentication(ctx, resp)
	if err == nil && result.AccountID != account.ID {
		err = fmt.Errorf("%w: passkey belongs to another account", models.ErrCeremonyMismatch)
	}
	if err != nil {
		if errors.Is(err, models.ErrCounterRegression) && result != nil && result.AccountID == account.ID {
			return s.counterRegression(ctx, account, err, decision)
		}
		return s.secondFactorFailure(ctx, account, models.AttemptKindPasskey, err, decision)
	}

	if err := s.gate.RecordSecondFactorSuccess(ctx, account.ID); err != nil {
		return nil, err
	}
	return s.authenticated(ctx, account, models.AttemptKindPasskey)
}

// BeginPasskeyLogin issues an unbound challenge for usernameless login
func (s *AuthService) BeginPasskeyLogin(ctx context.Context) (*models.Challenge, error) {
	return s.passkeys.BeginAuthentication(ctx)
}

// CompletePasskeyLogin authenticates directly from a passkey assertion.
// A passkey satisfies both factors, so no MFA stage follows.
func (s *AuthService) CompletePasskeyLogin(ctx context.Context, resp *models.AssertionResponse) (*models.LoginResult, error) {
	ownerID, err := s.passkeys.CredentialOwner(ctx, resp.CredentialID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	decision, err := s.gate.ReserveAttempt(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.discardChallenge(ctx, resp.ChallengeID)
		s.recordAttempt(ctx, models.AttemptKindPasskey, models.AttemptResultRejectedLocked, ownerID, "", "account locked", 0)
		return s.lockedResult(decision), models.ErrRateLimited
	}

	result, err := s.passkeys.CompleteAuthentication(ctx, resp)
	if err != nil {
		if errors.Is(err, models.ErrCounterRegression) && result != nil {
			account, loadErr := s.accounts.Get(ctx, result.AccountID)
			if loadErr != nil {
				return nil, storeErr("load account", loadErr)
			}
			return s.counterRegression(ctx, account, err, decision)
		}
		if !isCredentialFailure(err) {
			return nil, err
		}

		s.recordAttempt(ctx, models.AttemptKindPasskey, attemptResult(err), ownerID, "", err.Error(), decision.RemainingAttempts)
		return &models.LoginResult{RemainingAttempts: decision.RemainingAttempts}, collapse(err)
	}

	account, err := s.accounts.Get(ctx, result.AccountID)
	if err != nil {
		return nil, storeErr("load account", err)
	}
	if err := s.gate.RecordSuccess(ctx, account.ID); err != nil {
		return nil, err
	}
	if err := s.gate.RecordSecondFactorSuccess(ctx, account.ID); err != nil {
		return nil, err
	}
	return s.authenticated(ctx, account, models.AttemptKindPasskey)
}

func (s *AuthService) awaitSecondFactor(ctx context.Context, account *models.Account) (*models.LoginResult, error) {
	methods := []string{models.MFAMethodEmailOTP}
	if account.HasTOTP() {
		methods = append(methods, models.MFAMethodTOTP)
	}
	if len(account.BackupCodes) > 0 {
		methods = append(methods, models.MFAMethodBackupCode)
	}
	creds, err := s.passkeys.ListCredentials(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if len(creds) > 0 {
		methods = append(methods, models.MFAMethodPasskey)
	}

	decision, err := s.gate.CheckSecondFactorAllowed(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateMFAToken(account.ID, account.Email)
	if err != nil {
		s.logger.Error("failed to generate mfa token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.LoginResult{
		Stage:             models.StageAwaitingSecondFactor,
		AccountID:         account.ID,
		Email:             account.Email,
		RemainingAttempts: decision.RemainingAttempts,
		MFAToken:          token,
		Methods:           methods,
	}, nil
}

func (s *AuthService) authenticated(ctx context.Context, account *models.Account, kind string) (*models.LoginResult, error) {
	token, err := s.tokens.GenerateAccessToken(account.ID, account.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	remaining := s.gate.Policy().MaxAttempts
	s.recordAttempt(ctx, kind, models.AttemptResultSuccess, account.ID, account.Email, "", remaining)

	return &models.LoginResult{
		Stage:             models.StageAuthenticated,
		AccountID:         account.ID,
		Email:             account.Email,
		RemainingAttempts: remaining,
		AccessToken:       token,
		ExpiresIn:         int64(s.tokens.AccessTokenExpiry().Seconds()),
	}, nil
}

// secondFactorFailure reports a failed second factor. The attempt was already
// counted when it was reserved.
func (s *AuthService) secondFactorFailure(ctx context.Context, account *models.Account, kind string, cause error, decision models.RiskDecision) (*models.LoginResult, error) {
	if !isCredentialFailure(cause) {
		return nil, cause
	}

	s.recordAttempt(ctx, kind, attemptResult(cause), account.ID, account.Email, cause.Error(), decision.RemainingAttempts)

	return &models.LoginResult{
		Stage:             models.StageAwaitingSecondFactor,
		AccountID:         account.ID,
		RemainingAttempts: decision.RemainingAttempts,
	}, collapse(cause)
}

// counterRegression escalates a possible cloned passkey. The reserved attempt
// stays counted and a high risk event is written for the account.
func (s *AuthService) counterRegression(ctx context.Context, account *models.Account, cause error, decision models.RiskDecision) (*models.LoginResult, error) {
	s.logger.Warn("possible cloned passkey", slog.String("account_id", account.ID), slog.Any("error", cause))
	s.recordAttempt(ctx, models.AttemptKindPasskey, models.AttemptResultFailure, account.ID, account.Email, cause.Error(), decision.RemainingAttempts)
	s.audit.RecordAccountEvent(ctx, account.ID, models.SecurityEventCounterRegression, models.RiskLevelHigh, models.AuditMetadata{
		"cause": cause.Error(),
	})

	return &models.LoginResult{AccountID: account.ID, RemainingAttempts: decision.RemainingAttempts}, models.ErrCounterRegression
}

// pendingAccount resolves the account behind an MFA-pending token
func (s *AuthService) pendingAccount(ctx context.Context, mfaToken string) (*models.Account, error) {
	claims, err := s.tokens.ValidateToken(mfaToken, models.TokenTypeMFAPending)
	if err != nil {
		s.logger.Info("mfa token rejected", slog.Any("error", err))
		return nil, models.ErrInvalidMFAToken
	}

	account, err := s.accounts.Get(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidMFAToken
		}
		return nil, storeErr("load account", err)
	}
	// MFA was turned off after the token was issued
	if !account.MFAEnabled {
		return nil, models.ErrInvalidMFAToken
	}
	return account, nil
}

func (s *AuthService) accountByEmail(ctx context.Context, email string) (*models.Account, error) {
	if email == "" {
		return nil, nil
	}
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, storeErr("lookup account", err)
	}
	return account, nil
}

// discardChallenge burns a challenge presented while the account is locked
func (s *AuthService) discardChallenge(ctx context.Context, challengeID string) {
	if _, err := s.passkeys.ConsumeChallenge(ctx, challengeID); err != nil && !isCredentialFailure(err) {
		s.logger.Warn("failed to discard challenge", slog.Any("error", err))
	}
}

func (s *AuthService) lockedResult(decision models.RiskDecision) *models.LoginResult {
	result := &models.LoginResult{RemainingAttempts: 0}
	if decision.LockedUntil != nil {
		if wait := decision.LockedUntil.Sub(s.clock.Now()); wait > 0 {
			result.RetryAfter = int64(wait.Round(time.Second).Seconds())
		}
	}
	return result
}

func (s *AuthService) recordAttempt(ctx context.Context, kind, result, accountID, email, cause string, remaining int) {
	s.audit.RecordAttempt(ctx, models.AttemptRecord{
		Kind:      kind,
		Result:    result,
		AccountID: accountID,
		Email:     email,
		Cause:     cause,
		At:        s.clock.Now(),
	}, remaining)
}

// collapse maps an internal failure kind to what callers may see
func collapse(err error) error {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		return models.ErrRateLimited
	case errors.Is(err, models.ErrCounterRegression):
		return models.ErrCounterRegression
	case isCredentialFailure(err):
		return models.ErrInvalidCredential
	default:
		return err
	}
}

func attemptResult(err error) string {
	if errors.Is(err, models.ErrExpired) {
		return models.AttemptResultRejectedExpired
	}
	return models.AttemptResultFailure
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
