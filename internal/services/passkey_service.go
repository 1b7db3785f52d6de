package services

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/google/uuid"
)

const (
	challengeSize       = 32
	DefaultChallengeTTL = 60 * time.Second
	maxLabelLength      = 64
)

// PasskeyService validates WebAuthn registration and authentication ceremonies.
// Browser JSON is decoded by auth.ParseRegistration/ParseAssertion before it
// reaches this service.
type PasskeyService struct {
	codes       CodeStore
	credentials CredentialStore
	cfg         auth.WebAuthnConfig
	rpIDHash    []byte
	clock       auth.Clock
	rand        io.Reader
	logger      *slog.Logger
}

// NewPasskeyService creates a new PasskeyService
func NewPasskeyService(codes CodeStore, credentials CredentialStore, cfg auth.WebAuthnConfig, clock auth.Clock, rand io.Reader, logger *slog.Logger) *PasskeyService {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	return &PasskeyService{
		codes:       codes,
		credentials: credentials,
		cfg:         cfg,
		rpIDHash:    auth.RPIDHash(cfg.RPID),
		clock:       clock,
		rand:        rand,
		logger:      logger,
	}
}

// Config returns the relying party configuration
func (s *PasskeyService) Config() auth.WebAuthnConfig {
	return s.cfg
}

// BeginRegistration issues a registration challenge bound to accountID
func (s *PasskeyService) BeginRegistration(ctx context.Context, accountID string) (*models.Challenge, error) {
	return s.issueChallenge(ctx, models.CeremonyRegistration, accountID)
}

// BeginAuthentication issues an unbound challenge for usernameless passkey login
func (s *PasskeyService) BeginAuthentication(ctx context.Context) (*models.Challenge, error) {
	return s.issueChallenge(ctx, models.CeremonyAuthentication, "")
}

// BeginSecondFactor issues an authentication challenge bound to accountID,
// used when a passkey is presented as the second factor
func (s *PasskeyService) BeginSecondFactor(ctx context.Context, accountID string) (*models.Challenge, error) {
	return s.issueChallenge(ctx, models.CeremonyAuthentication, accountID)
}

func (s *PasskeyService) issueChallenge(ctx context.Context, ceremony, accountID string) (*models.Challenge, error) {
	value, err := auth.RandomBytes(s.rand, challengeSize)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ch := &models.Challenge{
		ID:        uuid.New().String(),
		Value:     value,
		Ceremony:  ceremony,
		AccountID: accountID,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
		CreatedAt: now,
	}
	if err := s.codes.PutChallenge(ctx, ch); err != nil {
		return nil, storeErr("store challenge", err)
	}
	return ch, nil
}

// CompleteRegistration verifies an attestation response and stores the new credential.
// The challenge is consumed before any other check.
func (s *PasskeyService) CompleteRegistration(ctx context.Context, accountID string, resp *models.RegistrationResponse) (*models.PasskeyCredential, error) {
	ch, err := s.ConsumeChallenge(ctx, resp.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch.Ceremony != models.CeremonyRegistration || ch.AccountID != accountID {
		return nil, fmt.Errorf("%w: challenge not issued for this registration", models.ErrCeremonyMismatch)
	}
	if err := s.verifyBinding(ch, auth.ClientDataTypeCreate, resp.Type, resp.Challenge, resp.Origin, resp.RPIDHash, resp.UserPresent); err != nil {
		return nil, err
	}

	if len(resp.CredentialID) == 0 {
		return nil, fmt.Errorf("%w: missing credential id", models.ErrCeremonyMismatch)
	}
	if err := auth.ValidatePublicKey(resp.PublicKey); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCeremonyMismatch, err)
	}

	if _, err := s.credentials.GetByCredentialID(ctx, resp.CredentialID); err == nil {
		return nil, fmt.Errorf("%w: credential already registered", models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, storeErr("lookup credential", err)
	}

	cred := &models.PasskeyCredential{
		ID:           uuid.New().String(),
		CredentialID: resp.CredentialID,
		PublicKey:    resp.PublicKey,
		AccountID:    accountID,
		SignCount:    resp.SignCount,
		Transports:   resp.Transports,
		CreatedAt:    s.clock.Now(),
	}
	if label := strings.TrimSpace(resp.Label); label != "" {
		if len(label) > maxLabelLength {
			label = label[:maxLabelLength]
		}
		cred.Label = &label
	}

	if err := s.credentials.Put(ctx, cred); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: credential already registered", models.ErrConflict)
		}
		return nil, storeErr("store credential", err)
	}

	s.logger.Info("passkey registered", slog.String("account_id", accountID), slog.String("credential", cred.ID))
	return cred, nil
}

// CompleteAuthentication verifies an assertion and advances the signature counter.
// On ErrCounterRegression the result is still returned so the caller knows
// which account to escalate.
func (s *PasskeyService) CompleteAuthentication(ctx context.Context, resp *models.AssertionResponse) (*models.AuthenticationResult, error) {
	ch, err := s.ConsumeChallenge(ctx, resp.ChallengeID)
	if err != nil {
		return nil, err
	}
	if ch.Ceremony != models.CeremonyAuthentication {
		return nil, fmt.Errorf("%w: challenge not issued for authentication", models.ErrCeremonyMismatch)
	}
	if err := s.verifyBinding(ch, auth.ClientDataTypeGet, resp.Type, resp.Challenge, resp.Origin, resp.RPIDHash, resp.UserPresent); err != nil {
		return nil, err
	}

	cred, err := s.credentials.GetByCredentialID(ctx, resp.CredentialID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown credential", models.ErrInvalidCredential)
		}
		return nil, storeErr("lookup credential", err)
	}
	if ch.AccountID != "" && ch.AccountID != cred.AccountID {
		return nil, fmt.Errorf("%w: credential belongs to another account", models.ErrCeremonyMismatch)
	}

	valid, err := auth.VerifyAssertionSignature(cred.PublicKey, resp.SignedData, resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredential, err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: signature verification failed", models.ErrInvalidCredential)
	}

	result := &models.AuthenticationResult{CredentialID: cred.CredentialID, AccountID: cred.AccountID}

	// Authenticators that never count report zero forever
	if !(resp.SignCount > cred.SignCount || (resp.SignCount == 0 && cred.SignCount == 0)) {
		s.logger.Warn("passkey counter regression",
			slog.String("account_id", cred.AccountID),
			slog.Uint64("stored", uint64(cred.SignCount)),
			slog.Uint64("asserted", uint64(resp.SignCount)))
		return result, fmt.Errorf("%w: stored %d, asserted %d", models.ErrCounterRegression, cred.SignCount, resp.SignCount)
	}

	if err := s.credentials.UpdateCounter(ctx, cred.CredentialID, cred.SignCount, resp.SignCount, s.clock.Now()); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Another assertion advanced the counter first
			return result, fmt.Errorf("%w: counter changed concurrently", models.ErrCounterRegression)
		}
		return nil, storeErr("update counter", err)
	}

	return result, nil
}

// ConsumeChallenge marks a challenge used and returns it. Replays fail with
// ErrAlreadyUsed; challenges past their expiry fail with ErrExpired.
func (s *PasskeyService) ConsumeChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing challenge id", models.ErrCeremonyMismatch)
	}

	ch, err := s.codes.GetChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown challenge", models.ErrCeremonyMismatch)
		}
		return nil, storeErr("load challenge", err)
	}

	if err := s.codes.MarkUsed(ctx, id); err != nil {
		if errors.Is(err, models.ErrAlreadyUsed) {
			return nil, fmt.Errorf("%w: challenge replayed", models.ErrAlreadyUsed)
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: challenge expired", models.ErrExpired)
		}
		return nil, storeErr("consume challenge", err)
	}

	if ch.IsExpired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: challenge expired", models.ErrExpired)
	}
	return ch, nil
}

func (s *PasskeyService) verifyBinding(ch *models.Challenge, wantType, gotType, gotChallenge, origin string, rpIDHash []byte, userPresent bool) error {
	if gotType != wantType {
		return fmt.Errorf("%w: client data type %q", models.ErrCeremonyMismatch, gotType)
	}
	if subtle.ConstantTimeCompare([]byte(auth.EncodeChallenge(ch.Value)), []byte(gotChallenge)) != 1 {
		return fmt.Errorf("%w: challenge mismatch", models.ErrCeremonyMismatch)
	}
	if origin != s.cfg.Origin {
		return fmt.Errorf("%w: origin %q", models.ErrCeremonyMismatch, origin)
	}
	if !bytes.Equal(rpIDHash, s.rpIDHash) {
		return fmt.Errorf("%w: relying party id hash", models.ErrCeremonyMismatch)
	}
	if !userPresent {
		return fmt.Errorf("%w: user presence flag not set", models.ErrCeremonyMismatch)
	}
	return nil
}

// CredentialOwner returns the account that registered credentialID
func (s *PasskeyService) CredentialOwner(ctx context.Context, credentialID []byte) (string, error) {
	cred, err := s.credentials.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return "", storeErr("lookup credential", err)
	}
	return cred.AccountID, nil
}

// ListCredentials returns the passkeys registered to an account
func (s *PasskeyService) ListCredentials(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
	creds, err := s.credentials.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("list credentials", err)
	}
	return creds, nil
}

// RevokeCredential deletes one of the account's passkeys
func (s *PasskeyService) RevokeCredential(ctx context.Context, accountID string, credentialID []byte) error {
	if err := s.credentials.Delete(ctx, accountID, credentialID); err != nil {
		return storeErr("delete credential", err)
	}
	s.logger.Info("passkey revoked", slog.String("account_id", accountID))
	return nil
}
