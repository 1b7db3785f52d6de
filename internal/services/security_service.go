package services

import (
	"context"

	"github.com/BradenHooton/authgate/internal/models"
)

const (
	scoreBase          = 40
	scoreMFA           = 30
	scorePasskeys      = 30
	scoreEmailVerified = 15
	scoreMax           = 100
)

// SecurityService summarizes account protection
type SecurityService struct {
	accounts    AccountStore
	credentials CredentialStore
}

// NewSecurityService creates a new SecurityService
func NewSecurityService(accounts AccountStore, credentials CredentialStore) *SecurityService {
	return &SecurityService{accounts: accounts, credentials: credentials}
}

// Score rates the account out of 100 and lists what would raise it
func (s *SecurityService) Score(ctx context.Context, accountID string) (*models.SecurityScore, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, storeErr("load account", err)
	}
	creds, err := s.credentials.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr("list credentials", err)
	}

	result := &models.SecurityScore{
		Score:           scoreBase,
		MFAEnabled:      account.MFAEnabled,
		PasskeyCount:    len(creds),
		EmailVerified:   account.EmailVerified,
		Recommendations: []string{},
	}

	if account.MFAEnabled {
		result.Score += scoreMFA
	} else {
		result.Recommendations = append(result.Recommendations, "Enable two-factor authentication")
	}
	if len(creds) > 0 {
		result.Score += scorePasskeys
	} else {
		result.Recommendations = append(result.Recommendations, "Register a passkey")
	}
	if account.EmailVerified {
		result.Score += scoreEmailVerified
	} else {
		result.Recommendations = append(result.Recommendations, "Verify your email address")
	}
	if account.MFAEnabled && len(account.BackupCodes) == 0 {
		result.Recommendations = append(result.Recommendations, "Regenerate backup codes")
	}

	if result.Score > scoreMax {
		result.Score = scoreMax
	}
	return result, nil
}
