package services

import (
	"context"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
)

// MockAccountStore implements AccountStore for testing
type MockAccountStore struct {
	GetFunc        func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc     func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateFunc     func(ctx context.Context, id string, mutate func(*models.Account) error) (*models.Account, error)
}

func (m *MockAccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountStore) Update(ctx context.Context, id string, mutate func(*models.Account) error) (*models.Account, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, mutate)
	}
	return nil, models.ErrNotFound
}

// MockCodeStore implements CodeStore for testing
type MockCodeStore struct {
	PutOTPFunc       func(ctx context.Context, code *models.OneTimeCode) error
	ListOTPsFunc     func(ctx context.Context, subject, purpose string) ([]*models.OneTimeCode, error)
	PutChallengeFunc func(ctx context.Context, challenge *models.Challenge) error
	GetChallengeFunc func(ctx context.Context, id string) (*models.Challenge, error)
	MarkUsedFunc     func(ctx context.Context, id string) error
}

func (m *MockCodeStore) PutOTP(ctx context.Context, code *models.OneTimeCode) error {
	if m.PutOTPFunc != nil {
		return m.PutOTPFunc(ctx, code)
	}
	return nil
}

func (m *MockCodeStore) ListOTPs(ctx context.Context, subject, purpose string) ([]*models.OneTimeCode, error) {
	if m.ListOTPsFunc != nil {
		return m.ListOTPsFunc(ctx, subject, purpose)
	}
	return []*models.OneTimeCode{}, nil
}

func (m *MockCodeStore) PutChallenge(ctx context.Context, challenge *models.Challenge) error {
	if m.PutChallengeFunc != nil {
		return m.PutChallengeFunc(ctx, challenge)
	}
	return nil
}

func (m *MockCodeStore) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	if m.GetChallengeFunc != nil {
		return m.GetChallengeFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockCodeStore) MarkUsed(ctx context.Context, id string) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id)
	}
	return nil
}

// MockCredentialStore implements CredentialStore for testing
type MockCredentialStore struct {
	PutFunc               func(ctx context.Context, cred *models.PasskeyCredential) error
	GetByCredentialIDFunc func(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error)
	ListByAccountFunc     func(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error)
	UpdateCounterFunc     func(ctx context.Context, credentialID []byte, oldCount, newCount uint32, usedAt time.Time) error
	DeleteFunc            func(ctx context.Context, accountID string, credentialID []byte) error
}

func (m *MockCredentialStore) Put(ctx context.Context, cred *models.PasskeyCredential) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, cred)
	}
	return nil
}

func (m *MockCredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	if m.GetByCredentialIDFunc != nil {
		return m.GetByCredentialIDFunc(ctx, credentialID)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialStore) ListByAccount(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID)
	}
	return []*models.PasskeyCredential{}, nil
}

func (m *MockCredentialStore) UpdateCounter(ctx context.Context, credentialID []byte, oldCount, newCount uint32, usedAt time.Time) error {
	if m.UpdateCounterFunc != nil {
		return m.UpdateCounterFunc(ctx, credentialID, oldCount, newCount, usedAt)
	}
	return nil
}

func (m *MockCredentialStore) Delete(ctx context.Context, accountID string, credentialID []byte) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, accountID, credentialID)
	}
	return nil
}

// MockSecurityEventStore implements SecurityEventStore for testing
type MockSecurityEventStore struct {
	CreateFunc          func(ctx context.Context, event *models.SecurityEvent) error
	ListByAccountFunc   func(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockSecurityEventStore) Create(ctx context.Context, event *models.SecurityEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return nil
}

func (m *MockSecurityEventStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID, limit)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockSecurityEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendOTPEmailFunc          func(ctx context.Context, to, code string, ttl time.Duration) error
	SendVerificationEmailFunc func(ctx context.Context, to, token string, expiresAt time.Time) error
}

func (m *MockEmailSender) SendOTPEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	if m.SendOTPEmailFunc != nil {
		return m.SendOTPEmailFunc(ctx, to, code, ttl)
	}
	return nil
}

func (m *MockEmailSender) SendVerificationEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, to, token, expiresAt)
	}
	return nil
}

// MockEmailVerificationStore implements EmailVerificationStore for testing
type MockEmailVerificationStore struct {
	CreateFunc          func(ctx context.Context, token *models.EmailVerificationToken) error
	GetByTokenHashFunc  func(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error)
	LatestByAccountFunc func(ctx context.Context, accountID string) (*models.EmailVerificationToken, error)
	MarkUsedFunc        func(ctx context.Context, id string, usedAt time.Time) error
	DeleteExpiredFunc   func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockEmailVerificationStore) Create(ctx context.Context, token *models.EmailVerificationToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockEmailVerificationStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailVerificationStore) LatestByAccount(ctx context.Context, accountID string) (*models.EmailVerificationToken, error) {
	if m.LatestByAccountFunc != nil {
		return m.LatestByAccountFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockEmailVerificationStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id, usedAt)
	}
	return nil
}

func (m *MockEmailVerificationStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockPasswordHasher implements PasswordHasher for testing without bcrypt cost
type MockPasswordHasher struct {
	HashFunc    func(password string) (string, error)
	CompareFunc func(hash, password string) error
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	if m.HashFunc != nil {
		return m.HashFunc(password)
	}
	return "hashed:" + password, nil
}

func (m *MockPasswordHasher) Compare(hash, password string) error {
	if m.CompareFunc != nil {
		return m.CompareFunc(hash, password)
	}
	if hash != "hashed:"+password {
		return models.ErrUnauthorized
	}
	return nil
}
