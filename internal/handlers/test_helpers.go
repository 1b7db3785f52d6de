package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds access-token claims to the request context
func WithAuthContext(req *http.Request, accountID, email string) *http.Request {
	claims := &models.TokenClaims{
		Type:      models.TokenTypeAccess,
		AccountID: accountID,
		Email:     email,
	}
	return req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response and returns it
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc                    func(ctx context.Context, email, password string) (*models.Account, error)
	LoginFunc                       func(ctx context.Context, email, password string) (*models.LoginResult, error)
	SendEmailOTPFunc                func(ctx context.Context, mfaToken string) error
	VerifySecondFactorFunc          func(ctx context.Context, mfaToken, method, code string) (*models.LoginResult, error)
	BeginPasskeySecondFactorFunc    func(ctx context.Context, mfaToken string) (*models.Challenge, []*models.PasskeyCredential, error)
	CompletePasskeySecondFactorFunc func(ctx context.Context, mfaToken string, resp *models.AssertionResponse) (*models.LoginResult, error)
	BeginPasskeyLoginFunc           func(ctx context.Context) (*models.Challenge, error)
	CompletePasskeyLoginFunc        func(ctx context.Context, resp *models.AssertionResponse) (*models.LoginResult, error)
}

func (m *MockAuthService) Register(ctx context.Context, email, password string) (*models.Account, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password)
	}
	return &models.Account{ID: "acct-1", Email: email}, nil
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return nil, models.ErrInvalidCredential
}

func (m *MockAuthService) SendEmailOTP(ctx context.Context, mfaToken string) error {
	if m.SendEmailOTPFunc != nil {
		return m.SendEmailOTPFunc(ctx, mfaToken)
	}
	return nil
}

func (m *MockAuthService) VerifySecondFactor(ctx context.Context, mfaToken, method, code string) (*models.LoginResult, error) {
	if m.VerifySecondFactorFunc != nil {
		return m.VerifySecondFactorFunc(ctx, mfaToken, method, code)
	}
	return nil, models.ErrInvalidCredential
}

func (m *MockAuthService) BeginPasskeySecondFactor(ctx context.Context, mfaToken string) (*models.Challenge, []*models.PasskeyCredential, error) {
	if m.BeginPasskeySecondFactorFunc != nil {
		return m.BeginPasskeySecondFactorFunc(ctx, mfaToken)
	}
	return nil, nil, models.ErrInvalidMFAToken
}

func (m *MockAuthService) CompletePasskeySecondFactor(ctx context.Context, mfaToken string, resp *models.AssertionResponse) (*models.LoginResult, error) {
	if m.CompletePasskeySecondFactorFunc != nil {
		return m.CompletePasskeySecondFactorFunc(ctx, mfaToken, resp)
	}
	return nil, models.ErrInvalidCredential
}

func (m *MockAuthService) BeginPasskeyLogin(ctx context.Context) (*models.Challenge, error) {
	if m.BeginPasskeyLoginFunc != nil {
		return m.BeginPasskeyLoginFunc(ctx)
	}
	return nil, models.ErrStoreUnavailable
}

func (m *MockAuthService) CompletePasskeyLogin(ctx context.Context, resp *models.AssertionResponse) (*models.LoginResult, error) {
	if m.CompletePasskeyLoginFunc != nil {
		return m.CompletePasskeyLoginFunc(ctx, resp)
	}
	return nil, models.ErrInvalidCredential
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	InitiateSetupFunc         func(ctx context.Context, accountID string) (*models.MFASetupResponse, error)
	VerifySetupFunc           func(ctx context.Context, accountID, code string) error
	DisableFunc               func(ctx context.Context, accountID, code string) error
	RegenerateBackupCodesFunc func(ctx context.Context, accountID, code string) ([]string, error)
	StatusFunc                func(ctx context.Context, accountID string) (*models.MFAStatus, error)
}

func (m *MockMFAService) InitiateSetup(ctx context.Context, accountID string) (*models.MFASetupResponse, error) {
	if m.InitiateSetupFunc != nil {
		return m.InitiateSetupFunc(ctx, accountID)
	}
	return &models.MFASetupResponse{}, nil
}

func (m *MockMFAService) VerifySetup(ctx context.Context, accountID, code string) error {
	if m.VerifySetupFunc != nil {
		return m.VerifySetupFunc(ctx, accountID, code)
	}
	return nil
}

func (m *MockMFAService) Disable(ctx context.Context, accountID, code string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, accountID, code)
	}
	return nil
}

func (m *MockMFAService) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if m.RegenerateBackupCodesFunc != nil {
		return m.RegenerateBackupCodesFunc(ctx, accountID, code)
	}
	return nil, models.ErrInternalServer
}

func (m *MockMFAService) Status(ctx context.Context, accountID string) (*models.MFAStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, accountID)
	}
	return &models.MFAStatus{}, nil
}

// MockEmailVerifier implements EmailVerifier for testing
type MockEmailVerifier struct {
	VerifyEmailFunc func(ctx context.Context, token string) (string, error)
	ResendFunc      func(ctx context.Context, accountID string) error
}

func (m *MockEmailVerifier) VerifyEmail(ctx context.Context, token string) (string, error) {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, token)
	}
	return "", models.ErrUnauthorized
}

func (m *MockEmailVerifier) Resend(ctx context.Context, accountID string) error {
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, accountID)
	}
	return nil
}

// MockPasskeyService implements PasskeyServiceInterface for testing
type MockPasskeyService struct {
	Cfg                      auth.WebAuthnConfig
	BeginRegistrationFunc    func(ctx context.Context, accountID string) (*models.Challenge, error)
	CompleteRegistrationFunc func(ctx context.Context, accountID string, resp *models.RegistrationResponse) (*models.PasskeyCredential, error)
	ListCredentialsFunc      func(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error)
	RevokeCredentialFunc     func(ctx context.Context, accountID string, credentialID []byte) error
}

func (m *MockPasskeyService) Config() auth.WebAuthnConfig {
	return m.Cfg
}

func (m *MockPasskeyService) BeginRegistration(ctx context.Context, accountID string) (*models.Challenge, error) {
	if m.BeginRegistrationFunc != nil {
		return m.BeginRegistrationFunc(ctx, accountID)
	}
	return &models.Challenge{ID: "ch-1", Value: make([]byte, 32), Ceremony: models.CeremonyRegistration, AccountID: accountID}, nil
}

func (m *MockPasskeyService) CompleteRegistration(ctx context.Context, accountID string, resp *models.RegistrationResponse) (*models.PasskeyCredential, error) {
	if m.CompleteRegistrationFunc != nil {
		return m.CompleteRegistrationFunc(ctx, accountID, resp)
	}
	return nil, models.ErrCeremonyMismatch
}

func (m *MockPasskeyService) ListCredentials(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
	if m.ListCredentialsFunc != nil {
		return m.ListCredentialsFunc(ctx, accountID)
	}
	return []*models.PasskeyCredential{}, nil
}

func (m *MockPasskeyService) RevokeCredential(ctx context.Context, accountID string, credentialID []byte) error {
	if m.RevokeCredentialFunc != nil {
		return m.RevokeCredentialFunc(ctx, accountID, credentialID)
	}
	return nil
}

// MockEventRecorder captures account events
type MockEventRecorder struct {
	Events []string
}

func (m *MockEventRecorder) RecordAccountEvent(ctx context.Context, accountID, eventType, riskLevel string, metadata models.AuditMetadata) {
	m.Events = append(m.Events, eventType)
}
