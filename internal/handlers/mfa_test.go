package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMFASetup_RequiresAuth(t *testing.T) {
	h := NewMFAHandler(&MockMFAService{}, discardLogger())

	w := httptest.NewRecorder()
	h.Setup(w, httptest.NewRequest("POST", "/mfa/setup", nil))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestMFASetup_ReturnsSecretOnce(t *testing.T) {
	svc := &MockMFAService{
		InitiateSetupFunc: func(ctx context.Context, accountID string) (*models.MFASetupResponse, error) {
			assert.Equal(t, "acct-1", accountID)
			return &models.MFASetupResponse{
				Secret:      "JBSWY3DPEHPK3PXP",
				QRCode:      "data:image/png;base64,AAAA",
				BackupCodes: []string{"ABCD2345", "EFGH6789"},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("POST", "/mfa/setup", nil), "acct-1", "ada@example.com")
	NewMFAHandler(svc, discardLogger()).Setup(w, req)

	var resp models.MFASetupResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", resp.Secret)
	assert.Len(t, resp.BackupCodes, 2)
}

func TestMFASetup_AlreadyEnabled(t *testing.T) {
	svc := &MockMFAService{
		InitiateSetupFunc: func(ctx context.Context, accountID string) (*models.MFASetupResponse, error) {
			return nil, fmt.Errorf("%w: mfa already enabled", models.ErrConflict)
		},
	}

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("POST", "/mfa/setup", nil), "acct-1", "ada@example.com")
	NewMFAHandler(svc, discardLogger()).Setup(w, req)

	AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestMFAVerifySetup(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"enabled", "123456", nil, http.StatusOK, ""},
		{"wrong code", "123456", fmt.Errorf("%w: totp code mismatch", models.ErrInvalidCredential), http.StatusUnauthorized, "unauthorized"},
		{"no pending enrollment", "123456", fmt.Errorf("%w: no pending enrollment", models.ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{"non numeric code", "12345a", nil, http.StatusBadRequest, "bad_request"},
		{"short code", "12345", nil, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockMFAService{
				VerifySetupFunc: func(ctx context.Context, accountID, code string) error {
					return tt.err
				},
			}

			w := httptest.NewRecorder()
			req := WithAuthContext(NewTestRequest(t, "POST", "/mfa/setup/verify", VerifyMFASetupRequest{Code: tt.code}), "acct-1", "ada@example.com")
			NewMFAHandler(svc, discardLogger()).VerifySetup(w, req)

			if tt.wantCode == "" {
				AssertJSONResponse(t, w, tt.wantStatus, nil)
				return
			}
			AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestMFADisable_NotEnabled(t *testing.T) {
	svc := &MockMFAService{
		DisableFunc: func(ctx context.Context, accountID, code string) error {
			return models.ErrMFANotEnabled
		},
	}

	w := httptest.NewRecorder()
	req := WithAuthContext(NewTestRequest(t, "POST", "/mfa/disable", DisableMFARequest{Code: "123456"}), "acct-1", "ada@example.com")
	NewMFAHandler(svc, discardLogger()).Disable(w, req)

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestMFAStatus(t *testing.T) {
	svc := &MockMFAService{
		StatusFunc: func(ctx context.Context, accountID string) (*models.MFAStatus, error) {
			return &models.MFAStatus{MFAEnabled: true, TOTPEnrolled: true, BackupCodesRemaining: 7}, nil
		},
	}

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("GET", "/mfa/status", nil), "acct-1", "ada@example.com")
	NewMFAHandler(svc, discardLogger()).Status(w, req)

	var status models.MFAStatus
	AssertJSONResponse(t, w, http.StatusOK, &status)
	assert.True(t, status.MFAEnabled)
	assert.Equal(t, 7, status.BackupCodesRemaining)
}

func TestMFARegenerateBackupCodes(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"regenerated", "123456", nil, http.StatusOK, ""},
		{"wrong code", "123456", fmt.Errorf("%w: change not confirmed", models.ErrInvalidCredential), http.StatusUnauthorized, "unauthorized"},
		{"budget spent", "123456", models.ErrRateLimited, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"mfa off", "123456", models.ErrMFANotEnabled, http.StatusBadRequest, "bad_request"},
		{"backup code not accepted", "ABCD2345", nil, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockMFAService{
				RegenerateBackupCodesFunc: func(ctx context.Context, accountID, code string) ([]string, error) {
					assert.Equal(t, "acct-1", accountID)
					if tt.err != nil {
						return nil, tt.err
					}
					return []string{"ABCD2345", "EFGH6789"}, nil
				},
			}

			w := httptest.NewRecorder()
			req := WithAuthContext(NewTestRequest(t, "POST", "/mfa/backup-codes", RegenerateBackupCodesRequest{Code: tt.code}), "acct-1", "ada@example.com")
			NewMFAHandler(svc, discardLogger()).RegenerateBackupCodes(w, req)

			if tt.wantCode == "" {
				var resp BackupCodesResponse
				AssertJSONResponse(t, w, tt.wantStatus, &resp)
				assert.Equal(t, []string{"ABCD2345", "EFGH6789"}, resp.BackupCodes)
				return
			}
			AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}
