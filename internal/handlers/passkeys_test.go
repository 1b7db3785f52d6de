package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPasskeyHandler(svc *MockPasskeyService) (*PasskeyHandler, *MockEventRecorder) {
	events := &MockEventRecorder{}
	svc.Cfg = testWebAuthn()
	return NewPasskeyHandler(svc, events, discardLogger()), events
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestPasskeyBeginRegistration_ExcludesExisting(t *testing.T) {
	svc := &MockPasskeyService{
		ListCredentialsFunc: func(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
			return []*models.PasskeyCredential{{CredentialID: []byte{0x01, 0x02}}}, nil
		},
	}
	h, _ := newPasskeyHandler(svc)

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("POST", "/passkeys/register/begin", nil), "acct-1", "ada@example.com")
	h.BeginRegistration(w, req)

	var resp struct {
		ChallengeID string `json:"challenge_id"`
		PublicKey   struct {
			RP struct {
				ID string `json:"id"`
			} `json:"rp"`
			User struct {
				Name string `json:"name"`
			} `json:"user"`
			ExcludeCredentials []struct {
				ID string `json:"id"`
			} `json:"excludeCredentials"`
		} `json:"publicKey"`
	}
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "ch-1", resp.ChallengeID)
	assert.Equal(t, "auth.example.com", resp.PublicKey.RP.ID)
	assert.Equal(t, "ada@example.com", resp.PublicKey.User.Name)
	require.Len(t, resp.PublicKey.ExcludeCredentials, 1)
	assert.Equal(t, "AQI", resp.PublicKey.ExcludeCredentials[0].ID)
}

func TestPasskeyFinishRegistration_MalformedCredential(t *testing.T) {
	h, events := newPasskeyHandler(&MockPasskeyService{})

	w := httptest.NewRecorder()
	req := WithAuthContext(NewTestRequest(t, "POST", "/passkeys/register/finish", PasskeyRegisterFinishRequest{
		ChallengeID: "8f14e45f-ceea-467f-a8f6-2d6a9b3c1e7b",
		Credential:  json.RawMessage(`{"type":"public-key"}`),
	}), "acct-1", "ada@example.com")
	h.FinishRegistration(w, req)

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Empty(t, events.Events)
}

func TestPasskeyList(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	label := "YubiKey"
	svc := &MockPasskeyService{
		ListCredentialsFunc: func(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
			return []*models.PasskeyCredential{{
				ID: "p-1", CredentialID: []byte{0xca, 0xfe}, PublicKey: []byte{0x01},
				Label: &label, CreatedAt: created,
			}}, nil
		},
	}
	h, _ := newPasskeyHandler(svc)

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("GET", "/passkeys", nil), "acct-1", "ada@example.com")
	h.List(w, req)

	var resp struct {
		Passkeys []PasskeyResponse `json:"passkeys"`
	}
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.Passkeys, 1)
	assert.Equal(t, "yv4", resp.Passkeys[0].CredentialID)
	assert.Equal(t, "YubiKey", *resp.Passkeys[0].Label)
	assert.NotContains(t, w.Body.String(), "public_key")
}

func TestPasskeyRevoke(t *testing.T) {
	var gotID []byte
	svc := &MockPasskeyService{
		RevokeCredentialFunc: func(ctx context.Context, accountID string, credentialID []byte) error {
			assert.Equal(t, "acct-1", accountID)
			gotID = credentialID
			return nil
		},
	}
	h, events := newPasskeyHandler(svc)

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("DELETE", "/passkeys/yv4", nil), "acct-1", "ada@example.com")
	h.Revoke(w, withURLParam(req, "id", "yv4"))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []byte{0xca, 0xfe}, gotID)
	assert.Equal(t, []string{models.SecurityEventPasskeyRevoked}, events.Events)
}

func TestPasskeyRevoke_NotOwned(t *testing.T) {
	svc := &MockPasskeyService{
		RevokeCredentialFunc: func(ctx context.Context, accountID string, credentialID []byte) error {
			return models.ErrNotFound
		},
	}
	h, events := newPasskeyHandler(svc)

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("DELETE", "/passkeys/yv4", nil), "acct-2", "eve@example.com")
	h.Revoke(w, withURLParam(req, "id", "yv4"))

	AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
	assert.Empty(t, events.Events)
}

func TestPasskeyRevoke_InvalidID(t *testing.T) {
	h, _ := newPasskeyHandler(&MockPasskeyService{})

	w := httptest.NewRecorder()
	req := WithAuthContext(httptest.NewRequest("DELETE", "/passkeys/***", nil), "acct-1", "ada@example.com")
	h.Revoke(w, withURLParam(req, "id", "***"))

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
