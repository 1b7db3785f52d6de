package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_AccessTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret-key-at-least-32-bytes!!", 15*time.Minute, 5*time.Minute, nil)

	token, err := tm.GenerateAccessToken("acct-1", "user@example.com")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsWrongType(t *testing.T) {
	tm := NewTokenManager("test-secret-key-at-least-32-bytes!!", 15*time.Minute, 5*time.Minute, nil)

	mfaToken, err := tm.GenerateMFAToken("acct-1", "user@example.com")
	require.NoError(t, err)

	_, err = tm.ValidateToken(mfaToken, models.TokenTypeAccess)
	assert.Error(t, err)

	claims, err := tm.ValidateToken(mfaToken, models.TokenTypeMFAPending)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeMFAPending, claims.Type)
}

func TestTokenManager_ExpiryUsesInjectedClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := ClockFunc(func() time.Time { return now })
	tm := NewTokenManager("test-secret-key-at-least-32-bytes!!", 15*time.Minute, 5*time.Minute, clock)

	token, err := tm.GenerateMFAToken("acct-1", "user@example.com")
	require.NoError(t, err)

	now = now.Add(4 * time.Minute)
	_, err = tm.ValidateToken(token, models.TokenTypeMFAPending)
	assert.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = tm.ValidateToken(token, models.TokenTypeMFAPending)
	assert.Error(t, err)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("secret-one-secret-one-secret-one-!!", time.Minute, time.Minute, nil)
	verifier := NewTokenManager("secret-two-secret-two-secret-two-!!", time.Minute, time.Minute, nil)

	token, err := issuer.GenerateAccessToken("acct-1", "user@example.com")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token, models.TokenTypeAccess)
	assert.Error(t, err)
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret-key-at-least-32-bytes!!", time.Minute, time.Minute, nil)

	_, err := tm.ValidateToken("not.a.token", models.TokenTypeAccess)
	assert.Error(t, err)
}
