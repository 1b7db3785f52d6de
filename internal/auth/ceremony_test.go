package auth

import (
	"errors"
	"testing"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistration(t *testing.T) {
	a := newSoftAuthenticator(t)
	challenge := []byte("registration-challenge-32-bytes!")

	resp, err := ParseRegistration("ch-1", "Laptop", a.registrationJSON(challenge))
	require.NoError(t, err)

	assert.Equal(t, "ch-1", resp.ChallengeID)
	assert.Equal(t, ClientDataTypeCreate, resp.Type)
	assert.Equal(t, EncodeChallenge(challenge), resp.Challenge)
	assert.Equal(t, testOrigin, resp.Origin)
	assert.Equal(t, RPIDHash(testRPID), resp.RPIDHash)
	assert.True(t, resp.UserPresent)
	assert.Equal(t, a.credentialID, resp.CredentialID)
	assert.Equal(t, uint32(0), resp.SignCount)
	assert.Equal(t, []string{"internal", "hybrid"}, resp.Transports)
	assert.Equal(t, "Laptop", resp.Label)
	assert.NoError(t, ValidatePublicKey(resp.PublicKey))
}

func TestParseAssertion_SignatureVerifies(t *testing.T) {
	a := newSoftAuthenticator(t)
	a.counter = 7
	challenge := []byte("assertion-challenge-32-bytes!!!!")

	resp, err := ParseAssertion("ch-2", a.assertionJSON(challenge))
	require.NoError(t, err)

	assert.Equal(t, ClientDataTypeGet, resp.Type)
	assert.Equal(t, EncodeChallenge(challenge), resp.Challenge)
	assert.Equal(t, a.credentialID, resp.CredentialID)
	assert.Equal(t, uint32(7), resp.SignCount)
	assert.True(t, resp.UserPresent)

	ok, err := VerifyAssertionSignature(a.coseKey(), resp.SignedData, resp.Signature)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseCeremony_Malformed(t *testing.T) {
	_, err := ParseRegistration("ch", "", []byte(`{"id":""}`))
	assert.True(t, errors.Is(err, models.ErrBadRequest))

	_, err = ParseAssertion("ch", []byte(`not json`))
	assert.True(t, errors.Is(err, models.ErrBadRequest))
}
