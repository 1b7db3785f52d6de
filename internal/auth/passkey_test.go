package auth

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAssertionSignature(t *testing.T) {
	a := newSoftAuthenticator(t)
	data := []byte("authenticator-data||client-data-hash")
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, a.priv, digest[:])
	require.NoError(t, err)

	ok, err := VerifyAssertionSignature(a.coseKey(), data, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyAssertionSignature(a.coseKey(), []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)

	other := newSoftAuthenticator(t)
	ok, err = VerifyAssertionSignature(other.coseKey(), data, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAssertionSignature_MalformedSignature(t *testing.T) {
	a := newSoftAuthenticator(t)

	ok, err := VerifyAssertionSignature(a.coseKey(), []byte("data"), []byte{0x01, 0x02})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAssertionSignature_BadKey(t *testing.T) {
	_, err := VerifyAssertionSignature([]byte{0xFF}, []byte("data"), []byte("sig"))
	assert.Error(t, err)
}

func TestValidatePublicKey(t *testing.T) {
	a := newSoftAuthenticator(t)
	assert.NoError(t, ValidatePublicKey(a.coseKey()))
	assert.Error(t, ValidatePublicKey([]byte("not cbor")))
}

func TestRPIDHash(t *testing.T) {
	sum := sha256.Sum256([]byte(testRPID))
	assert.Equal(t, sum[:], RPIDHash(testRPID))
}

func TestCreationOptions(t *testing.T) {
	cfg := WebAuthnConfig{RPID: testRPID, RPName: "Authgate", Origin: testOrigin, ChallengeTTL: time.Minute}
	challenge := []byte("0123456789abcdef0123456789abcdef")

	opts := CreationOptions(cfg, challenge, "acct-1", "user@example.com", [][]byte{{1, 2, 3}})

	assert.Equal(t, testRPID, opts.RelyingParty.ID)
	assert.Equal(t, "Authgate", opts.RelyingParty.Name)
	assert.Equal(t, challenge, []byte(opts.Challenge))
	assert.Equal(t, 60000, opts.Timeout)
	require.Len(t, opts.CredentialExcludeList, 1)
	assert.NotEmpty(t, opts.Parameters)
}

func TestRequestOptions_Usernameless(t *testing.T) {
	cfg := WebAuthnConfig{RPID: testRPID, ChallengeTTL: time.Minute}

	opts := RequestOptions(cfg, []byte("challenge"), nil)

	assert.Equal(t, testRPID, opts.RelyingPartyID)
	assert.Empty(t, opts.AllowedCredentials)
}
