package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/require"
)

const (
	flagUserPresent  = 0x01
	flagAttestedData = 0x40
	testRPID         = "auth.example.com"
	testOrigin       = "https://auth.example.com"
)

// softAuthenticator is an in-process P-256 authenticator producing browser-shaped JSON
type softAuthenticator struct {
	t            *testing.T
	priv         *ecdsa.PrivateKey
	credentialID []byte
	counter      uint32
}

func newSoftAuthenticator(t *testing.T) *softAuthenticator {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	id := make([]byte, 16)
	_, err = rand.Read(id)
	require.NoError(t, err)

	return &softAuthenticator{t: t, priv: priv, credentialID: id}
}

func (a *softAuthenticator) coseKey() []byte {
	pub, err := a.priv.PublicKey.ECDH()
	require.NoError(a.t, err)
	raw := pub.Bytes() // 0x04 || X || Y

	key, err := webauthncbor.Marshal(webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: raw[1:33],
		YCoord: raw[33:65],
	})
	require.NoError(a.t, err)
	return key
}

func (a *softAuthenticator) authData(flags byte, attested bool) []byte {
	rpHash := sha256.Sum256([]byte(testRPID))
	data := append([]byte{}, rpHash[:]...)
	data = append(data, flags)
	data = binary.BigEndian.AppendUint32(data, a.counter)

	if attested {
		data = append(data, make([]byte, 16)...) // AAGUID
		data = binary.BigEndian.AppendUint16(data, uint16(len(a.credentialID)))
		data = append(data, a.credentialID...)
		data = append(data, a.coseKey()...)
	}
	return data
}

func clientDataJSON(t *testing.T, typ string, challenge []byte, origin string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"type":      typ,
		"challenge": EncodeChallenge(challenge),
		"origin":    origin,
	})
	require.NoError(t, err)
	return b
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// registrationJSON mimics PublicKeyCredential.toJSON() after navigator.credentials.create()
func (a *softAuthenticator) registrationJSON(challenge []byte) []byte {
	attObj, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": a.authData(flagUserPresent|flagAttestedData, true),
	})
	require.NoError(a.t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(a.credentialID),
		"rawId": b64(a.credentialID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(clientDataJSON(a.t, ClientDataTypeCreate, challenge, testOrigin)),
			"attestationObject": b64(attObj),
			"transports":        []string{"internal", "hybrid"},
		},
	})
	require.NoError(a.t, err)
	return body
}

// assertionJSON mimics PublicKeyCredential.toJSON() after navigator.credentials.get()
func (a *softAuthenticator) assertionJSON(challenge []byte) []byte {
	authData := a.authData(flagUserPresent, false)
	cdj := clientDataJSON(a.t, ClientDataTypeGet, challenge, testOrigin)
	cdHash := sha256.Sum256(cdj)
	digest := sha256.Sum256(append(append([]byte{}, authData...), cdHash[:]...))

	sig, err := ecdsa.SignASN1(rand.Reader, a.priv, digest[:])
	require.NoError(a.t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(a.credentialID),
		"rawId": b64(a.credentialID),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(cdj),
			"authenticatorData": b64(authData),
			"signature":         b64(sig),
		},
	})
	require.NoError(a.t, err)
	return body
}
