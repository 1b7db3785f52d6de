package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Client data types for the two ceremonies
const (
	ClientDataTypeCreate = string(protocol.CreateCeremony)
	ClientDataTypeGet    = string(protocol.AssertCeremony)
)

// WebAuthnConfig identifies the relying party that passkeys are bound to
type WebAuthnConfig struct {
	RPID         string
	RPName       string
	Origin       string
	ChallengeTTL time.Duration
}

// RPIDHash returns SHA-256 of the relying party id, as it appears in authenticator data
func RPIDHash(rpID string) []byte {
	sum := sha256.Sum256([]byte(rpID))
	return sum[:]
}

// EncodeChallenge encodes challenge bytes the way browsers echo them in clientDataJSON
func EncodeChallenge(challenge []byte) string {
	return base64.RawURLEncoding.EncodeToString(challenge)
}

// ValidatePublicKey checks that a COSE_Key is parseable and uses a supported algorithm
func ValidatePublicKey(coseKey []byte) error {
	if _, err := webauthncose.ParsePublicKey(coseKey); err != nil {
		return fmt.Errorf("unsupported credential public key: %w", err)
	}
	return nil
}

// VerifyAssertionSignature verifies sig over signedData with the stored COSE public key.
// signedData is authenticatorData || SHA-256(clientDataJSON).
func VerifyAssertionSignature(coseKey, signedData, sig []byte) (bool, error) {
	key, err := webauthncose.ParsePublicKey(coseKey)
	if err != nil {
		return false, fmt.Errorf("failed to parse credential public key: %w", err)
	}

	valid, err := webauthncose.VerifySignature(key, signedData, sig)
	if err != nil {
		// Malformed signatures are a failed assertion, not a fault
		return false, nil
	}
	return valid, nil
}

// CreationOptions builds the options a browser passes to navigator.credentials.create()
func CreationOptions(cfg WebAuthnConfig, challenge []byte, accountID, email string, exclude [][]byte) protocol.PublicKeyCredentialCreationOptions {
	excludeList := make([]protocol.CredentialDescriptor, 0, len(exclude))
	for _, id := range exclude {
		excludeList = append(excludeList, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		})
	}

	return protocol.PublicKeyCredentialCreationOptions{
		RelyingParty: protocol.RelyingPartyEntity{
			CredentialEntity: protocol.CredentialEntity{Name: cfg.RPName},
			ID:               cfg.RPID,
		},
		User: protocol.UserEntity{
			CredentialEntity: protocol.CredentialEntity{Name: email},
			DisplayName:      email,
			ID:               protocol.URLEncodedBase64(accountID),
		},
		Challenge: challenge,
		Parameters: []protocol.CredentialParameter{
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgEdDSA},
			{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgRS256},
		},
		Timeout:               int(cfg.ChallengeTTL.Milliseconds()),
		CredentialExcludeList: excludeList,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		},
		Attestation: protocol.PreferNoAttestation,
	}
}

// RequestOptions builds the options a browser passes to navigator.credentials.get().
// allow is empty for usernameless login.
func RequestOptions(cfg WebAuthnConfig, challenge []byte, allow [][]byte) protocol.PublicKeyCredentialRequestOptions {
	allowed := make([]protocol.CredentialDescriptor, 0, len(allow))
	for _, id := range allow {
		allowed = append(allowed, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		})
	}

	return protocol.PublicKeyCredentialRequestOptions{
		Challenge:          challenge,
		Timeout:            int(cfg.ChallengeTTL.Milliseconds()),
		RelyingPartyID:     cfg.RPID,
		AllowedCredentials: allowed,
		UserVerification:   protocol.VerificationPreferred,
	}
}
