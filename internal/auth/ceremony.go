package auth

import (
	"crypto/sha256"
	"fmt"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/go-webauthn/webauthn/protocol"
)

// ParseRegistration decodes a browser PublicKeyCredential returned by
// navigator.credentials.create() into the values the ceremony validator checks.
// Attestation statements are not verified; passkeys are registered with "none" conveyance.
func ParseRegistration(challengeID, label string, credentialJSON []byte) (*models.RegistrationResponse, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(credentialJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed registration response: %v", models.ErrBadRequest, err)
	}

	authData := parsed.Response.AttestationObject.AuthData
	transports := make([]string, 0, len(parsed.Response.Transports))
	for _, t := range parsed.Response.Transports {
		transports = append(transports, string(t))
	}

	return &models.RegistrationResponse{
		ChallengeID:  challengeID,
		Type:         string(parsed.Response.CollectedClientData.Type),
		Challenge:    parsed.Response.CollectedClientData.Challenge,
		Origin:       parsed.Response.CollectedClientData.Origin,
		RPIDHash:     authData.RPIDHash,
		UserPresent:  authData.Flags.UserPresent(),
		CredentialID: authData.AttData.CredentialID,
		PublicKey:    authData.AttData.CredentialPublicKey,
		SignCount:    authData.Counter,
		Transports:   transports,
		Label:        label,
	}, nil
}

// ParseAssertion decodes a browser PublicKeyCredential returned by
// navigator.credentials.get() and assembles the signed payload.
func ParseAssertion(challengeID string, credentialJSON []byte) (*models.AssertionResponse, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(credentialJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed assertion response: %v", models.ErrBadRequest, err)
	}

	raw := parsed.Raw.AssertionResponse
	clientDataHash := sha256.Sum256(raw.ClientDataJSON)
	signedData := make([]byte, 0, len(raw.AuthenticatorData)+len(clientDataHash))
	signedData = append(signedData, raw.AuthenticatorData...)
	signedData = append(signedData, clientDataHash[:]...)

	authData := parsed.Response.AuthenticatorData
	return &models.AssertionResponse{
		ChallengeID:  challengeID,
		Type:         string(parsed.Response.CollectedClientData.Type),
		Challenge:    parsed.Response.CollectedClientData.Challenge,
		Origin:       parsed.Response.CollectedClientData.Origin,
		RPIDHash:     authData.RPIDHash,
		UserPresent:  authData.Flags.UserPresent(),
		CredentialID: parsed.RawID,
		SignCount:    authData.Counter,
		SignedData:   signedData,
		Signature:    parsed.Response.Signature,
	}, nil
}
