package models

import (
	"time"
)

// PasskeyCredential is a registered WebAuthn public-key credential
type PasskeyCredential struct {
	ID           string     `json:"id"`
	CredentialID []byte     `json:"credential_id"`
	PublicKey    []byte     `json:"-"` // COSE_Key
	AccountID    string     `json:"account_id"`
	SignCount    uint32     `json:"sign_count"`
	Label        *string    `json:"label,omitempty"`
	Transports   []string   `json:"transports,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// RegistrationResponse is an already-parsed attestation ceremony response
type RegistrationResponse struct {
	ChallengeID  string
	Type         string // client data type, "webauthn.create"
	Challenge    string // base64url challenge echoed in client data
	Origin       string
	RPIDHash     []byte
	UserPresent  bool
	CredentialID []byte
	PublicKey    []byte // COSE_Key from attested credential data
	SignCount    uint32
	Transports   []string
	Label        string
}

// AssertionResponse is an already-parsed assertion ceremony response.
// SignedData is authenticatorData || SHA-256(clientDataJSON).
type AssertionResponse struct {
	ChallengeID  string
	Type         string // client data type, "webauthn.get"
	Challenge    string
	Origin       string
	RPIDHash     []byte
	UserPresent  bool
	CredentialID []byte
	SignCount    uint32
	SignedData   []byte
	Signature    []byte
}

// AuthenticationResult is returned by a successful assertion ceremony
type AuthenticationResult struct {
	CredentialID []byte
	AccountID    string
}
