package models

import "time"

// OTP purposes
const (
	OTPPurposeEmail = "email_otp"
)

// OneTimeCode is an emailed 6-digit code. It is consumed on first successful
// verification; issuing a newer code does not invalidate older ones.
type OneTimeCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Subject   string    `json:"subject"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired checks if the code has expired at now
func (c *OneTimeCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsValid checks if the code can still be redeemed at now
func (c *OneTimeCode) IsValid(now time.Time) bool {
	return !c.Used && !c.IsExpired(now)
}

// Ceremony types
const (
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"
)

// Challenge is a single-use WebAuthn challenge. AccountID is set for
// registration and for passkeys used as a second factor; it is empty for
// usernameless passkey login.
type Challenge struct {
	ID        string    `json:"id"`
	Value     []byte    `json:"value"`
	Ceremony  string    `json:"ceremony"`
	AccountID string    `json:"account_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired checks if the challenge has expired at now
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
