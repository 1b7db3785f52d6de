package models

import (
	"time"
)

// MFAStatus represents the second-factor state of an account
type MFAStatus struct {
	MFAEnabled           bool       `json:"mfa_enabled"`
	TOTPEnrolled         bool       `json:"totp_enrolled"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	PasskeyCount         int        `json:"passkey_count"`
	EnrolledAt           *time.Time `json:"enrolled_at"`
}

// MFASetupResponse contains setup information for TOTP enrollment.
// The secret and backup codes are shown exactly once.
type MFASetupResponse struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`      // Data URL for QR code
	BackupCodes []string `json:"backup_codes"` // 8 backup codes for recovery
}

// SecurityScore summarizes how well an account is protected
type SecurityScore struct {
	Score           int      `json:"score"`
	MFAEnabled      bool     `json:"mfa_enabled"`
	PasskeyCount    int      `json:"passkey_count"`
	EmailVerified   bool     `json:"email_verified"`
	Recommendations []string `json:"recommendations"`
}
