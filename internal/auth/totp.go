package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// Backup code alphabet: A-Z 2-9 without the ambiguous 0/O/1/I/L
const backupCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const backupCodeLength = 8

// TOTPConfig controls code generation and the accepted clock-skew window
type TOTPConfig struct {
	Issuer string
	Period uint // seconds per time step
	Skew   uint // adjacent steps accepted on each side
}

// TOTPManager handles TOTP enrollment, secret encryption, and validation
type TOTPManager struct {
	encryptionKey []byte // 32-byte AES-256 key
	issuer        string
	period        uint
	skew          uint
	rand          io.Reader
}

// TOTPEnrollment is the material produced when an account starts TOTP setup
type TOTPEnrollment struct {
	Secret          string // base32, shown to the user once
	QRCodeDataURL   string
	SecretEncrypted []byte
	SecretNonce     []byte
}

// NewTOTPManager creates a new TOTP manager
// encryptionKey must be exactly 32 bytes for AES-256
func NewTOTPManager(encryptionKey []byte, cfg TOTPConfig) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}

	return &TOTPManager{
		encryptionKey: encryptionKey,
		issuer:        cfg.Issuer,
		period:        cfg.Period,
		skew:          cfg.Skew,
		rand:          rand.Reader,
	}, nil
}

// WithRandom replaces the randomness source, for deterministic tests
func (tm *TOTPManager) WithRandom(r io.Reader) *TOTPManager {
	tm.rand = r
	return tm
}

// Enroll generates a new secret, its encrypted form and a QR code for authenticator apps
func (tm *TOTPManager) Enroll(accountEmail string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		Period:      tm.period,
		SecretSize:  32, // 256 bits
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Rand:        tm.rand,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, nonce, err := tm.EncryptSecret([]byte(key.Secret()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("failed to create QR code: %w", err)
	}
	qrImage, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &TOTPEnrollment{
		Secret:          key.Secret(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage),
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
	}, nil
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
// Returns: (encryptedBytes, nonce, error)
func (tm *TOTPManager) EncryptSecret(secretBytes []byte) ([]byte, []byte, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(tm.rand, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, secretBytes, nil), nonce, nil
}

// DecryptSecret decrypts an encrypted TOTP secret
func (tm *TOTPManager) DecryptSecret(encryptedBytes, nonce []byte) (string, error) {
	gcm, err := tm.gcm()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, encryptedBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func (tm *TOTPManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(tm.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func (tm *TOTPManager) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    tm.period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Step returns the time step number containing t
func (tm *TOTPManager) Step(t time.Time) int64 {
	return t.Unix() / int64(tm.period)
}

// GenerateCode returns the code for the step containing t
func (tm *TOTPManager) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, tm.opts())
}

// Validate checks code against every step in the skew window around now.
// Steps at or before lastStep already authenticated and are never accepted again.
// Returns the matched step on success.
func (tm *TOTPManager) Validate(secret, code string, now time.Time, lastStep int64) (int64, bool, error) {
	if len(code) != int(otp.DigitsSix) {
		return 0, false, nil
	}

	current := tm.Step(now)
	skew := int64(tm.skew)
	for offset := -skew; offset <= skew; offset++ {
		step := current + offset
		if step <= lastStep {
			continue
		}

		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*int64(tm.period), 0).UTC(), tm.opts())
		if err != nil {
			return 0, false, fmt.Errorf("failed to generate TOTP code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true, nil
		}
	}

	return 0, false, nil
}

// GenerateBackupCodes generates count random single-use backup codes
func (tm *TOTPManager) GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := 0; i < count; i++ {
		code := make([]byte, backupCodeLength)
		for j := range code {
			idx, err := randomIndex(tm.rand, len(backupCodeCharset))
			if err != nil {
				return nil, err
			}
			code[j] = backupCodeCharset[idx]
		}
		codes[i] = string(code)
	}
	return codes, nil
}

// HashBackupCode returns the SHA-256 hex digest of a normalized backup code.
// Input is upper-cased with spaces and dashes removed.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code)))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
