package services

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/require"
)

const (
	testRPID   = "auth.example.com"
	testOrigin = "https://auth.example.com"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock shared by a test and the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// accountFixture is a map-backed MockAccountStore with per-store locking
type accountFixture struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	store    *MockAccountStore
}

func newAccountFixture(accounts ...*models.Account) *accountFixture {
	f := &accountFixture{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		f.accounts[a.ID] = a.Clone()
	}

	f.store = &MockAccountStore{
		GetFunc: func(ctx context.Context, id string) (*models.Account, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			a, ok := f.accounts[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			return a.Clone(), nil
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, a := range f.accounts {
				if a.Email == email {
					return a.Clone(), nil
				}
			}
			return nil, models.ErrNotFound
		},
		CreateFunc: func(ctx context.Context, account *models.Account) (*models.Account, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, a := range f.accounts {
				if a.Email == account.Email {
					return nil, models.ErrConflict
				}
			}
			f.accounts[account.ID] = account.Clone()
			return account.Clone(), nil
		},
		UpdateFunc: func(ctx context.Context, id string, mutate func(*models.Account) error) (*models.Account, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			a, ok := f.accounts[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			next := a.Clone()
			if err := mutate(next); err != nil {
				return nil, err
			}
			f.accounts[id] = next
			return next.Clone(), nil
		},
	}
	return f
}

func (f *accountFixture) get(t *testing.T, id string) *models.Account {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	require.True(t, ok, "account %s not found", id)
	return a.Clone()
}

// verificationFixture is a map-backed MockEmailVerificationStore
type verificationFixture struct {
	mu     sync.Mutex
	tokens map[string]*models.EmailVerificationToken
	store  *MockEmailVerificationStore
}

func newVerificationFixture() *verificationFixture {
	f := &verificationFixture{tokens: make(map[string]*models.EmailVerificationToken)}
	f.store = &MockEmailVerificationStore{
		CreateFunc: func(ctx context.Context, token *models.EmailVerificationToken) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			t := *token
			f.tokens[t.ID] = &t
			return nil
		},
		GetByTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, t := range f.tokens {
				if t.TokenHash == tokenHash {
					c := *t
					return &c, nil
				}
			}
			return nil, models.ErrNotFound
		},
		LatestByAccountFunc: func(ctx context.Context, accountID string) (*models.EmailVerificationToken, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var latest *models.EmailVerificationToken
			for _, t := range f.tokens {
				if t.AccountID == accountID && (latest == nil || t.CreatedAt.After(latest.CreatedAt)) {
					latest = t
				}
			}
			if latest == nil {
				return nil, models.ErrNotFound
			}
			c := *latest
			return &c, nil
		},
		MarkUsedFunc: func(ctx context.Context, id string, usedAt time.Time) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			t, ok := f.tokens[id]
			if !ok {
				return models.ErrNotFound
			}
			if t.UsedAt != nil {
				return models.ErrAlreadyUsed
			}
			t.UsedAt = &usedAt
			return nil
		},
		DeleteExpiredFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var n int64
			for id, t := range f.tokens {
				if t.ExpiresAt.Before(cutoff) {
					delete(f.tokens, id)
					n++
				}
			}
			return n, nil
		},
	}
	return f
}

// codeFixture is a map-backed MockCodeStore
type codeFixture struct {
	mu         sync.Mutex
	otps       map[string]*models.OneTimeCode
	challenges map[string]*models.Challenge
	store      *MockCodeStore
}

func newCodeFixture() *codeFixture {
	f := &codeFixture{
		otps:       make(map[string]*models.OneTimeCode),
		challenges: make(map[string]*models.Challenge),
	}

	f.store = &MockCodeStore{
		PutOTPFunc: func(ctx context.Context, code *models.OneTimeCode) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			c := *code
			f.otps[code.ID] = &c
			return nil
		},
		ListOTPsFunc: func(ctx context.Context, subject, purpose string) ([]*models.OneTimeCode, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			out := []*models.OneTimeCode{}
			for _, c := range f.otps {
				if c.Subject == subject && c.Purpose == purpose {
					cp := *c
					out = append(out, &cp)
				}
			}
			return out, nil
		},
		PutChallengeFunc: func(ctx context.Context, ch *models.Challenge) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			c := *ch
			f.challenges[ch.ID] = &c
			return nil
		},
		GetChallengeFunc: func(ctx context.Context, id string) (*models.Challenge, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			ch, ok := f.challenges[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			c := *ch
			return &c, nil
		},
		MarkUsedFunc: func(ctx context.Context, id string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.otps[id]; ok {
				if c.Used {
					return models.ErrAlreadyUsed
				}
				c.Used = true
				return nil
			}
			if ch, ok := f.challenges[id]; ok {
				if ch.Used {
					return models.ErrAlreadyUsed
				}
				ch.Used = true
				return nil
			}
			return models.ErrNotFound
		},
	}
	return f
}

// credentialFixture is a map-backed MockCredentialStore
type credentialFixture struct {
	mu    sync.Mutex
	creds []*models.PasskeyCredential
	store *MockCredentialStore
}

func newCredentialFixture() *credentialFixture {
	f := &credentialFixture{}

	f.store = &MockCredentialStore{
		PutFunc: func(ctx context.Context, cred *models.PasskeyCredential) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, c := range f.creds {
				if bytes.Equal(c.CredentialID, cred.CredentialID) {
					return models.ErrConflict
				}
			}
			c := *cred
			f.creds = append(f.creds, &c)
			return nil
		},
		GetByCredentialIDFunc: func(ctx context.Context, id []byte) (*models.PasskeyCredential, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, c := range f.creds {
				if bytes.Equal(c.CredentialID, id) {
					cp := *c
					return &cp, nil
				}
			}
			return nil, models.ErrNotFound
		},
		ListByAccountFunc: func(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			out := []*models.PasskeyCredential{}
			for _, c := range f.creds {
				if c.AccountID == accountID {
					cp := *c
					out = append(out, &cp)
				}
			}
			return out, nil
		},
		UpdateCounterFunc: func(ctx context.Context, id []byte, oldCount, newCount uint32, usedAt time.Time) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, c := range f.creds {
				if bytes.Equal(c.CredentialID, id) {
					if c.SignCount != oldCount {
						return models.ErrConflict
					}
					c.SignCount = newCount
					c.LastUsedAt = &usedAt
					return nil
				}
			}
			return models.ErrNotFound
		},
		DeleteFunc: func(ctx context.Context, accountID string, id []byte) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			for i, c := range f.creds {
				if c.AccountID == accountID && bytes.Equal(c.CredentialID, id) {
					f.creds = append(f.creds[:i], f.creds[i+1:]...)
					return nil
				}
			}
			return models.ErrNotFound
		},
	}
	return f
}

func (f *credentialFixture) counter(t *testing.T, id []byte) uint32 {
	t.Helper()
	cred, err := f.store.GetByCredentialID(context.Background(), id)
	require.NoError(t, err)
	return cred.SignCount
}

// testPasskey holds a P-256 key and produces already-parsed ceremony responses
type testPasskey struct {
	t            *testing.T
	priv         *ecdsa.PrivateKey
	credentialID []byte
	counter      uint32
}

func newTestPasskey(t *testing.T) *testPasskey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	id := make([]byte, 16)
	_, err = rand.Read(id)
	require.NoError(t, err)

	return &testPasskey{t: t, priv: priv, credentialID: id}
}

func (p *testPasskey) coseKey() []byte {
	pub, err := p.priv.PublicKey.ECDH()
	require.NoError(p.t, err)
	raw := pub.Bytes()

	key, err := webauthncbor.Marshal(webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: raw[1:33],
		YCoord: raw[33:65],
	})
	require.NoError(p.t, err)
	return key
}

func (p *testPasskey) register(ch *models.Challenge) *models.RegistrationResponse {
	return &models.RegistrationResponse{
		ChallengeID:  ch.ID,
		Type:         auth.ClientDataTypeCreate,
		Challenge:    auth.EncodeChallenge(ch.Value),
		Origin:       testOrigin,
		RPIDHash:     auth.RPIDHash(testRPID),
		UserPresent:  true,
		CredentialID: p.credentialID,
		PublicKey:    p.coseKey(),
		SignCount:    p.counter,
		Label:        "Laptop",
	}
}

// assert signs the challenge with the current counter value
func (p *testPasskey) assert(ch *models.Challenge) *models.AssertionResponse {
	rpHash := auth.RPIDHash(testRPID)
	authData := append([]byte{}, rpHash...)
	authData = append(authData, 0x01)
	authData = binary.BigEndian.AppendUint32(authData, p.counter)

	clientData := sha256.Sum256([]byte(`{"type":"webauthn.get","challenge":"` + auth.EncodeChallenge(ch.Value) + `","origin":"` + testOrigin + `"}`))
	signed := append(append([]byte{}, authData...), clientData[:]...)

	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, p.priv, digest[:])
	require.NoError(p.t, err)

	return &models.AssertionResponse{
		ChallengeID:  ch.ID,
		Type:         auth.ClientDataTypeGet,
		Challenge:    auth.EncodeChallenge(ch.Value),
		Origin:       testOrigin,
		RPIDHash:     rpHash,
		UserPresent:  true,
		CredentialID: p.credentialID,
		SignCount:    p.counter,
		SignedData:   signed,
		Signature:    sig,
	}
}

func testWebAuthnConfig() auth.WebAuthnConfig {
	return auth.WebAuthnConfig{
		RPID:         testRPID,
		RPName:       "Auth Example",
		Origin:       testOrigin,
		ChallengeTTL: DefaultChallengeTTL,
	}
}

func testTOTPManager(t *testing.T) *auth.TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := auth.NewTOTPManager(key, auth.TOTPConfig{Issuer: "AuthGate"})
	require.NoError(t, err)
	return tm
}

// enrollTOTP stores an encrypted secret on the account and returns the plain secret
func enrollTOTP(t *testing.T, tm *auth.TOTPManager, account *models.Account) string {
	t.Helper()
	enrollment, err := tm.Enroll(account.Email)
	require.NoError(t, err)
	account.MFAEnabled = true
	account.MFASecretEncrypted = enrollment.SecretEncrypted
	account.MFASecretNonce = enrollment.SecretNonce
	return enrollment.Secret
}
