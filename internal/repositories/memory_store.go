package repositories

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/models"
)

// DefaultCodeGrace is how long expired codes and challenges are retained so a
// late redemption reports expiry instead of not-found
const DefaultCodeGrace = 5 * time.Minute

// MemoryAccountStore keeps accounts in process memory. Update holds the store
// lock for the whole read-modify-write.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	byEmail  map[string]string
	clock    auth.Clock
}

func NewMemoryAccountStore(clock auth.Clock) *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]*models.Account),
		byEmail:  make(map[string]string),
		clock:    clock,
	}
}

func (s *MemoryAccountStore) Get(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return account.Clone(), nil
}

func (s *MemoryAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *MemoryAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(account.Email)
	if _, exists := s.byEmail[key]; exists {
		return nil, models.ErrConflict
	}
	if _, exists := s.accounts[account.ID]; exists {
		return nil, models.ErrConflict
	}

	stored := account.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now()
	}
	stored.UpdatedAt = stored.CreatedAt

	s.accounts[stored.ID] = stored
	s.byEmail[key] = stored.ID
	return stored.Clone(), nil
}

func (s *MemoryAccountStore) Update(ctx context.Context, id string, mutate func(*models.Account) error) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = s.clock.Now()

	s.accounts[id] = working
	return working.Clone(), nil
}

// MemoryCodeStore holds one-time codes and challenges in memory
type MemoryCodeStore struct {
	mu         sync.Mutex
	otps       map[string]*models.OneTimeCode
	challenges map[string]*models.Challenge
	grace      time.Duration
	clock      auth.Clock
}

func NewMemoryCodeStore(clock auth.Clock, grace time.Duration) *MemoryCodeStore {
	if grace <= 0 {
		grace = DefaultCodeGrace
	}
	return &MemoryCodeStore{
		otps:       make(map[string]*models.OneTimeCode),
		challenges: make(map[string]*models.Challenge),
		grace:      grace,
		clock:      clock,
	}
}

func (s *MemoryCodeStore) PutOTP(ctx context.Context, code *models.OneTimeCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.otps[c.ID] = &c
	return nil
}

// ListOTPs returns the codes for subject and purpose, oldest first
func (s *MemoryCodeStore) ListOTPs(ctx context.Context, subject, purpose string) ([]*models.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]*models.OneTimeCode, 0)
	for _, code := range s.otps {
		if code.Subject == subject && code.Purpose == purpose {
			c := *code
			codes = append(codes, &c)
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		return codes[i].CreatedAt.Before(codes[j].CreatedAt)
	})
	return codes, nil
}

func (s *MemoryCodeStore) PutChallenge(ctx context.Context, challenge *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *challenge
	c.Value = append([]byte(nil), challenge.Value...)
	s.challenges[c.ID] = &c
	return nil
}

func (s *MemoryCodeStore) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *challenge
	c.Value = append([]byte(nil), challenge.Value...)
	return &c, nil
}

func (s *MemoryCodeStore) MarkUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.otps[id]; ok {
		if code.Used {
			return models.ErrAlreadyUsed
		}
		code.Used = true
		return nil
	}
	if challenge, ok := s.challenges[id]; ok {
		if challenge.Used {
			return models.ErrAlreadyUsed
		}
		challenge.Used = true
		return nil
	}
	return models.ErrNotFound
}

// PurgeExpired drops records whose grace period has elapsed
func (s *MemoryCodeStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-s.grace)
	var purged int64
	for id, code := range s.otps {
		if code.ExpiresAt.Before(cutoff) {
			delete(s.otps, id)
			purged++
		}
	}
	for id, challenge := range s.challenges {
		if challenge.ExpiresAt.Before(cutoff) {
			delete(s.challenges, id)
			purged++
		}
	}
	return purged, nil
}

// MemoryCredentialStore keeps passkey credentials keyed by credential id
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds map[string]*models.PasskeyCredential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: make(map[string]*models.PasskeyCredential)}
}

func cloneCredential(cred *models.PasskeyCredential) *models.PasskeyCredential {
	c := *cred
	c.CredentialID = append([]byte(nil), cred.CredentialID...)
	c.PublicKey = append([]byte(nil), cred.PublicKey...)
	c.Transports = append([]string(nil), cred.Transports...)
	if cred.LastUsedAt != nil {
		t := *cred.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

func (s *MemoryCredentialStore) Put(ctx context.Context, cred *models.PasskeyCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(cred.CredentialID)
	if _, exists := s.creds[key]; exists {
		return models.ErrConflict
	}
	s.creds[key] = cloneCredential(cred)
	return nil
}

func (s *MemoryCredentialStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[string(credentialID)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneCredential(cred), nil
}

func (s *MemoryCredentialStore) ListByAccount(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds := make([]*models.PasskeyCredential, 0)
	for _, cred := range s.creds {
		if cred.AccountID == accountID {
			creds = append(creds, cloneCredential(cred))
		}
	}
	sort.Slice(creds, func(i, j int) bool {
		if creds[i].CreatedAt.Equal(creds[j].CreatedAt) {
			return bytes.Compare(creds[i].CredentialID, creds[j].CredentialID) < 0
		}
		return creds[i].CreatedAt.Before(creds[j].CreatedAt)
	})
	return creds, nil
}

func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, credentialID []byte, oldCount, newCount uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[string(credentialID)]
	if !ok {
		return models.ErrNotFound
	}
	if cred.SignCount != oldCount {
		return models.ErrConflict
	}
	cred.SignCount = newCount
	cred.LastUsedAt = &usedAt
	return nil
}

func (s *MemoryCredentialStore) Delete(ctx context.Context, accountID string, credentialID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(credentialID)
	cred, ok := s.creds[key]
	if !ok || cred.AccountID != accountID {
		return models.ErrNotFound
	}
	delete(s.creds, key)
	return nil
}

// MemorySecurityEventStore keeps the security event feed in memory
type MemorySecurityEventStore struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func NewMemorySecurityEventStore() *MemorySecurityEventStore {
	return &MemorySecurityEventStore{}
}

func (s *MemorySecurityEventStore) Create(ctx context.Context, event *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	s.events = append(s.events, &e)
	return nil
}

// ListByAccount returns the newest events first
func (s *MemorySecurityEventStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*models.SecurityEvent, 0)
	for i := len(s.events) - 1; i >= 0 && len(events) < limit; i-- {
		if s.events[i].AccountID == accountID {
			e := *s.events[i]
			events = append(events, &e)
		}
	}
	return events, nil
}

func (s *MemorySecurityEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}

// MemoryEmailVerificationStore keeps verification tokens in memory, keyed by id
type MemoryEmailVerificationStore struct {
	mu     sync.Mutex
	tokens map[string]*models.EmailVerificationToken
}

func NewMemoryEmailVerificationStore() *MemoryEmailVerificationStore {
	return &MemoryEmailVerificationStore{tokens: make(map[string]*models.EmailVerificationToken)}
}

func (s *MemoryEmailVerificationStore) Create(ctx context.Context, token *models.EmailVerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tokens {
		if existing.TokenHash == token.TokenHash {
			return models.ErrConflict
		}
	}
	t := *token
	s.tokens[t.ID] = &t
	return nil
}

func (s *MemoryEmailVerificationStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryEmailVerificationStore) LatestByAccount(ctx context.Context, accountID string) (*models.EmailVerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.EmailVerificationToken
	for _, t := range s.tokens {
		if t.AccountID != accountID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (s *MemoryEmailVerificationStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok {
		return models.ErrNotFound
	}
	if t.UsedAt != nil {
		return models.ErrAlreadyUsed
	}
	u := usedAt
	t.UsedAt = &u
	return nil
}

func (s *MemoryEmailVerificationStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}
