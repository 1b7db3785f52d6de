//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/authgate/internal/models"
	"github.com/BradenHooton/authgate/internal/repositories"
)

func TestAccountRepository_CreateAndLookup(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewAccountRepository(testDB.DB)

	email, _ := TestAccount("create")
	created, err := repo.Create(ctx, &models.Account{ID: uuid.NewString(), Email: email, PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, email, created.Email)
	assert.Empty(t, created.BackupCodes)

	byEmail, err := repo.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = repo.Create(ctx, &models.Account{ID: uuid.NewString(), Email: email, PasswordHash: "hash"})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_UpdatePersistsMutation(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewAccountRepository(testDB.DB)

	email, password := TestAccount("update")
	account, err := SeedAccount(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	lockedUntil := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Microsecond)
	_, err = repo.Update(ctx, account.ID, func(a *models.Account) error {
		a.FailedAttempts = 5
		a.LockedUntil = &lockedUntil
		a.BackupCodes = []string{"digest-1", "digest-2"}
		a.LastTOTPStep = 42
		return nil
	})
	require.NoError(t, err)

	stored, err := repo.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.FailedAttempts)
	require.NotNil(t, stored.LockedUntil)
	assert.True(t, lockedUntil.Equal(*stored.LockedUntil))
	assert.Equal(t, []string{"digest-1", "digest-2"}, stored.BackupCodes)
	assert.Equal(t, int64(42), stored.LastTOTPStep)
}

func TestAccountRepository_UpdateAbortsOnMutateError(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewAccountRepository(testDB.DB)

	email, password := TestAccount("abort")
	account, err := SeedAccount(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	_, err = repo.Update(ctx, account.ID, func(a *models.Account) error {
		a.FailedAttempts = 3
		return models.ErrConflict
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	stored, err := repo.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedAttempts)
}

func TestAccountRepository_ConcurrentUpdatesSerialize(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewAccountRepository(testDB.DB)

	email, password := TestAccount("concurrent")
	account, err := SeedAccount(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, account.ID, func(a *models.Account) error {
				a.FailedAttempts++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, stored.FailedAttempts)
}

func TestPasskeyRepository_CounterCompareAndSet(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewPasskeyRepository(testDB.DB)

	email, password := TestAccount("passkey")
	account, err := SeedAccount(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	label := "laptop"
	cred := &models.PasskeyCredential{
		ID:           uuid.NewString(),
		CredentialID: []byte{0x01, 0x02, 0x03},
		PublicKey:    []byte{0xa5},
		AccountID:    account.ID,
		SignCount:    7,
		Label:        &label,
		Transports:   []string{"internal", "hybrid"},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, repo.Put(ctx, cred))
	assert.ErrorIs(t, repo.Put(ctx, cred), models.ErrConflict)

	stored, err := repo.GetByCredentialID(ctx, cred.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), stored.SignCount)
	assert.Equal(t, []string{"internal", "hybrid"}, stored.Transports)

	require.NoError(t, repo.UpdateCounter(ctx, cred.CredentialID, 7, 8, time.Now()))
	assert.ErrorIs(t, repo.UpdateCounter(ctx, cred.CredentialID, 7, 9, time.Now()), models.ErrConflict)

	list, err := repo.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(8), list[0].SignCount)
	assert.NotNil(t, list[0].LastUsedAt)

	assert.ErrorIs(t, repo.Delete(ctx, uuid.NewString(), cred.CredentialID), models.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, account.ID, cred.CredentialID))
	_, err = repo.GetByCredentialID(ctx, cred.CredentialID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSecurityEventRepository_ListAndPrune(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewSecurityEventRepository(testDB.DB)

	email, password := TestAccount("events")
	account, err := SeedAccount(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	now := time.Now().UTC()
	old := &models.SecurityEvent{
		ID: uuid.NewString(), AccountID: account.ID, EventType: models.SecurityEventLoginFailed,
		Kind: models.AttemptKindPassword, Result: models.AttemptResultFailure,
		RiskLevel: models.RiskLevelMedium, CreatedAt: now.Add(-100 * 24 * time.Hour),
	}
	recent := &models.SecurityEvent{
		ID: uuid.NewString(), AccountID: account.ID, EventType: models.SecurityEventMFAEnabled,
		RiskLevel: models.RiskLevelLow, Metadata: models.AuditMetadata{"method": "totp"}, CreatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, recent))

	events, err := repo.ListByAccount(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, recent.ID, events[0].ID)
	assert.Equal(t, "totp", events[0].Metadata["method"])
	assert.Empty(t, events[0].Kind)
	assert.Equal(t, models.AttemptKindPassword, events[1].Kind)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err = repo.ListByAccount(ctx, account.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEmailVerificationRepository_RedeemOnceAndPurge(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := repositories.NewEmailVerificationRepository(testDB.DB)

	email, password := TestAccount("verifyrepo")
	account, err := SeedAccount(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	stale := &models.EmailVerificationToken{
		ID: uuid.NewString(), AccountID: account.ID, TokenHash: "stale-hash", Email: email,
		ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-25 * time.Hour),
	}
	fresh := &models.EmailVerificationToken{
		ID: uuid.NewString(), AccountID: account.ID, TokenHash: "fresh-hash", Email: email,
		ExpiresAt: now.Add(23 * time.Hour), CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))

	latest, err := repo.LatestByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, latest.ID)

	found, err := repo.GetByTokenHash(ctx, "fresh-hash")
	require.NoError(t, err)
	assert.Nil(t, found.UsedAt)

	require.NoError(t, repo.MarkUsed(ctx, fresh.ID, now))
	assert.ErrorIs(t, repo.MarkUsed(ctx, fresh.ID, now), models.ErrAlreadyUsed)
	assert.ErrorIs(t, repo.MarkUsed(ctx, uuid.NewString(), now), models.ErrNotFound)

	found, err = repo.GetByTokenHash(ctx, "fresh-hash")
	require.NoError(t, err)
	assert.True(t, found.IsUsed())

	deleted, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByTokenHash(ctx, "stale-hash")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
