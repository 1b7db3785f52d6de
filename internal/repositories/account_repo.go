package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const accountColumns = `id, email, password_hash, email_verified, failed_attempts, mfa_failed_attempts,
	locked_until, last_login_at, mfa_enabled, mfa_secret_encrypted, mfa_secret_nonce,
	mfa_enrolled_at, last_totp_step, backup_codes, created_at, updated_at`

// AccountRepository stores account risk and MFA state in Postgres
type AccountRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var backupCodes []string

	err := scanner.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.EmailVerified,
		&account.FailedAttempts, &account.MFAFailedAttempts,
		&account.LockedUntil, &account.LastLoginAt, &account.MFAEnabled,
		&account.MFASecretEncrypted, &account.MFASecretNonce, &account.MFAEnrolledAt,
		&account.LastTOTPStep, pq.Array(&backupCodes), &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.BackupCodes = backupCodes
	return &account, nil
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	query := `
		INSERT INTO accounts (id, email, password_hash, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.EmailVerified,
		account.CreatedAt, account.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update locks the row with SELECT ... FOR UPDATE, applies mutate and writes
// the result back in the same transaction
func (r *AccountRepository) Update(ctx context.Context, id string, mutate func(*models.Account) error) (*models.Account, error) {
	var updated *models.Account

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
		account, err := scanAccountRow(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}

		if err := mutate(account); err != nil {
			return err
		}
		account.UpdatedAt = time.Now()

		update := `
			UPDATE accounts SET
				email_verified = $2, failed_attempts = $3, mfa_failed_attempts = $4,
				locked_until = $5, last_login_at = $6, mfa_enabled = $7,
				mfa_secret_encrypted = $8, mfa_secret_nonce = $9, mfa_enrolled_at = $10,
				last_totp_step = $11, backup_codes = $12, updated_at = $13
			WHERE id = $1
		`
		backupCodes := account.BackupCodes
		if backupCodes == nil {
			backupCodes = []string{}
		}
		_, err = tx.Exec(ctx, update,
			account.ID, account.EmailVerified, account.FailedAttempts, account.MFAFailedAttempts,
			account.LockedUntil, account.LastLoginAt, account.MFAEnabled,
			account.MFASecretEncrypted, account.MFASecretNonce, account.MFAEnrolledAt,
			account.LastTOTPStep, pq.Array(backupCodes), account.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", database.MapPostgresError(err))
		}

		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
