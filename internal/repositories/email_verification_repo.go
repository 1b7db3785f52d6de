package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailVerificationRepository handles email verification token data access
type EmailVerificationRepository struct {
	pool *pgxpool.Pool
}

// NewEmailVerificationRepository creates a new EmailVerificationRepository
func NewEmailVerificationRepository(db *database.DB) *EmailVerificationRepository {
	return &EmailVerificationRepository{pool: db.Pool}
}

const verificationTokenColumns = `id, account_id, token_hash, email, expires_at, used_at, created_at`

func scanVerificationTokenRow(row rowScanner) (*models.EmailVerificationToken, error) {
	var token models.EmailVerificationToken
	err := row.Scan(
		&token.ID, &token.AccountID, &token.TokenHash, &token.Email,
		&token.ExpiresAt, &token.UsedAt, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &token, nil
}

// Create inserts a new token
func (r *EmailVerificationRepository) Create(ctx context.Context, token *models.EmailVerificationToken) error {
	query := `
		INSERT INTO email_verification_tokens (id, account_id, token_hash, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID, token.AccountID, token.TokenHash, token.Email, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email verification token: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByTokenHash retrieves a token by its hash, used or not
func (r *EmailVerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	query := `SELECT ` + verificationTokenColumns + ` FROM email_verification_tokens WHERE token_hash = $1`
	return scanVerificationTokenRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// LatestByAccount returns the most recently issued token for an account
func (r *EmailVerificationRepository) LatestByAccount(ctx context.Context, accountID string) (*models.EmailVerificationToken, error) {
	query := `
		SELECT ` + verificationTokenColumns + `
		FROM email_verification_tokens
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanVerificationTokenRow(r.pool.QueryRow(ctx, query, accountID))
}

// MarkUsed stamps used_at only while it is still NULL, so one redeemer wins
func (r *EmailVerificationRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE email_verification_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id, usedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark verification token used: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM email_verification_tokens WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check verification token: %w", database.MapPostgresError(err))
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrAlreadyUsed
}

// DeleteExpired removes tokens that expired before cutoff
func (r *EmailVerificationRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
