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

const passkeyColumns = `id, credential_id, public_key, account_id, sign_count, label, transports, created_at, last_used_at`

// PasskeyRepository stores WebAuthn credentials in Postgres
type PasskeyRepository struct {
	pool *pgxpool.Pool
}

func NewPasskeyRepository(db *database.DB) *PasskeyRepository {
	return &PasskeyRepository{pool: db.Pool}
}

func scanPasskeyRow(scanner rowScanner) (*models.PasskeyCredential, error) {
	var cred models.PasskeyCredential
	var signCount int64
	var transports []string

	err := scanner.Scan(
		&cred.ID, &cred.CredentialID, &cred.PublicKey, &cred.AccountID,
		&signCount, &cred.Label, pq.Array(&transports), &cred.CreatedAt, &cred.LastUsedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	cred.SignCount = uint32(signCount)
	cred.Transports = transports
	return &cred, nil
}

func scanPasskeyRows(rows pgx.Rows) ([]*models.PasskeyCredential, error) {
	defer rows.Close()

	creds := make([]*models.PasskeyCredential, 0)
	for rows.Next() {
		cred, err := scanPasskeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan passkey: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passkey rows: %w", err)
	}
	return creds, nil
}

func (r *PasskeyRepository) Put(ctx context.Context, cred *models.PasskeyCredential) error {
	transports := cred.Transports
	if transports == nil {
		transports = []string{}
	}

	query := `
		INSERT INTO passkey_credentials (id, credential_id, public_key, account_id, sign_count, label, transports, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		cred.ID, cred.CredentialID, cred.PublicKey, cred.AccountID,
		int64(cred.SignCount), cred.Label, pq.Array(transports), cred.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *PasskeyRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE credential_id = $1`
	return scanPasskeyRow(r.pool.QueryRow(ctx, query, credentialID))
}

func (r *PasskeyRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE account_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passkeys: %w", err)
	}
	return scanPasskeyRows(rows)
}

// UpdateCounter advances the counter only if it still holds oldCount
func (r *PasskeyRepository) UpdateCounter(ctx context.Context, credentialID []byte, oldCount, newCount uint32, usedAt time.Time) error {
	query := `
		UPDATE passkey_credentials SET sign_count = $3, last_used_at = $4
		WHERE credential_id = $1 AND sign_count = $2
	`
	tag, err := r.pool.Exec(ctx, query, credentialID, int64(oldCount), int64(newCount), usedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

func (r *PasskeyRepository) Delete(ctx context.Context, accountID string, credentialID []byte) error {
	query := `DELETE FROM passkey_credentials WHERE account_id = $1 AND credential_id = $2`

	tag, err := r.pool.Exec(ctx, query, accountID, credentialID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
