package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hivehook/internal/platform/models"
)

type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.SourceControlCredential) error {
	cred.UpdatedAt = time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_control_credentials (user_id, username, access_token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, access_token = excluded.access_token, updated_at = excluded.updated_at
	`, cred.UserID, cred.Username, cred.AccessToken, cred.UpdatedAt)
	return err
}

func (r *CredentialRepository) GetByUser(ctx context.Context, userID string) (*models.SourceControlCredential, error) {
	var cred models.SourceControlCredential
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, username, access_token, updated_at FROM source_control_credentials WHERE user_id = ?
	`, userID).Scan(&cred.UserID, &cred.Username, &cred.AccessToken, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]*models.SourceControlCredential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, username, access_token, updated_at FROM source_control_credentials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.SourceControlCredential
	for rows.Next() {
		var cred models.SourceControlCredential
		if err := rows.Scan(&cred.UserID, &cred.Username, &cred.AccessToken, &cred.UpdatedAt); err != nil {
			return nil, err
		}
		creds = append(creds, &cred)
	}
	return creds, rows.Err()
}

// SwapAccessToken replaces the envelope only if it still equals previous.
func (r *CredentialRepository) SwapAccessToken(ctx context.Context, userID, previous, envelope string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE source_control_credentials SET access_token = ?, updated_at = ? WHERE user_id = ? AND access_token = ?`, envelope, time.Now().Unix(), userID, previous)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
