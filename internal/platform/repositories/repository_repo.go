package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hivehook/internal/platform/models"
)

const repositoryColumns = `id, workspace_id, repository_url, branch, github_hook_id, webhook_secret, status, ingest_ref_id, created_at, updated_at`

type RepositoryRepository struct {
	db *sql.DB
}

func NewRepositoryRepository(db *sql.DB) *RepositoryRepository {
	return &RepositoryRepository{db: db}
}

func (r *RepositoryRepository) Create(ctx context.Context, repo *models.Repository) error {
	now := time.Now().Unix()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO repositories (id, workspace_id, repository_url, branch, github_hook_id, webhook_secret, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, repo.ID, repo.WorkspaceID, repo.RepositoryURL, repo.Branch, repo.GithubHookID, repo.WebhookSecret, repo.Status, repo.CreatedAt, repo.UpdatedAt)
	return mapWriteError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*models.Repository, error) {
	var repo models.Repository
	var ingestRef sql.NullString
	if err := row.Scan(&repo.ID, &repo.WorkspaceID, &repo.RepositoryURL, &repo.Branch, &repo.GithubHookID,
		&repo.WebhookSecret, &repo.Status, &ingestRef, &repo.CreatedAt, &repo.UpdatedAt); err != nil {
		return nil, err
	}
	if ingestRef.Valid {
		repo.IngestRefID = ingestRef.String
	}
	return &repo, nil
}

func (r *RepositoryRepository) getOne(ctx context.Context, query string, arg any) (*models.Repository, error) {
	repo, err := scanRepository(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return repo, nil
}

func (r *RepositoryRepository) GetByID(ctx context.Context, id string) (*models.Repository, error) {
	return r.getOne(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id)
}

func (r *RepositoryRepository) GetByHookID(ctx context.Context, hookID string) (*models.Repository, error) {
	return r.getOne(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE github_hook_id = ?`, hookID)
}

func (r *RepositoryRepository) List(ctx context.Context) ([]*models.Repository, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// UpdateStatus overwrites the status. Concurrent writers race; the last one
// wins.
func (r *RepositoryRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE repositories SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	return err
}

func (r *RepositoryRepository) SetIngestRef(ctx context.Context, id, ref string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE repositories SET ingest_ref_id = ?, updated_at = ? WHERE id = ?`, ref, time.Now().Unix(), id)
	return err
}

// UpdateWebhookSecret replaces the stored envelope text.
func (r *RepositoryRepository) UpdateWebhookSecret(ctx context.Context, id, envelope string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE repositories SET webhook_secret = ?, updated_at = ? WHERE id = ?`, envelope, time.Now().Unix(), id)
	return err
}

// SwapWebhookSecret replaces the envelope only if it still equals previous.
// It reports false when the row changed or no longer exists.
func (r *RepositoryRepository) SwapWebhookSecret(ctx context.Context, id, previous, envelope string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE repositories SET webhook_secret = ?, updated_at = ? WHERE id = ? AND webhook_secret = ?`, envelope, time.Now().Unix(), id, previous)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
