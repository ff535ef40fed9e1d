package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hivehook/internal/platform/models"
)

type WorkspaceRepository struct {
	db *sql.DB
}

func NewWorkspaceRepository(db *sql.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) Create(ctx context.Context, ws *models.Workspace) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, slug, name, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ws.ID, ws.Slug, ws.Name, ws.OwnerID, ws.CreatedAt, ws.UpdatedAt)
	return mapWriteError(err)
}

func (r *WorkspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	ws := &models.Workspace{}
	var deletedAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, owner_id, created_at, updated_at, deleted_at
		FROM workspaces WHERE id = ?
	`, id).Scan(&ws.ID, &ws.Slug, &ws.Name, &ws.OwnerID, &ws.CreatedAt, &ws.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deletedAt.Valid {
		ws.DeletedAt = &deletedAt.Int64
	}
	return ws, nil
}

func (r *WorkspaceRepository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `UPDATE workspaces SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	return err
}
