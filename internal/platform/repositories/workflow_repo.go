package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"hivehook/internal/platform/models"
)

type WorkflowConfigRepository struct {
	db *sql.DB
}

func NewWorkflowConfigRepository(db *sql.DB) *WorkflowConfigRepository {
	return &WorkflowConfigRepository{db: db}
}

func (r *WorkflowConfigRepository) Upsert(ctx context.Context, cfg *models.WorkflowConfig) error {
	cfg.UpdatedAt = time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_configs (workspace_id, host, api_key, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET host = excluded.host, api_key = excluded.api_key, updated_at = excluded.updated_at
	`, cfg.WorkspaceID, cfg.Host, cfg.APIKey, cfg.UpdatedAt)
	return err
}

func (r *WorkflowConfigRepository) GetByWorkspace(ctx context.Context, workspaceID string) (*models.WorkflowConfig, error) {
	var cfg models.WorkflowConfig
	err := r.db.QueryRowContext(ctx, `
		SELECT workspace_id, host, api_key, updated_at FROM workflow_configs WHERE workspace_id = ?
	`, workspaceID).Scan(&cfg.WorkspaceID, &cfg.Host, &cfg.APIKey, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *WorkflowConfigRepository) List(ctx context.Context) ([]*models.WorkflowConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT workspace_id, host, api_key, updated_at FROM workflow_configs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.WorkflowConfig
	for rows.Next() {
		var cfg models.WorkflowConfig
		if err := rows.Scan(&cfg.WorkspaceID, &cfg.Host, &cfg.APIKey, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// SwapAPIKey replaces the envelope only if it still equals previous.
func (r *WorkflowConfigRepository) SwapAPIKey(ctx context.Context, workspaceID, previous, envelope string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE workflow_configs SET api_key = ?, updated_at = ? WHERE workspace_id = ? AND api_key = ?`, envelope, time.Now().Unix(), workspaceID, previous)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
