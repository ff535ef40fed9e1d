package ingest

import (
	"context"
	"database/sql"

	"hivehook/internal/platform/models"
	"hivehook/internal/platform/repositories"
)

// SQLStore backs Store with the SQLite repositories.
type SQLStore struct {
	repos       *repositories.RepositoryRepository
	workspaces  *repositories.WorkspaceRepository
	workflows   *repositories.WorkflowConfigRepository
	credentials *repositories.CredentialRepository
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		repos:       repositories.NewRepositoryRepository(db),
		workspaces:  repositories.NewWorkspaceRepository(db),
		workflows:   repositories.NewWorkflowConfigRepository(db),
		credentials: repositories.NewCredentialRepository(db),
	}
}

func (s *SQLStore) GetByHookID(ctx context.Context, hookID string) (*models.Repository, error) {
	return s.repos.GetByHookID(ctx, hookID)
}

func (s *SQLStore) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	return s.workspaces.GetByID(ctx, id)
}

func (s *SQLStore) GetWorkflowConfig(ctx context.Context, workspaceID string) (*models.WorkflowConfig, error) {
	return s.workflows.GetByWorkspace(ctx, workspaceID)
}

func (s *SQLStore) GetCredential(ctx context.Context, userID string) (*models.SourceControlCredential, error) {
	return s.credentials.GetByUser(ctx, userID)
}

func (s *SQLStore) UpdateStatus(ctx context.Context, repositoryID, status string) error {
	return s.repos.UpdateStatus(ctx, repositoryID, status)
}

func (s *SQLStore) SetIngestRef(ctx context.Context, repositoryID, ref string) error {
	return s.repos.SetIngestRef(ctx, repositoryID, ref)
}
