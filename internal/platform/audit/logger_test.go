package audit

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hivehook/internal/platform/config"
	"hivehook/internal/platform/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "../../../migrations"))
	return db
}

func TestLogger_LogAndForResource(t *testing.T) {
	db := setupTestDB(t)
	l := NewLogger(db)
	ctx := context.Background()

	l.Log(ctx, Entry{UserID: "usr_1", Action: ActionRepositoryCreate, ResourceType: "repository", ResourceID: "repo_1", CreatedAt: 100,
		Metadata: map[string]interface{}{"hook_id": "42"}})
	l.Log(ctx, Entry{UserID: "usr_1", Action: ActionWebhookSecretRotate, ResourceType: "repository", ResourceID: "repo_1", CreatedAt: 200})
	l.Log(ctx, Entry{UserID: "usr_2", Action: ActionWorkflowUpdate, ResourceType: "workspace", ResourceID: "ws_1", CreatedAt: 300})

	entries, err := l.ForResource(ctx, "repository", "repo_1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, ActionWebhookSecretRotate, entries[0].Action)
	assert.Equal(t, ActionRepositoryCreate, entries[1].Action)
	assert.Equal(t, "42", entries[1].Metadata["hook_id"])
	assert.Contains(t, entries[1].ID, "audit_")
}

func TestLogger_WriteFailureIsSwallowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnError(sql.ErrConnDone)

	NewLogger(db).Log(context.Background(), Entry{Action: ActionWorkspaceCreate, ResourceType: "workspace", ResourceID: "ws_1"})
	assert.NoError(t, mock.ExpectationsWereMet())
}
