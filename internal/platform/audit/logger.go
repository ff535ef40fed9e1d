package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Actions recorded for secret-bearing resources.
const (
	ActionWorkspaceCreate     = "workspace.create"
	ActionWorkspaceDelete     = "workspace.delete"
	ActionRepositoryCreate    = "repository.create"
	ActionWebhookSecretRotate = "repository.webhook_secret.rotate"
	ActionWorkflowUpdate      = "workflow.update"
	ActionCredentialUpdate    = "credential.update"
)

// Entry is one audit record. Metadata must never carry secret values.
type Entry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log persists e. Failures are reported on the context logger and do not
// fail the caller's operation.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = "audit_" + uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}

	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, string(metaJSON), e.IPAddress, e.UserAgent, e.CreatedAt)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("action", e.Action).Str("resource_id", e.ResourceID).Msg("failed to write audit log")
	}
}

// ForResource returns the entries recorded for one resource, newest first.
func (l *Logger) ForResource(ctx context.Context, resourceType, resourceID string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE resource_type = ? AND resource_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var meta string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &meta, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
