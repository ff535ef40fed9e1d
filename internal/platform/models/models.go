package models

// Repository statuses.
const (
	RepositoryStatusPending = "PENDING"
	RepositoryStatusSynced  = "SYNCED"
	RepositoryStatusFailed  = "FAILED"
)

type Workspace struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
	DeletedAt *int64 `json:"deleted_at,omitempty"`
}

func (w *Workspace) Deleted() bool {
	return w.DeletedAt != nil
}

// Repository is a source repository bound to a GitHub webhook. WebhookSecret
// holds serialized envelope text, never plaintext.
type Repository struct {
	ID            string `json:"id"`
	WorkspaceID   string `json:"workspace_id"`
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch,omitempty"`
	GithubHookID  string `json:"github_hook_id"`
	WebhookSecret string `json:"-"`
	Status        string `json:"status"`
	IngestRefID   string `json:"ingest_ref_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// WorkflowConfig is a workspace's downstream workflow-engine target. APIKey
// holds serialized envelope text.
type WorkflowConfig struct {
	WorkspaceID string `json:"workspace_id"`
	Host        string `json:"host"`
	APIKey      string `json:"-"`
	UpdatedAt   int64  `json:"updated_at"`
}

// SourceControlCredential is a user's GitHub login. AccessToken holds
// serialized envelope text.
type SourceControlCredential struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccessToken string `json:"-"`
	UpdatedAt   int64  `json:"updated_at"`
}
