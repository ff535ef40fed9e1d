package handlers

import (
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	apiContext "hivehook/internal/api/context"
	"hivehook/internal/engine/secrets"
	"hivehook/internal/pkg/errors"
	"hivehook/internal/pkg/validator"
	"hivehook/internal/platform/audit"
	"hivehook/internal/platform/auth"
	"hivehook/internal/platform/models"
	"hivehook/internal/platform/repositories"
)

const webhookSecretPrefix = "whsec_"

// Sealer turns a plaintext secret into stored envelope text.
type Sealer interface {
	EncryptString(field, plaintext string) (string, error)
}

// AdminHandler manages workspaces, repository bindings and the secrets that
// hang off them. Plaintext secrets only ever leave through the response of
// the call that issued them.
type AdminHandler struct {
	workspaces  *repositories.WorkspaceRepository
	repos       *repositories.RepositoryRepository
	workflows   *repositories.WorkflowConfigRepository
	credentials *repositories.CredentialRepository
	sealer      Sealer
	audit       *audit.Logger
}

func NewAdminHandler(
	workspaces *repositories.WorkspaceRepository,
	repos *repositories.RepositoryRepository,
	workflows *repositories.WorkflowConfigRepository,
	credentials *repositories.CredentialRepository,
	sealer Sealer,
	auditLog *audit.Logger,
) *AdminHandler {
	return &AdminHandler{
		workspaces:  workspaces,
		repos:       repos,
		workflows:   workflows,
		credentials: credentials,
		sealer:      sealer,
		audit:       auditLog,
	}
}

type CreateWorkspaceRequest struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	OwnerID string `json:"owner_id"`
}

func (h *AdminHandler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "name is required", nil)
		return
	}
	if err := validator.IsSlug(req.Slug); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = actor(r)
	}

	now := time.Now().Unix()
	ws := &models.Workspace{
		ID:        "ws_" + uuid.NewString(),
		Slug:      req.Slug,
		Name:      req.Name,
		OwnerID:   req.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.workspaces.Create(r.Context(), ws); err != nil {
		if stderrors.Is(err, repositories.ErrConflict) {
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Workspace slug already taken", nil)
			return
		}
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	h.record(r, audit.ActionWorkspaceCreate, "workspace", ws.ID, map[string]interface{}{"slug": ws.Slug})
	hlog.FromRequest(r).Info().Str("workspace_id", ws.ID).Msg("workspace created")
	writeJSON(w, http.StatusCreated, ws)
}

// DeleteWorkspace soft-deletes a workspace. Deliveries for its repositories
// then resolve to 404.
func (h *AdminHandler) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.workspaces.GetByID(r.Context(), pathParam(r, "workspace_id"))
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	if ws == nil || ws.Deleted() {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Workspace not found", nil)
		return
	}

	if err := h.workspaces.SoftDelete(r.Context(), ws.ID); err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	h.record(r, audit.ActionWorkspaceDelete, "workspace", ws.ID, nil)
	hlog.FromRequest(r).Info().Str("workspace_id", ws.ID).Msg("workspace deleted")
	w.WriteHeader(http.StatusNoContent)
}

type CreateRepositoryRequest struct {
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	GithubHookID  string `json:"github_hook_id"`
}

// RepositorySecretResponse carries a freshly issued webhook secret. It is
// the only time the plaintext is shown.
type RepositorySecretResponse struct {
	Repository    *models.Repository `json:"repository"`
	WebhookSecret string             `json:"webhook_secret"`
}

func (h *AdminHandler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "workspace_id")

	var req CreateRepositoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.IsHTTPURL("repository_url", req.RepositoryURL); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if req.GithubHookID == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "github_hook_id is required", nil)
		return
	}

	ws, err := h.workspaces.GetByID(r.Context(), workspaceID)
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	if ws == nil || ws.Deleted() {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Workspace not found", nil)
		return
	}

	secret, sealed, err := h.issueWebhookSecret()
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	repo := &models.Repository{
		ID:            "repo_" + uuid.NewString(),
		WorkspaceID:   ws.ID,
		RepositoryURL: req.RepositoryURL,
		Branch:        strings.TrimSpace(req.Branch),
		GithubHookID:  req.GithubHookID,
		WebhookSecret: sealed,
		Status:        models.RepositoryStatusPending,
	}
	if err := h.repos.Create(r.Context(), repo); err != nil {
		if stderrors.Is(err, repositories.ErrConflict) {
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Hook id already bound", nil)
			return
		}
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	h.record(r, audit.ActionRepositoryCreate, "repository", repo.ID, map[string]interface{}{"workspace_id": ws.ID, "hook_id": repo.GithubHookID})
	hlog.FromRequest(r).Info().Str("repository_id", repo.ID).Str("workspace_id", ws.ID).Msg("repository bound")
	writeJSON(w, http.StatusCreated, RepositorySecretResponse{Repository: repo, WebhookSecret: secret})
}

// RotateWebhookSecret replaces the stored envelope with one sealing a new
// random secret.
func (h *AdminHandler) RotateWebhookSecret(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.GetByID(r.Context(), pathParam(r, "repository_id"))
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	if repo == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Repository not found", nil)
		return
	}
	ws, err := h.workspaces.GetByID(r.Context(), repo.WorkspaceID)
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	if ws == nil || ws.Deleted() {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Repository not found", nil)
		return
	}

	secret, sealed, err := h.issueWebhookSecret()
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	if err := h.repos.UpdateWebhookSecret(r.Context(), repo.ID, sealed); err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	repo.WebhookSecret = sealed

	h.record(r, audit.ActionWebhookSecretRotate, "repository", repo.ID, nil)
	hlog.FromRequest(r).Info().Str("repository_id", repo.ID).Msg("webhook secret rotated")
	writeJSON(w, http.StatusOK, RepositorySecretResponse{Repository: repo, WebhookSecret: secret})
}

type PutWorkflowRequest struct {
	Host   string `json:"host"`
	APIKey string `json:"api_key"`
}

func (h *AdminHandler) PutWorkflowConfig(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "workspace_id")

	var req PutWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.IsHTTPURL("host", req.Host); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if req.APIKey == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "api_key is required", nil)
		return
	}

	ws, err := h.workspaces.GetByID(r.Context(), workspaceID)
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}
	if ws == nil || ws.Deleted() {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Workspace not found", nil)
		return
	}

	sealed, err := h.sealer.EncryptString(secrets.FieldAPIKey, req.APIKey)
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	cfg := &models.WorkflowConfig{WorkspaceID: ws.ID, Host: strings.TrimRight(req.Host, "/"), APIKey: sealed}
	if err := h.workflows.Upsert(r.Context(), cfg); err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	h.record(r, audit.ActionWorkflowUpdate, "workspace", ws.ID, map[string]interface{}{"host": cfg.Host})
	hlog.FromRequest(r).Info().Str("workspace_id", ws.ID).Msg("workflow config updated")
	writeJSON(w, http.StatusOK, cfg)
}

type PutCredentialRequest struct {
	Username    string `json:"username"`
	AccessToken string `json:"access_token"`
}

func (h *AdminHandler) PutSourceControlToken(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "user_id")

	var req PutCredentialRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.AccessToken == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "username and access_token are required", nil)
		return
	}

	sealed, err := h.sealer.EncryptString(secrets.FieldAccessToken, req.AccessToken)
	if err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	cred := &models.SourceControlCredential{UserID: userID, Username: req.Username, AccessToken: sealed}
	if err := h.credentials.Upsert(r.Context(), cred); err != nil {
		errors.Write(w, hlog.FromRequest(r), errors.Internal(err))
		return
	}

	h.record(r, audit.ActionCredentialUpdate, "user", userID, map[string]interface{}{"username": cred.Username})
	hlog.FromRequest(r).Info().Str("user_id", userID).Msg("source control token updated")
	writeJSON(w, http.StatusOK, cred)
}

func (h *AdminHandler) issueWebhookSecret() (plaintext, sealed string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plaintext = webhookSecretPrefix + hex.EncodeToString(buf)

	sealed, err = h.sealer.EncryptString(secrets.FieldWebhookSecret, plaintext)
	if err != nil {
		return "", "", err
	}
	return plaintext, sealed, nil
}

func (h *AdminHandler) record(r *http.Request, action, resourceType, resourceID string, metadata map[string]interface{}) {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	h.audit.Log(r.Context(), audit.Entry{
		UserID:       actor(r),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    ip,
		UserAgent:    r.UserAgent(),
	})
}

func actor(r *http.Request) string {
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok && claims != nil {
		return claims.UserID
	}
	return ""
}
