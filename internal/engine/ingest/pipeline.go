package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"hivehook/internal/engine/secrets"
	"hivehook/internal/engine/webhooks"
	"hivehook/internal/engine/workflow"
	"hivehook/internal/pkg/errors"
	"hivehook/internal/platform/models"
)

// Inbound GitHub headers.
const (
	HeaderSignature = "X-Hub-Signature-256"
	HeaderEvent     = "X-GitHub-Event"
	HeaderHookID    = "X-GitHub-Hook-ID"
	HeaderDelivery  = "X-GitHub-Delivery"
)

const eventPush = "push"

// Delivery is one inbound webhook request. Body is the raw wire bytes.
type Delivery struct {
	Signature  string
	EventType  string
	DeliveryID string
	HookID     string
	Body       []byte
}

func DeliveryFromRequest(h http.Header, body []byte) Delivery {
	return Delivery{
		Signature:  h.Get(HeaderSignature),
		EventType:  h.Get(HeaderEvent),
		DeliveryID: h.Get(HeaderDelivery),
		HookID:     h.Get(HeaderHookID),
		Body:       body,
	}
}

type pushPayload struct {
	Ref        string `json:"ref"`
	Repository *struct {
		HTMLURL       string `json:"html_url"`
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	} `json:"repository"`
}

// Result is the accepted outcome of a delivery, dispatched or not.
type Result struct {
	Delivery   string `json:"delivery,omitempty"`
	Event      string `json:"event"`
	Dispatched bool   `json:"dispatched"`
	RequestID  string `json:"requestId,omitempty"`
	Message    string `json:"message"`
}

// Store is the slice of the resource store the pipeline reads and writes.
type Store interface {
	GetByHookID(ctx context.Context, hookID string) (*models.Repository, error)
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)
	GetWorkflowConfig(ctx context.Context, workspaceID string) (*models.WorkflowConfig, error)
	GetCredential(ctx context.Context, userID string) (*models.SourceControlCredential, error)
	UpdateStatus(ctx context.Context, repositoryID, status string) error
	SetIngestRef(ctx context.Context, repositoryID, ref string) error
}

type Decryptor interface {
	DecryptString(field, text string) (string, error)
}

type Dispatcher interface {
	Trigger(ctx context.Context, req workflow.TriggerRequest) (*workflow.TriggerResult, error)
}

type Pipeline struct {
	store       Store
	secrets     Decryptor
	dispatcher  Dispatcher
	callbackURL string
}

// NewPipeline wires the pipeline. callbackBaseURL is the public base the
// workflow engine reports job completion to.
func NewPipeline(store Store, dec Decryptor, dispatcher Dispatcher, callbackBaseURL string) *Pipeline {
	return &Pipeline{
		store:       store,
		secrets:     dec,
		dispatcher:  dispatcher,
		callbackURL: strings.TrimRight(callbackBaseURL, "/"),
	}
}

const notFoundMessage = "Repository not found for webhook"

// Process runs one delivery to completion. It returns either an accepted
// Result or an *errors.Error whose Kind fixes the HTTP status.
func (p *Pipeline) Process(ctx context.Context, d Delivery) (*Result, error) {
	l := zerolog.Ctx(ctx).With().
		Str("delivery_id", d.DeliveryID).
		Str("hook_id", d.HookID).
		Str("event", d.EventType).
		Logger()

	if d.Signature == "" || d.EventType == "" || d.HookID == "" {
		return nil, errors.Validation("Missing required webhook headers")
	}

	repo, err := p.store.GetByHookID(ctx, d.HookID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if repo == nil || repo.WebhookSecret == "" {
		return nil, errors.NotFound(notFoundMessage, nil)
	}
	l = l.With().Str("repository_id", repo.ID).Logger()

	secret, err := p.secrets.DecryptString(secrets.FieldWebhookSecret, repo.WebhookSecret)
	if err != nil {
		// Indistinguishable from a missing repository to the sender.
		return nil, errors.NotFound(notFoundMessage, err)
	}

	if !webhooks.VerifySignature(secret, d.Body, d.Signature) {
		l.Warn().Msg("webhook signature mismatch")
		return nil, errors.Unauthorized()
	}

	var payload pushPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return nil, errors.Validation("Invalid JSON payload")
	}

	result := &Result{Delivery: d.DeliveryID, Event: d.EventType}

	if d.EventType != eventPush {
		result.Message = "Event ignored"
		return result, nil
	}

	if payload.Ref == "" {
		return nil, errors.Validation("Missing ref in push payload")
	}

	branch := BranchFromRef(payload.Ref)
	if !AcceptsBranch(repo.Branch, branch) {
		l.Debug().Str("ref", payload.Ref).Str("configured_branch", repo.Branch).Msg("push to untracked branch ignored")
		result.Message = "Branch ignored"
		return result, nil
	}

	ws, err := p.store.GetWorkspace(ctx, repo.WorkspaceID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if ws == nil || ws.Deleted() {
		return nil, errors.NotFound(notFoundMessage, nil)
	}

	wf, err := p.store.GetWorkflowConfig(ctx, ws.ID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if wf == nil || wf.Host == "" || wf.APIKey == "" {
		return nil, errors.Validation("Workflow engine not configured")
	}
	apiKey, err := p.secrets.DecryptString(secrets.FieldAPIKey, wf.APIKey)
	if err != nil {
		l.Error().Err(err).Msg("workflow api key could not be decrypted")
		return nil, errors.Validation("Workflow engine not configured")
	}

	if err := p.store.UpdateStatus(ctx, repo.ID, models.RepositoryStatusPending); err != nil {
		return nil, errors.Internal(err)
	}

	creds := p.credentials(ctx, &l, ws.OwnerID)

	res, err := p.dispatcher.Trigger(ctx, workflow.TriggerRequest{
		Host:          wf.Host,
		APIKey:        apiKey,
		RepositoryURL: repo.RepositoryURL,
		Credentials:   creds,
		CallbackURL:   p.callbackURL + "/" + repo.ID,
	})
	if err != nil || res == nil || !res.OK {
		// The PENDING status stays; a later delivery reconciles it.
		l.Error().Err(err).Msg("ingestion dispatch failed")
		result.Message = "Ingestion dispatch failed"
		return result, nil
	}

	result.Dispatched = true
	result.RequestID = res.Data.RequestID
	result.Message = "Ingestion started"

	if res.Data.RequestID != "" {
		if err := p.store.SetIngestRef(ctx, repo.ID, res.Data.RequestID); err != nil {
			l.Warn().Err(err).Msg("failed to store ingest reference")
		}
	}

	l.Info().Str("request_id", res.Data.RequestID).Msg("ingestion dispatched")
	return result, nil
}

// credentials looks up the owner's source-control login. Any failure is
// logged and treated as absent.
func (p *Pipeline) credentials(ctx context.Context, l *zerolog.Logger, ownerID string) *workflow.Credentials {
	cred, err := p.store.GetCredential(ctx, ownerID)
	if err != nil {
		l.Warn().Err(err).Msg("source control credential lookup failed")
		return nil
	}
	if cred == nil || cred.AccessToken == "" {
		return nil
	}
	token, err := p.secrets.DecryptString(secrets.FieldAccessToken, cred.AccessToken)
	if err != nil {
		l.Warn().Err(err).Msg("source control token could not be decrypted")
		return nil
	}
	return &workflow.Credentials{Username: cred.Username, Token: token}
}
