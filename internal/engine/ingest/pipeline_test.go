package ingest

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hivehook/internal/engine/secrets"
	"hivehook/internal/engine/webhooks"
	"hivehook/internal/engine/workflow"
	"hivehook/internal/pkg/errors"
	"hivehook/internal/platform/config"
	"hivehook/internal/platform/models"
)

const (
	testHookID  = "hook_1"
	testSecret  = "whsec_repo_secret"
	testAPIKey  = "wf_api_key"
	testToken   = "gho_owner_token"
	pushMain    = `{"ref":"refs/heads/main","repository":{"html_url":"https://github.com/acme/api","full_name":"acme/api","default_branch":"main"}}`
	pushFeature = `{"ref":"refs/heads/feature/x","repository":{"html_url":"https://github.com/acme/api","full_name":"acme/api","default_branch":"main"}}`
)

type fakeStore struct {
	mu          sync.Mutex
	repos       map[string]*models.Repository
	workspaces  map[string]*models.Workspace
	workflows   map[string]*models.WorkflowConfig
	credentials map[string]*models.SourceControlCredential
	lookupErr   error
	credErr     error

	statusWrites []string
	refWrites    []string
}

func (s *fakeStore) GetByHookID(_ context.Context, hookID string) (*models.Repository, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.repos[hookID], nil
}

func (s *fakeStore) GetWorkspace(_ context.Context, id string) (*models.Workspace, error) {
	return s.workspaces[id], nil
}

func (s *fakeStore) GetWorkflowConfig(_ context.Context, workspaceID string) (*models.WorkflowConfig, error) {
	return s.workflows[workspaceID], nil
}

func (s *fakeStore) GetCredential(_ context.Context, userID string) (*models.SourceControlCredential, error) {
	if s.credErr != nil {
		return nil, s.credErr
	}
	return s.credentials[userID], nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusWrites = append(s.statusWrites, status)
	for _, r := range s.repos {
		if r.ID == id {
			r.Status = status
		}
	}
	return nil
}

func (s *fakeStore) SetIngestRef(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refWrites = append(s.refWrites, ref)
	for _, r := range s.repos {
		if r.ID == id {
			r.IngestRefID = ref
		}
	}
	return nil
}

type fakeDispatcher struct {
	calls []workflow.TriggerRequest
	err   error
	next  string
}

func (d *fakeDispatcher) Trigger(_ context.Context, req workflow.TriggerRequest) (*workflow.TriggerResult, error) {
	d.calls = append(d.calls, req)
	if d.err != nil {
		return nil, d.err
	}
	return &workflow.TriggerResult{OK: true, Status: 200, Data: workflow.TriggerData{RequestID: d.next}}, nil
}

type fixture struct {
	engine     *secrets.Engine
	store      *fakeStore
	dispatcher *fakeDispatcher
	pipeline   *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kr, err := secrets.NewKeyring(config.EncryptionConfig{
		ActiveKeyID: "k1",
		Keys:        map[string]string{"k1": "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"},
	})
	require.NoError(t, err)
	engine, err := secrets.NewEngine(kr, "1")
	require.NoError(t, err)

	enc := func(field, value string) string {
		text, err := engine.EncryptString(field, value)
		require.NoError(t, err)
		return text
	}

	store := &fakeStore{
		repos: map[string]*models.Repository{
			testHookID: {
				ID:            "repo_1",
				WorkspaceID:   "ws_1",
				RepositoryURL: "https://github.com/acme/api",
				Branch:        "main",
				GithubHookID:  testHookID,
				WebhookSecret: enc(secrets.FieldWebhookSecret, testSecret),
				Status:        models.RepositoryStatusSynced,
			},
		},
		workspaces: map[string]*models.Workspace{
			"ws_1": {ID: "ws_1", Slug: "acme", OwnerID: "usr_owner"},
		},
		workflows: map[string]*models.WorkflowConfig{
			"ws_1": {WorkspaceID: "ws_1", Host: "https://swarm.example", APIKey: enc(secrets.FieldAPIKey, testAPIKey)},
		},
		credentials: map[string]*models.SourceControlCredential{
			"usr_owner": {UserID: "usr_owner", Username: "octocat", AccessToken: enc(secrets.FieldAccessToken, testToken)},
		},
	}
	dispatcher := &fakeDispatcher{next: "req_1"}

	return &fixture{
		engine:     engine,
		store:      store,
		dispatcher: dispatcher,
		pipeline:   NewPipeline(store, engine, dispatcher, "https://hive.example/api/v1/ingest/callback/"),
	}
}

func (f *fixture) repo() *models.Repository { return f.store.repos[testHookID] }

func signed(event, body, secret string) Delivery {
	return Delivery{
		Signature:  webhooks.Sign(secret, []byte(body)),
		EventType:  event,
		DeliveryID: "delivery-1",
		HookID:     testHookID,
		Body:       []byte(body),
	}
}

func requireKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, errors.KindOf(err), "error: %v", err)
}

func TestPipeline_PushToConfiguredBranch(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	require.NoError(t, err)

	assert.True(t, res.Dispatched)
	assert.Equal(t, "req_1", res.RequestID)
	assert.Equal(t, "delivery-1", res.Delivery)
	assert.Equal(t, models.RepositoryStatusPending, f.repo().Status)
	assert.Equal(t, "req_1", f.repo().IngestRefID)

	require.Len(t, f.dispatcher.calls, 1)
	call := f.dispatcher.calls[0]
	assert.Equal(t, testAPIKey, call.APIKey)
	assert.Equal(t, "https://swarm.example", call.Host)
	assert.Equal(t, "https://github.com/acme/api", call.RepositoryURL)
	assert.Equal(t, "https://hive.example/api/v1/ingest/callback/repo_1", call.CallbackURL)
	require.NotNil(t, call.Credentials)
	assert.Equal(t, "octocat", call.Credentials.Username)
	assert.Equal(t, testToken, call.Credentials.Token)
}

func TestPipeline_WrongSecret(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, "not-the-secret"))
	requireKind(t, err, errors.KindAuthentication)

	assert.Empty(t, f.store.statusWrites)
	assert.Empty(t, f.dispatcher.calls)
	assert.Equal(t, models.RepositoryStatusSynced, f.repo().Status)
}

func TestPipeline_TamperedBody(t *testing.T) {
	f := newFixture(t)
	d := signed("push", pushMain, testSecret)
	d.Body = []byte(pushMain + " ")

	_, err := f.pipeline.Process(context.Background(), d)
	requireKind(t, err, errors.KindAuthentication)
}

func TestPipeline_PushToOtherBranch(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Process(context.Background(), signed("push", pushFeature, testSecret))
	require.NoError(t, err)

	assert.False(t, res.Dispatched)
	assert.Empty(t, f.dispatcher.calls)
	assert.Empty(t, f.store.statusWrites)
	assert.Equal(t, models.RepositoryStatusSynced, f.repo().Status)
}

func TestPipeline_DefaultBranchPolicy(t *testing.T) {
	f := newFixture(t)
	f.repo().Branch = ""

	_, err := f.pipeline.Process(context.Background(), signed("push", `{"ref":"refs/heads/master"}`, testSecret))
	require.NoError(t, err)
	assert.Len(t, f.dispatcher.calls, 1)

	_, err = f.pipeline.Process(context.Background(), signed("push", `{"ref":"refs/heads/develop"}`, testSecret))
	require.NoError(t, err)
	assert.Len(t, f.dispatcher.calls, 1)
}

func TestPipeline_NonPushEvent(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Process(context.Background(), signed("pull_request", `{"action":"opened"}`, testSecret))
	require.NoError(t, err)

	assert.False(t, res.Dispatched)
	assert.Equal(t, "pull_request", res.Event)
	assert.Empty(t, f.dispatcher.calls)
	assert.Empty(t, f.store.statusWrites)
}

func TestPipeline_MissingHeaders(t *testing.T) {
	f := newFixture(t)

	for name, mutate := range map[string]func(*Delivery){
		"signature": func(d *Delivery) { d.Signature = "" },
		"event":     func(d *Delivery) { d.EventType = "" },
		"hook id":   func(d *Delivery) { d.HookID = "" },
	} {
		t.Run(name, func(t *testing.T) {
			d := signed("push", pushMain, testSecret)
			mutate(&d)
			_, err := f.pipeline.Process(context.Background(), d)
			requireKind(t, err, errors.KindValidation)
		})
	}
	assert.Empty(t, f.dispatcher.calls)
}

func TestPipeline_UnknownHookID(t *testing.T) {
	f := newFixture(t)
	d := signed("push", pushMain, testSecret)
	d.HookID = "hook_unknown"

	_, err := f.pipeline.Process(context.Background(), d)
	requireKind(t, err, errors.KindNotFound)
}

func TestPipeline_NoStoredSecret(t *testing.T) {
	f := newFixture(t)
	f.repo().WebhookSecret = ""

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	requireKind(t, err, errors.KindNotFound)
}

func TestPipeline_UndecryptableSecretLooksLikeNotFound(t *testing.T) {
	f := newFixture(t)
	f.repo().WebhookSecret = "corrupted"

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	requireKind(t, err, errors.KindNotFound)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, notFoundMessage, e.Message)
}

func TestPipeline_LookupFailure(t *testing.T) {
	f := newFixture(t)
	f.store.lookupErr = stderrors.New("database is locked")

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	requireKind(t, err, errors.KindInternal)
}

func TestPipeline_MalformedJSON(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Process(context.Background(), signed("push", `{"ref":`, testSecret))
	requireKind(t, err, errors.KindValidation)
}

func TestPipeline_PushWithoutRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Process(context.Background(), signed("push", `{"repository":{"html_url":"x"}}`, testSecret))
	requireKind(t, err, errors.KindValidation)
	assert.Empty(t, f.store.statusWrites)
}

func TestPipeline_DeletedWorkspace(t *testing.T) {
	f := newFixture(t)
	deletedAt := int64(1700000000)
	f.store.workspaces["ws_1"].DeletedAt = &deletedAt

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	requireKind(t, err, errors.KindNotFound)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, notFoundMessage, e.Message)
	assert.Empty(t, f.store.statusWrites)
	assert.Empty(t, f.dispatcher.calls)
}

func TestPipeline_MissingWorkflowConfig(t *testing.T) {
	f := newFixture(t)
	delete(f.store.workflows, "ws_1")

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	requireKind(t, err, errors.KindValidation)
	assert.Empty(t, f.store.statusWrites)
	assert.Empty(t, f.dispatcher.calls)
}

func TestPipeline_UndecryptableAPIKey(t *testing.T) {
	f := newFixture(t)
	// An api key envelope presented as a webhook secret slot must not open.
	f.store.workflows["ws_1"].APIKey = f.repo().WebhookSecret

	_, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	requireKind(t, err, errors.KindValidation)
	assert.Empty(t, f.dispatcher.calls)
}

func TestPipeline_CredentialsAreBestEffort(t *testing.T) {
	f := newFixture(t)
	f.store.credErr = stderrors.New("boom")

	res, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	require.NoError(t, err)
	assert.True(t, res.Dispatched)
	require.Len(t, f.dispatcher.calls, 1)
	assert.Nil(t, f.dispatcher.calls[0].Credentials)

	f.store.credErr = nil
	delete(f.store.credentials, "usr_owner")
	_, err = f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	require.NoError(t, err)
	assert.Nil(t, f.dispatcher.calls[1].Credentials)
}

func TestPipeline_DispatchFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = context.DeadlineExceeded

	res, err := f.pipeline.Process(context.Background(), signed("push", pushMain, testSecret))
	require.NoError(t, err)

	assert.False(t, res.Dispatched)
	assert.Equal(t, models.RepositoryStatusPending, f.repo().Status)
	assert.Empty(t, f.store.refWrites)
}

func TestPipeline_RedeliveryIsIdempotent(t *testing.T) {
	f := newFixture(t)
	d := signed("push", pushMain, testSecret)

	_, err := f.pipeline.Process(context.Background(), d)
	require.NoError(t, err)

	f.dispatcher.next = "req_2"
	res, err := f.pipeline.Process(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, res.Dispatched)
	assert.Equal(t, []string{models.RepositoryStatusPending, models.RepositoryStatusPending}, f.store.statusWrites)
	assert.Equal(t, "req_2", f.repo().IngestRefID)
	assert.Len(t, f.dispatcher.calls, 2)
}
