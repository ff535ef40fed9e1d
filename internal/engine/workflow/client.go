package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ingestPath = "/ingest_async"

// Credentials are the optional source-control login forwarded with a job.
type Credentials struct {
	Username string
	Token    string
}

type TriggerRequest struct {
	Host          string
	APIKey        string
	RepositoryURL string
	Credentials   *Credentials
	CallbackURL   string
}

type TriggerData struct {
	RequestID string `json:"request_id"`
}

type TriggerResult struct {
	OK     bool        `json:"ok"`
	Status int         `json:"status"`
	Data   TriggerData `json:"data"`
}

type ingestBody struct {
	RepoURL     string `json:"repo_url"`
	Username    string `json:"username,omitempty"`
	PAT         string `json:"pat,omitempty"`
	CallbackURL string `json:"callback_url"`
	UseLSP      bool   `json:"use_lsp"`
}

// Client starts asynchronous ingestion jobs on the workflow engine.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Trigger posts an ingestion job. A non-2xx reply returns a result with OK
// false together with an error; the response body is never included in the
// error since it may echo credentials.
func (c *Client) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	body := ingestBody{
		RepoURL:     req.RepositoryURL,
		CallbackURL: req.CallbackURL,
	}
	if req.Credentials != nil {
		body.Username = req.Credentials.Username
		body.PAT = req.Credentials.Token
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(req.Host, "/") + ingestPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ingest request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-token", req.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ingest request: %w", err)
	}
	defer resp.Body.Close()

	result := &TriggerResult{Status: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return result, fmt.Errorf("ingest request: HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result.Data); err != nil {
		return result, fmt.Errorf("decode ingest response: %w", err)
	}
	result.OK = true
	return result, nil
}
