// Package agent talks to the Cortex agent service and drives conversation
// turns: one request, one streamed response, folded into a conversation.Store.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cortexchat/internal/logging"
	"cortexchat/internal/prompt"
)

var (
	// ErrTurnInFlight is returned when a turn is submitted while another streams.
	ErrTurnInFlight = errors.New("a turn is already streaming")
	// ErrNoBody is returned when the service answers without a response body.
	ErrNoBody = errors.New("agent response has no body")
	// ErrSessionClosed is returned after Session.Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrAssetNotFound is returned by LookupAsset for unknown ids.
	ErrAssetNotFound = errors.New("asset not found")
)

// HTTPError is a non-success response from the agent service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent service returned status %d: %s", e.StatusCode, e.Body)
}

// RunRequest is the body of POST /api/agent/run.
type RunRequest struct {
	Message  string  `json:"message"`
	Context  *string `json:"context"`             // focal asset id, null when none
	ThreadID string  `json:"thread_id,omitempty"` // conversation id
}

// AgentInfo is the body of GET /api/agent/status.
type AgentInfo struct {
	Status       string   `json:"status"`
	Agent        string   `json:"agent"`
	Model        string   `json:"model"`
	Capabilities []string `json:"capabilities"`
}

// Transport opens the response stream of one turn. The caller owns the
// returned body and must close it.
type Transport interface {
	Run(ctx context.Context, req RunRequest) (io.ReadCloser, error)
}

// AssetLookup resolves a focal entity by identifier.
type AssetLookup interface {
	LookupAsset(ctx context.Context, id string) (prompt.FocalEntity, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds non-streaming calls (status, asset lookup). Streaming
	// turns are bounded by the turn context instead.
	Timeout time.Duration
}

// Client is the HTTP client for the agent service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		// No client-wide timeout: it would cut long streams mid-body.
		httpClient: &http.Client{},
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Run posts the prompt and returns the event stream body.
func (c *Client) Run(ctx context.Context, req RunRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/agent/run", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	logging.AgentDebug("POST /api/agent/run: message_len=%d context=%v thread=%s", len(req.Message), req.Context != nil, req.ThreadID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	// net/http never returns a nil body; an empty response arrives as NoBody.
	if resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp.Body, nil
}

// Status fetches the agent service description.
func (c *Client) Status(ctx context.Context) (AgentInfo, error) {
	var info AgentInfo
	err := c.getJSON(ctx, "/api/agent/status", &info)
	return info, err
}

type assetRecord struct {
	AssetID   string `json:"asset_id"`
	AssetName string `json:"asset_name"`
	AssetType string `json:"asset_type"`
	Field     string `json:"field"`
}

// LookupAsset resolves an asset id to its display attributes.
func (c *Client) LookupAsset(ctx context.Context, id string) (prompt.FocalEntity, error) {
	if id == "" {
		return prompt.FocalEntity{}, ErrAssetNotFound
	}

	// The service answers null for unknown ids.
	var rec *assetRecord
	if err := c.getJSON(ctx, "/api/assets/"+url.PathEscape(id), &rec); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return prompt.FocalEntity{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
		}
		return prompt.FocalEntity{}, err
	}
	if rec == nil {
		return prompt.FocalEntity{}, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}

	fe := prompt.FocalEntity{
		ID:          rec.AssetID,
		Name:        rec.AssetName,
		Category:    rec.AssetType,
		Subcategory: rec.Field,
	}
	if fe.ID == "" {
		fe.ID = id
	}
	if fe.Name == "" {
		fe.Name = fe.ID
	}
	return fe, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
