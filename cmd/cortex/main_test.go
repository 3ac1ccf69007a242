package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"cortexchat/internal/agent"
	"cortexchat/internal/appstate"
	"cortexchat/internal/config"
	"cortexchat/internal/prompt"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeService emulates the agent service endpoints used by the CLI.
type fakeService struct {
	frames []string

	mu   sync.Mutex
	runs []agent.RunRequest
}

func (f *fakeService) requests() []agent.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.RunRequest(nil), f.runs...)
}

func (f *fakeService) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(agent.AgentInfo{
			Status:       "ready",
			Agent:        "cortex",
			Model:        "analyst-large",
			Capabilities: []string{"asset_search", "risk_analysis"},
		})
	})
	mux.HandleFunc("/api/assets/PUMP-7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"asset_id":"PUMP-7","asset_name":"Pump 7","asset_type":"Equipment","field":"North Field"}`)
	})
	mux.HandleFunc("/api/assets/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `null`)
	})
	mux.HandleFunc("/api/agent/run", func(w http.ResponseWriter, r *http.Request) {
		var req agent.RunRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.runs = append(f.runs, req)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		for _, fr := range f.frames {
			_, _ = io.WriteString(w, fr+"\n\n")
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func setup(t *testing.T, baseURL string) *bytes.Buffer {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.Agent.BaseURL = baseURL
	askAsset, askContext = "", ""
	t.Cleanup(func() { askAsset, askContext = "", "" })
	return new(bytes.Buffer)
}

func newTestCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetContext(context.Background())
	return cmd
}

func TestShowStatus(t *testing.T) {
	server := (&fakeService{}).start(t)
	out := setup(t, server.URL)

	require.NoError(t, showStatus(newTestCommand(out), nil))
	assert.Contains(t, out.String(), "Status:       ready")
	assert.Contains(t, out.String(), "Model:        analyst-large")
	assert.Contains(t, out.String(), "asset_search, risk_analysis")
}

func TestShowStatusUnreachable(t *testing.T) {
	server := (&fakeService{}).start(t)
	url := server.URL
	server.Close()
	out := setup(t, url)

	err := showStatus(newTestCommand(out), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestRunAskStreamsEnrichedAnswer(t *testing.T) {
	svc := &fakeService{frames: []string{
		`data: {"type":"tool_start","tool_name":"risk_analysis"}`,
		`data: {"type":"tool_end","tool_name":"risk_analysis"}`,
		`data: {"type":"text_delta","text":"Risk is "}`,
		`data: {"type":"text_delta","text":"moderate."}`,
		`data: [DONE]`,
	}}
	server := svc.start(t)
	out := setup(t, server.URL)
	askAsset = "PUMP-7"

	require.NoError(t, runAsk(newTestCommand(out), []string{"What", "is", "the", "risk?"}))
	assert.Equal(t, "Risk is moderate.\n", out.String())

	runs := svc.requests()
	require.Len(t, runs, 1)
	focal := &prompt.FocalEntity{ID: "PUMP-7", Name: "Pump 7", Category: "Equipment", Subcategory: "North Field"}
	assert.Equal(t, prompt.Enrich("What is the risk?", focal, ""), runs[0].Message)
	require.NotNil(t, runs[0].Context)
	assert.Equal(t, "PUMP-7", *runs[0].Context)
	assert.NotEmpty(t, runs[0].ThreadID)
}

func TestRunAskChatContextOnly(t *testing.T) {
	svc := &fakeService{frames: []string{`data: {"type":"text_delta","text":"ok"}`, `data: [DONE]`}}
	server := svc.start(t)
	out := setup(t, server.URL)
	askContext = "Dashboard overview"

	require.NoError(t, runAsk(newTestCommand(out), []string{"summarize"}))
	runs := svc.requests()
	require.Len(t, runs, 1)
	assert.Equal(t, "[Context: Dashboard overview]\n\nsummarize", runs[0].Message)
	assert.Nil(t, runs[0].Context)
}

func TestRunAskAgentError(t *testing.T) {
	svc := &fakeService{frames: []string{
		`data: {"type":"text_delta","text":"partial"}`,
		`data: {"type":"error","message":"model overloaded"}`,
	}}
	server := svc.start(t)
	out := setup(t, server.URL)

	err := runAsk(newTestCommand(out), []string{"hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), agent.FallbackText)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestSeedContextFallsBackToID(t *testing.T) {
	server := (&fakeService{}).start(t)
	setup(t, server.URL)

	state := appstate.New()
	seedContext(context.Background(), config.ContextConfig{FocalAsset: "UNKNOWN-1", ChatContext: "Map"}, state, newClient(cfg))

	f := state.Focal()
	require.NotNil(t, f)
	assert.Equal(t, "UNKNOWN-1", f.ID)
	assert.Equal(t, "UNKNOWN-1", f.Name)
	assert.Equal(t, "Map", state.ChatContext())
}

func TestNewSessionRejectsUnknownPolicy(t *testing.T) {
	c := config.DefaultConfig()
	c.Agent.FailurePolicy = "explode"
	_, err := newSession(c, newClient(c), nil)
	require.Error(t, err)
}

func TestRootCommandLoadsConfig(t *testing.T) {
	server := (&fakeService{}).start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	c := config.DefaultConfig()
	c.Agent.BaseURL = server.URL
	c.Logging.Dir = filepath.Join(dir, "logs")
	require.NoError(t, c.Save(path))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", path, "status"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Service:      "+server.URL)
	assert.Equal(t, server.URL, cfg.Agent.BaseURL)
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	c := config.DefaultConfig()
	c.Agent.MalformedPolicy = "sometimes"
	require.NoError(t, c.Save(path))

	rootCmd.SetArgs([]string{"--config", path, "status"})
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed_policy")
}
