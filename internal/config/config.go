package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cortexchat configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Agent service connection and turn policies
	Agent AgentConfig `yaml:"agent"`

	// Ambient prompt context
	Context ContextConfig `yaml:"context"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// AgentConfig configures the agent service client.
type AgentConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"` // Whole-turn timeout, e.g. "5m"

	// ChunkSize is the read buffer size for the response stream.
	ChunkSize int `yaml:"chunk_size"`

	// FailurePolicy: "replace" (content becomes the fallback text) or
	// "append" (streamed content is kept and the fallback text appended).
	FailurePolicy string `yaml:"failure_policy"`

	// MalformedPolicy: "skip" (drop undecodable frames) or "reject" (fail the turn).
	MalformedPolicy string `yaml:"malformed_policy"`
}

// ContextConfig seeds the focal entity and chat context used for prompt enrichment.
type ContextConfig struct {
	FocalAsset  string `yaml:"focal_asset"`  // Asset id resolved through the assets API
	ChatContext string `yaml:"chat_context"` // Free-text page context

	// SelectionFile is a YAML file rewritten by the dashboard whenever the
	// user selects an asset or changes page. Watched for changes when set.
	SelectionFile string `yaml:"selection_file"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Dir        string          `yaml:"dir"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Valid policy names.
var (
	ValidFailurePolicies   = []string{"replace", "append"}
	ValidMalformedPolicies = []string{"skip", "reject"}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "cortexchat",
		Version: "0.3.0",
		Agent: AgentConfig{
			BaseURL:         "http://localhost:8000",
			Timeout:         "5m",
			ChunkSize:       4096,
			FailurePolicy:   "replace",
			MalformedPolicy: "skip",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(".cortex", "logs"),
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CORTEX_AGENT_URL"); url != "" {
		c.Agent.BaseURL = url
	}
	if timeout := os.Getenv("CORTEX_TIMEOUT"); timeout != "" {
		c.Agent.Timeout = timeout
	}
	if asset := os.Getenv("CORTEX_FOCAL_ASSET"); asset != "" {
		c.Context.FocalAsset = asset
	}
	if chatCtx := os.Getenv("CORTEX_CHAT_CONTEXT"); chatCtx != "" {
		c.Context.ChatContext = chatCtx
	}
	if debug := os.Getenv("CORTEX_DEBUG"); debug != "" {
		if on, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = on
			if on {
				c.Logging.Level = "debug"
			}
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Agent.BaseURL == "" {
		return fmt.Errorf("agent base_url not configured (set agent.base_url or CORTEX_AGENT_URL)")
	}
	if _, err := c.TurnTimeout(); err != nil {
		return err
	}
	if c.Agent.ChunkSize < 0 {
		return fmt.Errorf("invalid agent chunk_size: %d", c.Agent.ChunkSize)
	}
	if !contains(ValidFailurePolicies, c.Agent.FailurePolicy) {
		return fmt.Errorf("invalid failure_policy: %s (valid: %v)", c.Agent.FailurePolicy, ValidFailurePolicies)
	}
	if !contains(ValidMalformedPolicies, c.Agent.MalformedPolicy) {
		return fmt.Errorf("invalid malformed_policy: %s (valid: %v)", c.Agent.MalformedPolicy, ValidMalformedPolicies)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics enabled without listen_addr")
	}
	return nil
}

// TurnTimeout parses Agent.Timeout. An empty value means no timeout.
func (c *Config) TurnTimeout() (time.Duration, error) {
	if c.Agent.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Agent.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid agent timeout %q: %w", c.Agent.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid agent timeout %q: negative", c.Agent.Timeout)
	}
	return d, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
