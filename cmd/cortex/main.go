package main

import (
	"fmt"
	"os"
	"path/filepath"

	"cortexchat/internal/agent"
	"cortexchat/internal/config"
	"cortexchat/internal/logging"
	"cortexchat/internal/stream"
	"cortexchat/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	agentURL   string

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cortex",
	Short: "Cortex Agent chat client",
	Long: `cortex talks to the Cortex Agent service and streams its answers.

Questions are enriched with the asset or page you are looking at, so the
agent knows what "this asset" means. A dashboard can hand over a selection
and a queued question through the selection file.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if agentURL != "" {
			loaded.Agent.BaseURL = agentURL
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Dir:        cfg.Logging.Dir,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
			Categories: cfg.Logging.Categories,
		}); err != nil {
			return err
		}
		// The chat owns the terminal; everything else may mirror to stderr.
		if verbose && !isInteractive(cmd) {
			logging.UseCore(logger.Core())
		}
		logging.Boot("config loaded from %s (agent %s)", configPath, cfg.Agent.BaseURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runChat(cmd, args)
	},
}

// configInitCmd writes the default configuration
var configInitCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", filepath.Join(".cortex", "config.yaml"), "Config file")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent-url", "", "Agent service base URL (or set CORTEX_AGENT_URL)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configInitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func isInteractive(cmd *cobra.Command) bool {
	return !cmd.HasParent() || cmd.Name() == "chat"
}

// newClient builds the agent service client from config. Lookups and status
// use the client's default timeout; turns use the configured turn timeout.
func newClient(c *config.Config) *agent.Client {
	return agent.NewClient(agent.ClientConfig{BaseURL: c.Agent.BaseURL})
}

// newSession builds a session over transport with the configured policies.
func newSession(c *config.Config, transport agent.Transport, metrics *telemetry.Metrics) (*agent.Session, error) {
	failure, err := agent.ParseFailurePolicy(c.Agent.FailurePolicy)
	if err != nil {
		return nil, err
	}
	malformed, err := stream.ParseMalformedPolicy(c.Agent.MalformedPolicy)
	if err != nil {
		return nil, err
	}
	timeout, err := c.TurnTimeout()
	if err != nil {
		return nil, err
	}
	return agent.NewSession(agent.Options{
		Transport:       transport,
		FailurePolicy:   failure,
		MalformedPolicy: malformed,
		ChunkSize:       c.Agent.ChunkSize,
		Timeout:         timeout,
		Metrics:         metrics,
	})
}
