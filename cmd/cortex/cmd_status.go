package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// statusCmd shows the agent service status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Cortex Agent service status",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	info, err := newClient(cfg).Status(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("agent service unreachable at %s: %w", cfg.Agent.BaseURL, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Service:      %s\n", cfg.Agent.BaseURL)
	fmt.Fprintf(out, "Status:       %s\n", info.Status)
	fmt.Fprintf(out, "Agent:        %s\n", info.Agent)
	fmt.Fprintf(out, "Model:        %s\n", info.Model)
	if len(info.Capabilities) > 0 {
		fmt.Fprintf(out, "Capabilities: %s\n", strings.Join(info.Capabilities, ", "))
	}
	return nil
}
