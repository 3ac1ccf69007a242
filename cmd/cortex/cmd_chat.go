package main

import (
	"context"
	"os/signal"
	"syscall"

	"cortexchat/cmd/cortex/chat"
	"cortexchat/cmd/cortex/ui"
	"cortexchat/internal/agent"
	"cortexchat/internal/appstate"
	"cortexchat/internal/config"
	"cortexchat/internal/dispatch"
	"cortexchat/internal/logging"
	"cortexchat/internal/prompt"
	"cortexchat/internal/telemetry"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// chatCmd starts the interactive chat
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat",
	Long: `Opens the interactive chat with the Cortex Agent.

When context.selection_file is set, the file is watched: a new selection
changes the focal asset, and a pending_prompt is sent as soon as the agent
is free.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.New()
	}
	session, err := newSession(cfg, client, metrics)
	if err != nil {
		return err
	}
	defer session.Close()

	state := appstate.New()
	seedContext(ctx, cfg.Context, state, client)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	model := chat.New(chat.Config{
		Session: session,
		State:   state,
		Styles:  ui.NewStyles(ui.DetectTheme()),
		Context: runCtx,
	})
	defer model.Shutdown()
	p := tea.NewProgram(model, tea.WithAltScreen())

	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		return err
	})
	g.Go(func() error {
		<-runCtx.Done()
		p.Quit()
		return nil
	})
	g.Go(func() error {
		return dispatch.New(state, session, metrics).Run(runCtx)
	})
	if path := cfg.Context.SelectionFile; path != "" {
		watcher := appstate.NewSelectionWatcher(path, state, client)
		g.Go(func() error {
			return watcher.Run(runCtx)
		})
	}
	if metrics != nil {
		g.Go(func() error {
			logging.Boot("metrics listening on %s", cfg.Metrics.ListenAddr)
			return metrics.Serve(runCtx, cfg.Metrics.ListenAddr)
		})
	}

	return g.Wait()
}

// seedContext applies the configured focal asset and chat context. An asset
// the service cannot resolve is kept by id so prompts still carry it.
func seedContext(ctx context.Context, c config.ContextConfig, state *appstate.State, lookup agent.AssetLookup) {
	if c.ChatContext != "" {
		state.SetChatContext(c.ChatContext)
	}
	if c.FocalAsset == "" {
		return
	}
	fe, err := lookup.LookupAsset(ctx, c.FocalAsset)
	if err != nil {
		logging.ContextWarn("focal asset %s not resolved: %v", c.FocalAsset, err)
		fe = prompt.FocalEntity{ID: c.FocalAsset, Name: c.FocalAsset}
	}
	state.SetFocal(&fe)
	logging.Context("focal asset %s (%s)", fe.Name, fe.Category)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
