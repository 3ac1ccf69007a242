package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"cortexchat/internal/agent"
	"cortexchat/internal/appstate"
	"cortexchat/internal/conversation"

	"github.com/spf13/cobra"
)

var (
	askAsset   string
	askContext string
)

// askCmd runs a single turn and streams the answer to stdout
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and stream the answer",
	Long: `Sends one question to the Cortex Agent and prints the answer as it
streams in. The question is enriched with the focal asset or chat context
from the config, or from --asset and --context.

Example:
  cortex ask --asset PUMP-007 "What is the risk assessment for this asset?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askAsset, "asset", "", "Focal asset id")
	askCmd.Flags().StringVar(&askContext, "context", "", "Free-text page context")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	session, err := newSession(cfg, client, nil)
	if err != nil {
		return err
	}
	defer session.Close()

	ctxCfg := cfg.Context
	if askAsset != "" {
		ctxCfg.FocalAsset = askAsset
	}
	if askContext != "" {
		ctxCfg.ChatContext = askContext
	}
	state := appstate.New()
	seedContext(ctx, ctxCfg, state, client)

	text, focalID := state.Compose(strings.TrimSpace(strings.Join(args, " ")))

	changes, unsubscribe := session.Subscribe()
	defer unsubscribe()

	turn, err := session.Submit(ctx, text, focalID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	written := ""
	flush := func() {
		msg, ok := findMessage(session, turn.MessageID)
		if !ok || !strings.HasPrefix(msg.Content, written) {
			return
		}
		fmt.Fprint(out, msg.Content[len(written):])
		written = msg.Content
	}

	for {
		select {
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if session.Status() == agent.StatusStreaming {
				flush()
			}
		case <-turn.Done():
			if err := turn.Err(); err != nil {
				if written != "" {
					fmt.Fprintln(out)
				}
				return fmt.Errorf("%s (%w)", agent.FallbackText, err)
			}
			flush()
			fmt.Fprintln(out)
			return nil
		}
	}
}

func findMessage(s *agent.Session, id string) (conversation.Message, bool) {
	msgs := s.Store().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == id {
			return msgs[i], true
		}
	}
	return conversation.Message{}, false
}
