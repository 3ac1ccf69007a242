package chat

import (
	"fmt"
	"strings"

	"cortexchat/cmd/cortex/ui"
	"cortexchat/internal/agent"
	"cortexchat/internal/conversation"
	"cortexchat/internal/stream"
)

const toolPreviewRunes = 60

// View renders the whole screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if line := m.renderContextLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(m.styles.RenderDivider(m.width))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.snapshot.Status == agent.StatusStreaming {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(m.styles.Stage.Render(m.snapshot.Stage))
		b.WriteString("\n")
	}
	if m.statusMessage != "" {
		b.WriteString(m.styles.Muted.Render(m.statusMessage))
		b.WriteString("\n")
	}

	b.WriteString(m.textinput.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Footer.Render("enter send • tab suggestion • esc cancel/quit • ctrl+r reasoning • ctrl+l clear"))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render("Cortex Agent")
	var badge string
	switch m.snapshot.Status {
	case agent.StatusStreaming:
		badge = m.styles.Badge.Render("streaming")
	case agent.StatusError:
		badge = m.styles.Error.Render(" error ")
	default:
		badge = m.styles.Muted.Render(" idle ")
	}
	return title + " " + badge
}

func (m Model) renderContextLine() string {
	if m.state == nil {
		return ""
	}
	if f := m.state.Focal(); f != nil {
		return m.styles.Context.Render(fmt.Sprintf("Context: %s (%s)", f.Name, f.Category))
	}
	if c := m.state.ChatContext(); c != "" {
		return m.styles.Context.Render("Context: " + c)
	}
	return ""
}

// renderTranscript renders every message of the current snapshot.
func (m Model) renderTranscript() string {
	msgs := m.snapshot.Messages
	if len(msgs) == 0 {
		return m.renderWelcome()
	}

	var b strings.Builder
	for i, msg := range msgs {
		open := m.snapshot.Status == agent.StatusStreaming && i == len(msgs)-1
		if msg.Role == conversation.RoleUser {
			b.WriteString(m.styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(m.styles.UserMessage.Render(msg.Content))
			b.WriteString("\n\n")
			continue
		}
		b.WriteString(m.renderAssistant(msg, open))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderAssistant(msg conversation.Message, open bool) string {
	var b strings.Builder
	b.WriteString(m.styles.AgentLabel.Render("Cortex Agent"))
	b.WriteString("\n")

	for _, tc := range msg.ToolCalls {
		line := m.styles.ToolBadge(tc.Name, string(tc.Status))
		if in := stream.PayloadText(tc.Input); in != "" {
			line += " " + m.styles.Muted.Render(preview(in))
		}
		b.WriteString("  " + line + "\n")
	}

	if m.showReasoning && msg.Reasoning != "" {
		b.WriteString(m.styles.Reasoning.Render(msg.Reasoning))
		b.WriteString("\n")
	}

	if msg.Content != "" {
		b.WriteString(m.styles.AgentResponse.Render(m.markdown(msg, open)))
		b.WriteString("\n")
	}
	return b.String()
}

// markdown renders content through glamour. Frozen messages are cached;
// the open message changes on every delta and is rendered fresh.
func (m Model) markdown(msg conversation.Message, open bool) string {
	if m.renderer == nil {
		return msg.Content
	}
	render := func() string {
		out, err := m.renderer.Render(msg.Content)
		if err != nil {
			return msg.Content
		}
		return strings.TrimRight(out, "\n")
	}
	if open {
		return render()
	}
	return m.renderCache.GetOrCompute(ui.ComputeKey(msg.ID, msg.Content, m.rendererWrap), render)
}

func (m Model) renderWelcome() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Ask the Cortex Agent about your network"))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Muted.Render("Suggestions (tab to use):"))
	b.WriteString("\n")
	for i, s := range m.suggestions() {
		marker := "  "
		if i == m.suggestionIndex {
			marker = m.styles.SuggestionHint.Render("› ")
		}
		b.WriteString(marker + m.styles.Suggestion.Render(s) + "\n")
	}
	return b.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= toolPreviewRunes {
		return s
	}
	return string(r[:toolPreviewRunes]) + "..."
}
