package chat

import (
	"errors"
	"strings"

	"cortexchat/internal/agent"
	"cortexchat/internal/logging"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	msgBusy    = "The agent is still responding. Press esc to cancel."
	msgCleared = "Conversation cleared."
)

// Update handles input, resize and session change notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.Shutdown()
			return m, tea.Quit

		case tea.KeyEsc:
			// Esc stops the running turn; with nothing running it quits.
			if m.snapshot.Status == agent.StatusStreaming {
				m.session.Cancel()
				m.statusMessage = "Cancelling..."
				return m, nil
			}
			m.Shutdown()
			return m, tea.Quit

		case tea.KeyCtrlL:
			if err := m.session.Clear(); err != nil {
				if errors.Is(err, agent.ErrTurnInFlight) {
					m.statusMessage = msgBusy
				} else {
					m.statusMessage = err.Error()
				}
				return m, nil
			}
			m.renderCache.Clear()
			m.suggestionIndex = -1
			m.statusMessage = msgCleared
			m.snapshot = m.session.Snapshot()
			m.refresh()
			return m, nil

		case tea.KeyCtrlR:
			m.showReasoning = !m.showReasoning
			m.refresh()
			return m, nil

		case tea.KeyTab:
			if len(m.snapshot.Messages) == 0 {
				sugs := m.suggestions()
				m.suggestionIndex = (m.suggestionIndex + 1) % len(sugs)
				m.textinput.SetValue(sugs[m.suggestionIndex])
				m.textinput.CursorEnd()
				m.refresh()
			}
			return m, nil

		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case changeMsg:
		m.snapshot = m.session.Snapshot()
		if m.snapshot.Status != agent.StatusStreaming && m.statusMessage == "Cancelling..." {
			m.statusMessage = ""
		}
		m.refresh()
		return m, waitForChange(m.changes)

	case closedMsg:
		m.changes = nil
		return m, nil

	case contextMsg:
		// Suggestions depend on the focal asset.
		m.suggestionIndex = -1
		m.refresh()
		return m, waitForContext(m.contextCh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// submit enriches the typed text with the current context and starts a turn.
// Input is kept when the session refuses the turn.
func (m Model) submit() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(m.textinput.Value())
	if raw == "" {
		return m, nil
	}
	if m.snapshot.Status == agent.StatusStreaming {
		m.statusMessage = msgBusy
		return m, nil
	}

	text, focalID := raw, ""
	if m.state != nil {
		text, focalID = m.state.Compose(raw)
	}

	if _, err := m.session.Submit(m.ctx, text, focalID); err != nil {
		if errors.Is(err, agent.ErrTurnInFlight) {
			m.statusMessage = msgBusy
		} else {
			m.statusMessage = err.Error()
			logging.UIWarn("submit failed: %v", err)
		}
		return m, nil
	}

	logging.UIDebug("turn submitted: raw_len=%d enriched=%t", len(raw), text != raw)
	m.textinput.Reset()
	m.suggestionIndex = -1
	m.statusMessage = ""
	m.snapshot = m.session.Snapshot()
	m.refresh()
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	// header, context line, divider, stage, status, input, footer
	vpHeight := height - 7
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.textinput.Width = width - 4

	wrap := width - 4
	if wrap < 20 {
		wrap = 20
	}
	if wrap != m.rendererWrap || m.renderer == nil {
		style := "light"
		if m.styles.Theme.IsDark {
			style = "dark"
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			logging.UIWarn("markdown renderer unavailable: %v", err)
		}
		m.renderer = r
		m.rendererWrap = wrap
		m.renderCache.Clear()
	}
	m.ready = true
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}
