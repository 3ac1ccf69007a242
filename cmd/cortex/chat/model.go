// Package chat implements the interactive Cortex Agent chat on bubbletea.
// The model never mutates the conversation: it submits turns to the session
// and re-reads a snapshot whenever the session signals a change.
package chat

import (
	"context"

	"cortexchat/cmd/cortex/ui"
	"cortexchat/internal/agent"
	"cortexchat/internal/appstate"
	"cortexchat/internal/prompt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

// Config wires the model to its collaborators.
type Config struct {
	Session *agent.Session
	State   *appstate.State
	Styles  ui.Styles
	// Context bounds turns started from the chat; cancelled on quit.
	Context context.Context
}

// changeMsg reports that the session snapshot changed.
type changeMsg struct{}

// closedMsg reports that the session's change channel closed.
type closedMsg struct{}

// contextMsg reports a change of focal asset or chat context.
type contextMsg struct{}

// Model is the bubbletea model of the chat screen.
type Model struct {
	session *agent.Session
	state   *appstate.State
	styles  ui.Styles
	ctx     context.Context

	changes      <-chan struct{}
	stopChanges  func()
	contextCh    <-chan struct{}
	stopContext  func()
	snapshot     agent.Snapshot
	renderer     *glamour.TermRenderer
	renderCache  *ui.RenderCache
	rendererWrap int

	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model

	width, height   int
	ready           bool
	showReasoning   bool
	suggestionIndex int
	statusMessage   string
}

// New builds the chat model.
func New(cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about assets, risks, or operations..."
	ti.Prompt = "› "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = cfg.Styles.Spinner

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	changes, stopChanges := cfg.Session.Subscribe()
	var contextCh <-chan struct{}
	stopContext := func() {}
	if cfg.State != nil {
		contextCh, stopContext = cfg.State.Subscribe()
	}

	return Model{
		session:         cfg.Session,
		state:           cfg.State,
		styles:          cfg.Styles,
		ctx:             ctx,
		changes:         changes,
		stopChanges:     stopChanges,
		contextCh:       contextCh,
		stopContext:     stopContext,
		snapshot:        cfg.Session.Snapshot(),
		renderCache:     ui.NewRenderCache(256),
		textinput:       ti,
		viewport:        viewport.New(80, 20),
		spinner:         sp,
		suggestionIndex: -1,
	}
}

// Init starts the cursor blink, the spinner and the change listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForChange(m.changes),
		waitForContext(m.contextCh),
	)
}

// waitForChange blocks on the session's coalesced change signal.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return closedMsg{}
		}
		return changeMsg{}
	}
}

func waitForContext(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return contextMsg{}
	}
}

// Shutdown releases the listeners. Safe to call more than once.
func (m Model) Shutdown() {
	if m.stopChanges != nil {
		m.stopChanges()
	}
	if m.stopContext != nil {
		m.stopContext()
	}
}

func (m Model) focal() *prompt.FocalEntity {
	if m.state == nil {
		return nil
	}
	return m.state.Focal()
}

func (m Model) suggestions() []string {
	return prompt.Suggestions(m.focal())
}
