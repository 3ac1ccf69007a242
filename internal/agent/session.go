package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cortexchat/internal/conversation"
	"cortexchat/internal/logging"
	"cortexchat/internal/stream"
	"cortexchat/internal/telemetry"

	"github.com/google/uuid"
)

// Status is the session's turn state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// User-visible strings.
const (
	FallbackText    = "Sorry, I encountered an error. Please try again."
	ConnectingStage = "Connecting to Cortex Agent..."
	ProcessingStage = "Processing results..."

	stagePrefixRunes = 50
)

// FailurePolicy decides what happens to streamed content when a turn fails.
type FailurePolicy int

const (
	// ReplaceContent overwrites the open message with FallbackText,
	// discarding partial output.
	ReplaceContent FailurePolicy = iota
	// AppendNotice keeps partial output and appends FallbackText after it.
	AppendNotice
)

// ParseFailurePolicy maps a config value ("replace", "append") to a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "replace":
		return ReplaceContent, nil
	case "append":
		return AppendNotice, nil
	}
	return ReplaceContent, fmt.Errorf("unknown failure policy %q", s)
}

func (p FailurePolicy) String() string {
	if p == AppendNotice {
		return "append"
	}
	return "replace"
}

// Options configures a Session.
type Options struct {
	Transport       Transport
	Store           *conversation.Store // a fresh store when nil
	FailurePolicy   FailurePolicy
	MalformedPolicy stream.MalformedPolicy
	ChunkSize       int
	Timeout         time.Duration // per turn, 0 for none
	Metrics         *telemetry.Metrics
}

// Snapshot is a consistent view of the session for rendering.
type Snapshot struct {
	ConversationID string
	Messages       []conversation.Message
	Status         Status
	Stage          string
}

// Turn is the handle of one submitted turn.
type Turn struct {
	MessageID string

	done chan struct{}
	err  error
}

// Done is closed when the turn has ended and its final state is in the store.
func (t *Turn) Done() <-chan struct{} { return t.done }

// Err is the turn's fatal error, nil on success. Valid after Done.
func (t *Turn) Err() error {
	<-t.done
	return t.err
}

// Session runs turns of one conversation against the agent service. At most
// one turn streams at a time; the session is the only writer of its store.
type Session struct {
	transport Transport
	store     *conversation.Store
	opts      Options

	mu      sync.Mutex
	status  Status
	stage   string
	lastErr error
	cancel  context.CancelFunc
	closed  bool

	wg sync.WaitGroup
}

// NewSession creates an idle session.
func NewSession(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, errors.New("agent: session requires a transport")
	}
	if opts.Store == nil {
		opts.Store = conversation.New()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = stream.DefaultChunkSize
	}
	return &Session{
		transport: opts.Transport,
		store:     opts.Store,
		opts:      opts,
		status:    StatusIdle,
	}, nil
}

// Store returns the conversation the session writes to.
func (s *Session) Store() *conversation.Store { return s.store }

// ConversationID returns the id sent as thread_id.
func (s *Session) ConversationID() string { return s.store.ID() }

// Submit starts a turn for text, already enriched, and returns without
// waiting for the response. focalID is sent as the request context when set.
// While a turn is streaming it returns ErrTurnInFlight and changes nothing.
func (s *Session) Submit(ctx context.Context, text, focalID string) (*Turn, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.status == StatusStreaming {
		s.mu.Unlock()
		s.opts.Metrics.Turn(telemetry.OutcomeRejected, 0)
		logging.AuditFor(s.store.ID()).Log(logging.AuditEvent{
			EventType: logging.AuditTurnRejected,
			Error:     ErrTurnInFlight.Error(),
		})
		return nil, ErrTurnInFlight
	}

	user := conversation.NewUserMessage(text)
	assistant := conversation.NewAssistantMessage()
	if err := s.store.BeginTurn(user, assistant); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("begin turn: %w", err)
	}

	var turnCtx context.Context
	var cancel context.CancelFunc
	if s.opts.Timeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	} else {
		turnCtx, cancel = context.WithCancel(ctx)
	}

	s.status = StatusStreaming
	s.stage = ConnectingStage
	s.lastErr = nil
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()
	s.store.Notify()

	req := RunRequest{Message: text, ThreadID: s.store.ID()}
	if focalID != "" {
		req.Context = &focalID
	}

	t := &Turn{MessageID: assistant.ID, done: make(chan struct{})}
	go s.run(turnCtx, cancel, t, req)
	return t, nil
}

// Send runs one whole turn and returns when it has ended. Failures of the
// turn itself are not returned: they show in Status, LastError and the
// transcript. Only admission errors are returned.
func (s *Session) Send(ctx context.Context, text, focalID string) error {
	t, err := s.Submit(ctx, text, focalID)
	if err != nil {
		return err
	}
	<-t.Done()
	return nil
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, t *Turn, req RunRequest) {
	defer s.wg.Done()
	defer cancel()

	start := time.Now()
	audit := logging.AuditFor(s.store.ID())
	audit.TurnStart(t.MessageID, req.Message)

	err := s.stream(ctx, t.MessageID, audit, req)
	s.finish(t, err)

	audit.TurnEnd(t.MessageID, time.Since(start), err)
	switch {
	case err == nil:
		s.opts.Metrics.Turn(telemetry.OutcomeCompleted, time.Since(start))
		logging.Agent("turn %s completed in %v", t.MessageID, time.Since(start))
	case errors.Is(err, context.Canceled):
		s.opts.Metrics.Turn(telemetry.OutcomeCancelled, time.Since(start))
		logging.AgentWarn("turn %s cancelled", t.MessageID)
	default:
		s.opts.Metrics.Turn(telemetry.OutcomeFailed, time.Since(start))
		logging.AgentError("turn %s failed: %v", t.MessageID, err)
	}
	close(t.done)
}

func (s *Session) stream(ctx context.Context, msgID string, audit *logging.AuditLogger, req RunRequest) error {
	body, err := s.transport.Run(ctx, req)
	if err != nil {
		return err
	}
	if body == nil {
		return ErrNoBody
	}
	defer body.Close()
	// A blocked Read only returns once the body is closed.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	parser := stream.NewParser(s.opts.MalformedPolicy)
	defer func() {
		if n := parser.Malformed(); n > 0 {
			s.opts.Metrics.Malformed(n)
			logging.StreamWarn("turn %s: %d malformed frames (policy=%s)", msgID, n, parser.Policy)
		}
	}()

	err = stream.Lines(ctx, body, s.opts.ChunkSize, func(line string) error {
		ev, ok, err := parser.Parse(line)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return s.apply(ev, msgID, audit)
	})
	// Lines reports ctx.Err() for reads cut short by cancellation. A stream
	// that reached EOF is complete even if the context ends afterwards.
	return err
}

// apply folds one event into the open message. The stage and the message
// change under the session lock, so a Snapshot never sees one without the
// other.
func (s *Session) apply(ev stream.Event, msgID string, audit *logging.AuditLogger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch ev.Type {
	case stream.EventTextDelta:
		err = s.store.UpdateOpen(func(m *conversation.Message) {
			m.Content += ev.Text
		})

	case stream.EventToolStart:
		id := ev.ToolCallID
		if id == "" {
			id = uuid.NewString()
		}
		s.stage = "Using " + ev.ToolName + "..."
		err = s.store.UpdateOpen(func(m *conversation.Message) {
			m.ToolCalls = append(m.ToolCalls, conversation.ToolCall{
				ID:     id,
				Name:   ev.ToolName,
				Status: conversation.ToolRunning,
				Input:  ev.Input,
			})
		})
		audit.Tool(logging.AuditToolStart, msgID, ev.ToolName, true)

	case stream.EventToolEnd:
		// First running call with the name wins. Overlapping calls to the
		// same tool may therefore complete out of order.
		matched := false
		s.stage = ProcessingStage
		err = s.store.UpdateOpen(func(m *conversation.Message) {
			for i := range m.ToolCalls {
				tc := &m.ToolCalls[i]
				if tc.Name == ev.ToolName && tc.Status == conversation.ToolRunning {
					tc.Status = conversation.ToolCompleted
					tc.Output = ev.Output
					matched = true
					return
				}
			}
		})
		if !matched {
			logging.StreamDebug("tool_end for %q matched no running call", ev.ToolName)
		}
		audit.Tool(logging.AuditToolEnd, msgID, ev.ToolName, matched)

	case stream.EventReasoning:
		s.stage = stagePrefix(ev.Text)
		err = s.store.UpdateOpen(func(m *conversation.Message) {
			m.Reasoning += ev.Text
		})
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", ev.Type, err)
	}
	s.opts.Metrics.Event(string(ev.Type))
	return nil
}

func (s *Session) finish(t *Turn, err error) {
	s.mu.Lock()
	if err == nil {
		s.status = StatusIdle
	} else {
		s.status = StatusError
		s.lastErr = err
		_ = s.store.UpdateOpen(func(m *conversation.Message) {
			switch s.opts.FailurePolicy {
			case AppendNotice:
				if m.Content != "" {
					m.Content += "\n\n"
				}
				m.Content += FallbackText
			default:
				m.Content = FallbackText
			}
			for i := range m.ToolCalls {
				if m.ToolCalls[i].Status == conversation.ToolRunning {
					m.ToolCalls[i].Status = conversation.ToolError
				}
			}
		})
	}
	s.stage = ""
	s.cancel = nil
	s.store.FinishTurn()
	t.err = err
	s.mu.Unlock()
	s.store.Notify()
}

// Cancel aborts the streaming turn, if any. The turn ends through the
// failure path.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Clear empties the conversation. Refused while a turn streams.
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.status == StatusStreaming {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	if err := s.store.Clear(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.status = StatusIdle
	s.lastErr = nil
	s.mu.Unlock()
	s.store.Notify()
	return nil
}

// Close cancels any running turn, waits for it and closes the store.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.store.Close()
}

// Status returns the current turn state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stage returns the transient reasoning stage, empty between turns.
func (s *Session) Stage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// LastError returns the error that ended the last failed turn.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns messages, status and stage as of one instant.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ConversationID: s.store.ID(),
		Messages:       s.store.Messages(),
		Status:         s.status,
		Stage:          s.stage,
	}
}

// Subscribe delivers a coalesced signal after every change to the snapshot.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	return s.store.Subscribe()
}

func stagePrefix(text string) string {
	r := []rune(text)
	if len(r) > stagePrefixRunes {
		r = r[:stagePrefixRunes]
	}
	return string(r) + "..."
}
