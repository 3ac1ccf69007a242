package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// Wire framing constants.
const (
	DataPrefix = "data: "
	DoneMarker = "[DONE]"
)

// EventType discriminates agent stream events.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventReasoning EventType = "reasoning"
	EventError     EventType = "error"
)

// Known reports whether t is one of the recognized event types.
func (t EventType) Known() bool {
	switch t {
	case EventTextDelta, EventToolStart, EventToolEnd, EventReasoning, EventError:
		return true
	}
	return false
}

// Event is one decoded agent stream event. Fields not used by Type are empty.
type Event struct {
	Type       EventType       `json:"type"`
	Text       string          `json:"text,omitempty"`         // text_delta, reasoning
	ToolName   string          `json:"tool_name,omitempty"`    // tool_start, tool_end
	ToolCallID string          `json:"tool_call_id,omitempty"` // tool_start
	Input      json.RawMessage `json:"input,omitempty"`        // tool_start
	Output     json.RawMessage `json:"output,omitempty"`       // tool_end
	Message    string          `json:"message,omitempty"`      // error
}

// AgentError is an application-level failure reported by the agent service
// through an error event. It aborts the turn.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return "agent error: " + e.Message
}

// MalformedError reports a data frame whose payload could not be decoded.
// Only returned under RejectMalformed.
type MalformedError struct {
	Payload string
	Err     error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed event payload %q: %v", truncate(e.Payload, 80), e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// MalformedPolicy decides what happens to a data frame whose payload is not a
// valid event object.
type MalformedPolicy int

const (
	// SkipMalformed drops the frame and keeps reading. Malformed payloads are
	// treated as framing artifacts, not as agent failures.
	SkipMalformed MalformedPolicy = iota
	// RejectMalformed fails the turn with a *MalformedError.
	RejectMalformed
)

// ParseMalformedPolicy maps a config value ("skip", "reject") to a policy.
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch s {
	case "", "skip":
		return SkipMalformed, nil
	case "reject":
		return RejectMalformed, nil
	}
	return SkipMalformed, fmt.Errorf("unknown malformed policy %q", s)
}

func (p MalformedPolicy) String() string {
	if p == RejectMalformed {
		return "reject"
	}
	return "skip"
}

// Parser turns protocol lines into events under a MalformedPolicy and keeps
// counters of what it discarded. Safe for concurrent use of the counters.
type Parser struct {
	Policy MalformedPolicy

	malformed atomic.Int64
	ignored   atomic.Int64
}

// NewParser returns a parser using policy.
func NewParser(policy MalformedPolicy) *Parser {
	return &Parser{Policy: policy}
}

// Parse decodes one line. It returns ok=false when the line carries no event
// (non-data line, done marker, unknown type, or a malformed payload skipped by
// policy). An error event is returned as *AgentError and must end the turn.
func (p *Parser) Parse(line string) (ev Event, ok bool, err error) {
	if !strings.HasPrefix(line, DataPrefix) {
		p.ignored.Add(1)
		return Event{}, false, nil
	}

	data := strings.TrimSpace(line[len(DataPrefix):])
	if data == DoneMarker {
		return Event{}, false, nil
	}

	// Only the envelope is strict: type must be a string. Scalar fields are
	// coerced to text so a wrongly typed field never hides the event.
	var w wireEvent
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		p.malformed.Add(1)
		if p.Policy == RejectMalformed {
			return Event{}, false, &MalformedError{Payload: data, Err: err}
		}
		return Event{}, false, nil
	}

	switch {
	case w.Type == EventError:
		msg := PayloadText(w.Message)
		if msg == "" {
			msg = "Agent error"
		}
		return Event{Type: EventError, Message: msg}, false, &AgentError{Message: msg}
	case !w.Type.Known():
		p.ignored.Add(1)
		return Event{}, false, nil
	}
	return Event{
		Type:       w.Type,
		Text:       PayloadText(w.Text),
		ToolName:   PayloadText(w.ToolName),
		ToolCallID: PayloadText(w.ToolCallID),
		Input:      w.Input,
		Output:     w.Output,
	}, true, nil
}

// wireEvent is the lenient decoding shape of Event.
type wireEvent struct {
	Type       EventType       `json:"type"`
	Text       json.RawMessage `json:"text"`
	ToolName   json.RawMessage `json:"tool_name"`
	ToolCallID json.RawMessage `json:"tool_call_id"`
	Input      json.RawMessage `json:"input"`
	Output     json.RawMessage `json:"output"`
	Message    json.RawMessage `json:"message"`
}

// Malformed returns how many data frames failed to decode.
func (p *Parser) Malformed() int64 { return p.malformed.Load() }

// Ignored returns how many lines were ignored as non-data or unknown type.
func (p *Parser) Ignored() int64 { return p.ignored.Load() }

// ParseLine parses with the default SkipMalformed policy.
func ParseLine(line string) (Event, bool, error) {
	var p Parser
	return p.Parse(line)
}

// PayloadText renders an opaque tool payload for display: JSON strings are
// unquoted, anything else is returned as compact JSON text.
func PayloadText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
