// Package conversation holds the chat transcript of one open conversation:
// an append-only message log in which only the current turn's assistant
// message is mutable.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolStatus is the lifecycle state of a tool call.
// Transitions are one-way: running -> completed or running -> error.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s ToolStatus) Terminal() bool {
	return s == ToolCompleted || s == ToolError
}

// ToolCall is one server-side tool invocation during a turn.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Status ToolStatus      `json:"status"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Message is one turn entry in the conversation.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // assistant only
	Reasoning string     `json:"reasoning,omitempty"`  // assistant only, shown on demand
}

// NewUserMessage returns a frozen user message with a fresh id.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage returns an empty assistant message ready to stream into.
func NewAssistantMessage() Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		ToolCalls: []ToolCall{},
	}
}

// Clone returns a deep copy so snapshots never alias store memory.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			tc.Input = cloneRaw(tc.Input)
			tc.Output = cloneRaw(tc.Output)
			out.ToolCalls[i] = tc
		}
	}
	return out
}

// RunningTools counts tool calls still in flight.
func (m Message) RunningTools() int {
	n := 0
	for _, tc := range m.ToolCalls {
		if tc.Status == ToolRunning {
			n++
		}
	}
	return n
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}
