package logging

import (
	"time"
)

// AuditEventType names one entry in the turn audit trail.
type AuditEventType string

const (
	AuditTurnStart    AuditEventType = "turn_start"
	AuditTurnComplete AuditEventType = "turn_complete"
	AuditTurnFailed   AuditEventType = "turn_failed"
	AuditTurnRejected AuditEventType = "turn_rejected"

	AuditToolStart AuditEventType = "tool_start"
	AuditToolEnd   AuditEventType = "tool_end"

	AuditPromptDispatched AuditEventType = "prompt_dispatched"
)

// AuditEvent is a structured audit entry written to the audit category.
type AuditEvent struct {
	EventType      AuditEventType
	ConversationID string
	MessageID      string
	Target         string // tool name, prompt preview
	Success        bool
	Duration       time.Duration
	Error          string
}

// AuditLogger writes AuditEvents scoped to one conversation.
type AuditLogger struct {
	conversationID string
}

// AuditFor returns an audit logger scoped to a conversation.
func AuditFor(conversationID string) *AuditLogger {
	return &AuditLogger{conversationID: conversationID}
}

// Log writes the event as structured fields. No-op unless the audit category is enabled.
func (a *AuditLogger) Log(ev AuditEvent) {
	l := Get(CategoryAudit)
	if l.sugar == nil {
		return
	}
	if ev.ConversationID == "" {
		ev.ConversationID = a.conversationID
	}

	kv := []interface{}{
		"event", string(ev.EventType),
		"conversation", ev.ConversationID,
		"success", ev.Success,
	}
	if ev.MessageID != "" {
		kv = append(kv, "message", ev.MessageID)
	}
	if ev.Target != "" {
		kv = append(kv, "target", ev.Target)
	}
	if ev.Duration > 0 {
		kv = append(kv, "dur_ms", ev.Duration.Milliseconds())
	}
	if ev.Error != "" {
		kv = append(kv, "error", ev.Error)
	}
	l.sugar.Infow(string(ev.EventType), kv...)
}

// TurnStart records the admission of a turn.
func (a *AuditLogger) TurnStart(messageID, prompt string) {
	a.Log(AuditEvent{EventType: AuditTurnStart, MessageID: messageID, Target: preview(prompt), Success: true})
}

// TurnEnd records the end of a turn, failed when err is non-nil.
func (a *AuditLogger) TurnEnd(messageID string, dur time.Duration, err error) {
	ev := AuditEvent{EventType: AuditTurnComplete, MessageID: messageID, Duration: dur, Success: true}
	if err != nil {
		ev.EventType = AuditTurnFailed
		ev.Success = false
		ev.Error = err.Error()
	}
	a.Log(ev)
}

// Tool records a tool_start or tool_end event.
func (a *AuditLogger) Tool(ev AuditEventType, messageID, toolName string, matched bool) {
	a.Log(AuditEvent{EventType: ev, MessageID: messageID, Target: toolName, Success: matched})
}

func preview(s string) string {
	const max = 60
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
