// Package chat defines the conversation data model shared by the run controller,
// tool execution and interrupt handling.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one entry of the conversation history.
// A tool message always carries the ToolCallID of a call in a preceding assistant message.
type ChatMessage struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCallInfo `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewToolMessage creates a tool result message for the given call.
func NewToolMessage(toolCallID, content string) ChatMessage {
	m := NewMessage(RoleTool, content)
	m.ToolCallID = toolCallID
	return m
}

// Clone returns a copy that shares no slices with m.
func (m ChatMessage) Clone() ChatMessage {
	if m.ToolCalls != nil {
		calls := make([]ToolCallInfo, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

// HasToolCalls reports whether the message carries at least one tool call.
func (m ChatMessage) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []ChatMessage) []ChatMessage {
	if msgs == nil {
		return nil
	}
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// LastAssistantIndex returns the index of the last assistant message, or -1.
func LastAssistantIndex(msgs []ChatMessage) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// ToolCallStatus is the lifecycle state of a tool call.
type ToolCallStatus string

const (
	ToolCallPending          ToolCallStatus = "pending"
	ToolCallAwaitingApproval ToolCallStatus = "awaiting_approval"
	ToolCallExecuting        ToolCallStatus = "executing"
	ToolCallCompleted        ToolCallStatus = "completed"
	ToolCallError            ToolCallStatus = "error"
)

func (s ToolCallStatus) rank() int {
	switch s {
	case ToolCallPending:
		return 0
	case ToolCallAwaitingApproval:
		return 1
	case ToolCallExecuting:
		return 2
	case ToolCallCompleted, ToolCallError:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s ToolCallStatus) Valid() bool {
	return s.rank() >= 0
}

// IsTerminal reports whether no further transition is allowed.
func (s ToolCallStatus) IsTerminal() bool {
	return s == ToolCallCompleted || s == ToolCallError
}

// CanAdvance reports whether moving from s to next keeps the status moving forward.
func (s ToolCallStatus) CanAdvance(next ToolCallStatus) bool {
	if !next.Valid() || s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// ToolCallInfo tracks one tool invocation requested by the assistant.
type ToolCallInfo struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Arguments  string         `json:"arguments"`
	ParsedArgs any            `json:"parsedArgs,omitempty"`
	Status     ToolCallStatus `json:"status"`
	Result     string         `json:"result,omitempty"`
}

// AgentState is the application-defined run state. A nil AgentState means idle.
type AgentState map[string]any

// Well-known agent statuses.
const (
	StatusThinking         = "thinking"
	StatusExecuting        = "executing"
	StatusAwaitingApproval = "awaiting_approval"
)

// NewAgentState returns a state carrying only a status.
func NewAgentState(status string) AgentState {
	return AgentState{"status": status}
}

// Status returns the "status" entry, or "" if absent.
func (s AgentState) Status() string {
	v, _ := s["status"].(string)
	return v
}

// CurrentStep returns the "currentStep" entry, or "" if absent.
func (s AgentState) CurrentStep() string {
	v, _ := s["currentStep"].(string)
	return v
}

// Clone returns a shallow copy.
func (s AgentState) Clone() AgentState {
	if s == nil {
		return nil
	}
	out := make(AgentState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns a new state with partial shallow-merged over s.
func (s AgentState) Merge(partial map[string]any) AgentState {
	out := s.Clone()
	if out == nil {
		out = make(AgentState, len(partial))
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// InterruptOption is one choice offered to the user by an interrupt.
type InterruptOption struct {
	Value   string `json:"value"`
	Label   string `json:"label"`
	Variant string `json:"variant,omitempty"`
}

// InterruptInfo describes why a run paused.
type InterruptInfo struct {
	ID       string            `json:"id,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Type     string            `json:"type"`
	Title    string            `json:"title,omitempty"`
	Message  string            `json:"message,omitempty"`
	Options  []InterruptOption `json:"options,omitempty"`
	Payload  any               `json:"payload,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// Kind returns the interrupt discriminator used by handlers.
func (i InterruptInfo) Kind() string {
	if i.Reason != "" {
		return i.Reason
	}
	return i.Type
}

// InterruptFromMap builds an InterruptInfo from a decoded wire object.
// Missing fields get the defaults used by AG-UI clients.
func InterruptFromMap(raw map[string]any) InterruptInfo {
	info := InterruptInfo{
		ID:    stringField(raw, "id"),
		Type:  stringField(raw, "type"),
		Title: stringField(raw, "title"),
	}
	info.Reason = stringField(raw, "reason")
	info.Message = stringField(raw, "message")
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Type == "" {
		info.Type = "custom"
	}
	if info.Title == "" {
		info.Title = "Action Required"
	}
	if p, ok := raw["payload"]; ok {
		info.Payload = p
	}
	if md, ok := raw["metadata"].(map[string]any); ok {
		info.Metadata = md
	}
	if opts, ok := raw["options"].([]any); ok {
		for _, o := range opts {
			om, ok := o.(map[string]any)
			if !ok {
				continue
			}
			info.Options = append(info.Options, InterruptOption{
				Value:   stringField(om, "value"),
				Label:   stringField(om, "label"),
				Variant: stringField(om, "variant"),
			})
		}
	}
	return info
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// OutcomeKind is the terminal state of a run.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeError     OutcomeKind = "error"
	OutcomeInterrupt OutcomeKind = "interrupt"
)

// ParseOutcome maps a wire outcome to its kind, case-insensitively.
// Anything unrecognised is treated as success.
func ParseOutcome(s string) OutcomeKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return OutcomeError
	case "interrupt":
		return OutcomeInterrupt
	default:
		return OutcomeSuccess
	}
}

// RunOutcome is the result carried by RunFinished.
type RunOutcome struct {
	Kind      OutcomeKind    `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Interrupt *InterruptInfo `json:"interrupt,omitempty"`
}

// ContextItem is caller-supplied context forwarded with each run.
type ContextItem struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// AgentRef identifies the agent a controller is bound to.
type AgentRef struct {
	ID    string `json:"agentId"`
	Name  string `json:"agentName"`
	Alias string `json:"agentAlias"`
}
