// Package approval tracks human-in-the-loop decisions: tool call approvals and
// interrupt prompts waiting for an answer from the host.
package approval

import (
	"errors"
	"strings"
	"time"

	"agentrun/internal/chat"
)

var (
	ErrMaxPendingExceeded = errors.New("approval: too many pending requests")
	ErrRequestNotFound    = errors.New("approval: request not found")
	ErrTimedOut           = errors.New("approval: request timed out")
	ErrClosed             = errors.New("approval: manager closed")
)

// Decision is how a request was resolved.
type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
	DecisionTimeout   Decision = "timeout"
	DecisionCancelled Decision = "cancelled"
)

// Kind distinguishes what a request is about.
type Kind string

const (
	KindTool      Kind = "tool"
	KindInterrupt Kind = "interrupt"
)

// Request is a pending question for the user.
type Request struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	ToolCallID string                 `json:"toolCallId,omitempty"`
	ToolName   string                 `json:"toolName,omitempty"`
	Arguments  map[string]any         `json:"arguments,omitempty"`
	Title      string                 `json:"title,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Options    []chat.InterruptOption `json:"options,omitempty"`
	Payload    any                    `json:"payload,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	ExpiresAt  time.Time              `json:"expiresAt"`
}

// Response is the user's answer to a Request.
type Response struct {
	Approved bool   `json:"approved"`
	Value    any    `json:"value,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Result is the resolution of a Request.
type Result struct {
	Approved  bool      `json:"approved"`
	Value     any       `json:"value,omitempty"`
	Message   string    `json:"message,omitempty"`
	Decision  Decision  `json:"decision"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Notifier announces request lifecycle changes to the host.
type Notifier interface {
	NotifyRequest(req *Request) error
	NotifyResolved(req *Request, result *Result) error
}

// AuditLogger records requests and decisions.
type AuditLogger interface {
	LogRequest(req *Request) error
	LogDecision(req *Request, result *Result) error
}

// ParseAnswer interprets a free-form answer. "deny"/"no" strings and objects
// carrying approved:false or cancelled:true are denials; anything else approves
// and is kept as the value.
func ParseAnswer(answer any) Response {
	switch v := answer.(type) {
	case nil:
		return Response{Approved: false}
	case bool:
		return Response{Approved: v}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "deny", "denied", "no", "n", "reject", "cancel":
			return Response{Approved: false, Value: v}
		}
		return Response{Approved: true, Value: v}
	case map[string]any:
		if c, ok := v["cancelled"].(bool); ok && c {
			return Response{Approved: false, Value: v}
		}
		if a, ok := v["approved"].(bool); ok && !a {
			return Response{Approved: false, Value: v}
		}
		return Response{Approved: true, Value: v}
	default:
		return Response{Approved: true, Value: v}
	}
}
