// Package websocket pushes controller state to browser clients and receives
// their approval answers.
package websocket

import "encoding/json"

// Message is a frame received from a client.
type Message struct {
	Type string `json:"type"`

	// chat
	Content string `json:"content,omitempty"`

	// approval_response
	RequestID string          `json:"requestId,omitempty"`
	Approved  bool            `json:"approved,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Frame is a message sent to clients.
type Frame struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Message types.
const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeChat  = "chat"
	TypeError = "error"

	TypeSnapshot   = "snapshot"
	TypeMessages   = "messages"
	TypeStreaming  = "streaming"
	TypeAgentState = "agent_state"
	TypeReload     = "reload"

	TypeApprovalRequest  = "approval_request"
	TypeApprovalResponse = "approval_response"
	TypeApprovalResolved = "approval_resolved"
)
