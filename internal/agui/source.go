package agui

import (
	"context"

	"agentrun/internal/chat"
)

// Tool is a frontend tool definition advertised to the agent.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RunInput is everything an event source needs to start a run.
type RunInput struct {
	ThreadID string             `json:"threadId"`
	RunID    string             `json:"runId"`
	Messages []chat.ChatMessage `json:"messages"`
	Tools    []Tool             `json:"tools"`
	Context  []chat.ContextItem `json:"context,omitempty"`
}

// Sink receives events of a single run in arrival order.
type Sink func(Event)

// EventSource is the transport that turns a RunInput into a stream of events.
//
// Run must not block on delivery for longer than the caller's ctx allows and
// must stop emitting once ctx is done. Reset abandons any in-flight run.
type EventSource interface {
	Run(ctx context.Context, input RunInput, sink Sink)
	Reset()
}

// SourceFunc adapts a function to EventSource. Reset is a no-op.
type SourceFunc func(ctx context.Context, input RunInput, sink Sink)

func (f SourceFunc) Run(ctx context.Context, input RunInput, sink Sink) { f(ctx, input, sink) }

func (f SourceFunc) Reset() {}
