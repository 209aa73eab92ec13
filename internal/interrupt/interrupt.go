// Package interrupt resolves paused runs through an ordered chain of handlers.
package interrupt

import (
	"context"
	"sync"

	"agentrun/internal/chat"
)

// Well-known interrupt kinds.
const (
	KindToolExecution        = "tool_execution"
	KindToolExecutionPending = "tool_execution_pending"
	KindHumanApproval        = "human_approval"
	KindHitlApproval         = "hitl_approval"
)

// Context is handed to the handler that claims an interrupt.
type Context struct {
	// LastAssistantMessageID is the id of the assistant message open when the run paused.
	LastAssistantMessageID string
	// Messages is a snapshot of the history at the time of the interrupt.
	Messages []chat.ChatMessage

	resume   func(response any)
	setState func(chat.AgentState)
}

// NewContext builds a Context around the controller callbacks.
func NewContext(resume func(any), setState func(chat.AgentState), lastAssistantID string, msgs []chat.ChatMessage) *Context {
	return &Context{
		LastAssistantMessageID: lastAssistantID,
		Messages:               msgs,
		resume:                 resume,
		setState:               setState,
	}
}

// Resume continues the run. A non-nil response is appended as a user message first.
func (c *Context) Resume(response any) {
	if c.resume != nil {
		c.resume(response)
	}
}

// SetAgentState replaces the controller's agent state. nil means idle.
func (c *Context) SetAgentState(s chat.AgentState) {
	if c.setState != nil {
		c.setState(s)
	}
}

// LastAssistantMessage returns the message named by LastAssistantMessageID,
// falling back to the last assistant message in the history.
func (c *Context) LastAssistantMessage() (chat.ChatMessage, bool) {
	if c.LastAssistantMessageID != "" {
		for i := len(c.Messages) - 1; i >= 0; i-- {
			if c.Messages[i].ID == c.LastAssistantMessageID {
				return c.Messages[i], true
			}
		}
	}
	if idx := chat.LastAssistantIndex(c.Messages); idx >= 0 {
		return c.Messages[idx], true
	}
	return chat.ChatMessage{}, false
}

// Handler resolves interrupts it recognises. Handle must return quickly;
// long work belongs on a goroutine that later calls ictx.Resume.
type Handler interface {
	Handle(ctx context.Context, info chat.InterruptInfo, ictx *Context) bool
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, info chat.InterruptInfo, ictx *Context) bool

func (f HandlerFunc) Handle(ctx context.Context, info chat.InterruptInfo, ictx *Context) bool {
	return f(ctx, info, ictx)
}

// Registry is an ordered chain of handlers. The first handler to claim wins.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewRegistry creates a registry holding handlers in order.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{}
	r.RegisterAll(handlers...)
	return r
}

// Register appends h to the chain.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// RegisterAll appends handlers in order.
func (r *Registry) RegisterAll(handlers ...Handler) {
	for _, h := range handlers {
		r.Register(h)
	}
}

// Clear removes every handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = nil
}

// Len returns the number of handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Handle offers the interrupt to each handler in order and reports whether one claimed it.
func (r *Registry) Handle(ctx context.Context, info chat.InterruptInfo, ictx *Context) bool {
	r.mu.RLock()
	handlers := make([]Handler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	for _, h := range handlers {
		if h.Handle(ctx, info, ictx) {
			return true
		}
	}
	return false
}
