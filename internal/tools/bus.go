package tools

import (
	"sync"

	"agentrun/internal/chat"
)

// Result is the terminal outcome of a tool call.
type Result struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError"`
}

// Status returns the tool call status this result moves the call to.
func (r Result) Status() chat.ToolCallStatus {
	if r.IsError {
		return chat.ToolCallError
	}
	return chat.ToolCallCompleted
}

// StatusUpdate is an intermediate status change of a tool call.
type StatusUpdate struct {
	ToolCallID string              `json:"toolCallId"`
	Status     chat.ToolCallStatus `json:"status"`
}

// Bus carries tool results and status updates from executors to subscribers.
// Delivery is synchronous, on the publisher's goroutine, in subscription order.
// Nothing is retained: late subscribers miss earlier publications.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	results  []resultSub
	statuses []statusSub
}

type resultSub struct {
	id int
	fn func(Result)
}

type statusSub struct {
	id int
	fn func(StatusUpdate)
}

// NewBus creates a bus.
func NewBus() *Bus {
	return &Bus{}
}

// PublishResult delivers r to every result subscriber.
func (b *Bus) PublishResult(r Result) {
	b.mu.RLock()
	subs := make([]resultSub, len(b.results))
	copy(subs, b.results)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(r)
	}
}

// PublishStatus delivers u to every status subscriber.
func (b *Bus) PublishStatus(u StatusUpdate) {
	b.mu.RLock()
	subs := make([]statusSub, len(b.statuses))
	copy(subs, b.statuses)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(u)
	}
}

// SubscribeResults registers fn and returns its unsubscribe function.
func (b *Bus) SubscribeResults(fn func(Result)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.results = append(b.results, resultSub{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.results {
				if s.id == id {
					b.results = append(b.results[:i:i], b.results[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscribeStatus registers fn and returns its unsubscribe function.
func (b *Bus) SubscribeStatus(fn func(StatusUpdate)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.statuses = append(b.statuses, statusSub{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.statuses {
				if s.id == id {
					b.statuses = append(b.statuses[:i:i], b.statuses[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of result and status subscribers.
func (b *Bus) Subscribers() (results, statuses int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.results), len(b.statuses)
}
