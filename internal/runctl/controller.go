// Package runctl drives an agent conversation over an AG-UI event stream.
//
// A RunController owns the message history, the streaming text buffer and the
// agent state. It applies transport events strictly in arrival order, tracks
// tool calls by id, and parks a run on interrupts until a handler resumes it.
package runctl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agentrun/internal/agui"
	"agentrun/internal/chat"
	"agentrun/internal/interrupt"
	"agentrun/internal/observable"
	"agentrun/internal/tools"
	"agentrun/pkg/logger"
)

// TransportFactory binds an agent to the event source that talks to it.
type TransportFactory func(agent chat.AgentRef) (agui.EventSource, error)

// Options configures a RunController.
type Options struct {
	Transports TransportFactory

	// Tools lists frontend tools. Nil means every tool runs server-side.
	Tools *tools.Manager
	// Executor defaults to one built over Tools and Bus.
	Executor *tools.Executor
	// Bus defaults to the executor's bus, or a fresh one.
	Bus *tools.Bus

	// InterruptHandlers run after the built-in tool execution handler and
	// before the catch-all default handler.
	InterruptHandlers []interrupt.Handler

	// InterruptTimeout abandons a parked run after this long. Zero waits forever.
	InterruptTimeout    time.Duration
	AllowConcurrentSend bool

	Logger *zerolog.Logger
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Agent            *chat.AgentRef      `json:"agent,omitempty"`
	ResolvedAgent    *chat.AgentRef      `json:"resolvedAgent,omitempty"`
	ThreadID         string              `json:"threadId,omitempty"`
	Messages         []chat.ChatMessage  `json:"messages"`
	StreamingContent string              `json:"streamingContent"`
	AgentState       chat.AgentState     `json:"agentState"`
	Running          bool                `json:"running"`
	PendingToolCalls []chat.ToolCallInfo `json:"pendingToolCalls,omitempty"`
}

// RunController is the conversation state machine.
//
// Observers registered on the observable accessors are notified synchronously
// while the controller lock is held; they must not call back into the
// controller on the same goroutine.
type RunController struct {
	mu     sync.Mutex
	logger *zerolog.Logger

	transports TransportFactory
	manager    *tools.Manager
	executor   *tools.Executor
	bus        *tools.Bus
	registry   *interrupt.Registry

	interruptTimeout time.Duration
	allowConcurrent  bool

	messages      *observable.Value[[]chat.ChatMessage]
	streaming     *observable.Value[string]
	agentState    *observable.Value[chat.AgentState]
	running       *observable.Value[bool]
	resolvedAgent *observable.Value[*chat.AgentRef]

	agent    *chat.AgentRef
	source   agui.EventSource
	threadID string
	runCtx   context.Context
	cancel   context.CancelFunc
	ctxItems []chat.ContextItem

	// generation is bumped whenever the current run is replaced or abandoned.
	generation uint64
	openID     string
	pending    []chat.ToolCallInfo
	argsDone   map[string]bool
	// liveCalls holds tool call ids that may still receive a bus result.
	liveCalls map[string]struct{}

	parked bool
	timer  *time.Timer

	closed    bool
	closeOnce sync.Once
	unsubs    []func()
}

// New creates a controller and subscribes it to the tool bus.
func New(opts Options) *RunController {
	l := opts.Logger
	if l == nil {
		l = logger.For("runctl")
	}

	bus := opts.Bus
	if bus == nil && opts.Executor != nil {
		bus = opts.Executor.Bus()
	}
	if bus == nil {
		bus = tools.NewBus()
	}
	executor := opts.Executor
	if executor == nil && opts.Tools != nil {
		executor = tools.NewExecutor(opts.Tools, bus, tools.WithExecutorLogger(l))
	}

	c := &RunController{
		logger:           l,
		transports:       opts.Transports,
		manager:          opts.Tools,
		executor:         executor,
		bus:              bus,
		registry:         interrupt.NewRegistry(),
		interruptTimeout: opts.InterruptTimeout,
		allowConcurrent:  opts.AllowConcurrentSend,
		messages:         observable.New([]chat.ChatMessage{}),
		streaming:        observable.New(""),
		agentState:       observable.New[chat.AgentState](nil),
		running:          observable.New(false),
		resolvedAgent:    observable.New[*chat.AgentRef](nil),
		runCtx:           context.Background(),
		argsDone:         make(map[string]bool),
		liveCalls:        make(map[string]struct{}),
	}

	// The controller must see every result before any interrupt handler does.
	c.unsubs = append(c.unsubs,
		bus.SubscribeResults(c.onToolResult),
		bus.SubscribeStatus(c.onToolStatus),
	)

	if opts.Tools != nil && executor != nil {
		c.registry.Register(interrupt.NewToolExecutionHandler(opts.Tools, executor, l))
	}
	c.registry.RegisterAll(opts.InterruptHandlers...)
	c.registry.Register(interrupt.NewDefaultHandler(l))
	return c
}

// Messages is the conversation history. Every change publishes a new slice.
func (c *RunController) Messages() *observable.Value[[]chat.ChatMessage] { return c.messages }

// StreamingContent is the text of the assistant message currently streaming.
func (c *RunController) StreamingContent() *observable.Value[string] { return c.streaming }

// AgentState is the application state of the agent. It is cleared when a run
// ends, though state events the backend sends after that still apply.
func (c *RunController) AgentState() *observable.Value[chat.AgentState] { return c.agentState }

// Running is true from the start of a run until it finishes, fails, is
// aborted or leaves an interrupt without resuming.
func (c *RunController) Running() *observable.Value[bool] { return c.running }

// ResolvedAgent is the agent the backend reported it routed the run to.
func (c *RunController) ResolvedAgent() *observable.Value[*chat.AgentRef] { return c.resolvedAgent }

// Bus returns the tool bus the controller listens on.
func (c *RunController) Bus() *tools.Bus { return c.bus }

// IsRunning reports whether a run is active or parked.
func (c *RunController) IsRunning() bool {
	return c.running.Get()
}

// Agent returns the bound agent.
func (c *RunController) Agent() (chat.AgentRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent == nil {
		return chat.AgentRef{}, false
	}
	return *c.agent, true
}

// Snapshot returns a copy of the full controller state.
func (c *RunController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ThreadID:         c.threadID,
		Messages:         chat.CloneMessages(c.messages.Get()),
		StreamingContent: c.streaming.Get(),
		AgentState:       c.agentState.Get().Clone(),
	}
	s.Running = c.running.Get()
	if c.agent != nil {
		a := *c.agent
		s.Agent = &a
	}
	if r := c.resolvedAgent.Get(); r != nil {
		a := *r
		s.ResolvedAgent = &a
	}
	if len(c.pending) > 0 {
		s.PendingToolCalls = append([]chat.ToolCallInfo(nil), c.pending...)
	}
	return s
}

// SetAgent binds the controller to agent. Binding the same id again is a
// no-op; any other id rebuilds the transport and resets the conversation.
func (c *RunController) SetAgent(agent chat.AgentRef) error {
	if agent.ID == "" {
		return ErrNoAgent
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.agent != nil && c.agent.ID == agent.ID {
		c.mu.Unlock()
		return nil
	}
	factory := c.transports
	c.mu.Unlock()

	if factory == nil {
		return fmt.Errorf("bind agent %s: %w", agent.ID, ErrNoAgent)
	}
	source, err := factory(agent)
	if err != nil {
		return fmt.Errorf("bind agent %s: %w", agent.ID, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		source.Reset()
		return ErrClosed
	}
	old := c.source
	c.agent = &agent
	c.source = source
	c.threadID = uuid.NewString()
	c.resetLocked(true)
	c.mu.Unlock()

	if old != nil {
		old.Reset()
	}
	c.logger.Info().Str("agent_id", agent.ID).Str("agent", agent.Name).Msg("agent bound")
	return nil
}

// SendUserMessage appends a user message and starts a run with the full
// history. ctxItems replace the context sent with this and later runs.
func (c *RunController) SendUserMessage(text string, ctxItems ...chat.ContextItem) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if err := c.canStartLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.ctxItems = append([]chat.ContextItem(nil), ctxItems...)
	c.appendMessageLocked(chat.NewMessage(chat.RoleUser, text))
	launch := c.beginRunLocked()
	c.mu.Unlock()

	launch()
	return nil
}

// RegenerateLastMessage drops the last assistant message and everything after
// it, then re-sends the remaining history. Without an assistant message it
// does nothing.
func (c *RunController) RegenerateLastMessage() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	msgs := c.messages.Get()
	idx := chat.LastAssistantIndex(msgs)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}
	if err := c.canStartLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.messages.Set(append([]chat.ChatMessage{}, msgs[:idx]...))
	c.liveCalls = make(map[string]struct{})
	launch := c.beginRunLocked()
	c.mu.Unlock()

	launch()
	return nil
}

// ResetConversation clears the history and all run state. The transport is
// not contacted.
func (c *RunController) ResetConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetLocked(true)
}

// AbortRun cancels the active run, if any, and returns to idle. The history
// is kept. Events from the aborted run are ignored from now on.
func (c *RunController) AbortRun() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetLocked(false)
	c.resolvedAgent.Set(nil)
	source := c.source
	c.mu.Unlock()

	if source != nil {
		source.Reset()
	}
	c.logger.Debug().Msg("run aborted")
}

// Close cancels any run and releases the bus subscriptions.
func (c *RunController) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.generation++
		c.cancelLocked()
		c.stopTimerLocked()
		source := c.source
		c.mu.Unlock()

		for _, unsub := range c.unsubs {
			unsub()
		}
		if source != nil {
			source.Reset()
		}
	})
	return nil
}

func (c *RunController) canStartLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.source == nil {
		return ErrNoAgent
	}
	if !c.allowConcurrent && c.running.Get() {
		return ErrRunInProgress
	}
	return nil
}

// resetLocked abandons the current run. With history it also clears the
// messages and the resolved agent.
func (c *RunController) resetLocked(history bool) {
	c.generation++
	c.cancelLocked()
	c.stopTimerLocked()
	c.parked = false
	c.clearTransientLocked()
	c.liveCalls = make(map[string]struct{})
	if history {
		c.messages.Set([]chat.ChatMessage{})
		c.resolvedAgent.Set(nil)
	}
	c.agentState.Set(nil)
	c.setRunningLocked(false)
}

func (c *RunController) clearTransientLocked() {
	c.openID = ""
	c.pending = nil
	c.argsDone = make(map[string]bool)
	if c.streaming.Get() != "" {
		c.streaming.Set("")
	}
}

func (c *RunController) cancelLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// beginRunLocked starts a new generation, sets the agent thinking and returns
// the call that hands the history to the transport. The returned func must
// run without the lock.
func (c *RunController) beginRunLocked() func() {
	c.generation++
	gen := c.generation
	c.cancelLocked()
	c.stopTimerLocked()
	c.parked = false
	c.clearTransientLocked()

	ctx, cancel := context.WithCancel(context.Background())
	c.runCtx = ctx
	c.cancel = cancel

	c.agentState.Set(chat.NewAgentState(chat.StatusThinking))
	c.setRunningLocked(true)

	input := agui.RunInput{
		ThreadID: c.threadID,
		RunID:    uuid.NewString(),
		Messages: chat.CloneMessages(c.messages.Get()),
		Tools:    c.manager.FrontendTools(),
		Context:  append([]chat.ContextItem(nil), c.ctxItems...),
	}
	source := c.source
	sink := c.sinkFor(gen)

	c.logger.Debug().
		Str("run_id", input.RunID).
		Int("messages", len(input.Messages)).
		Int("tools", len(input.Tools)).
		Msg("starting run")

	return func() {
		source.Run(ctx, input, sink)
	}
}

func (c *RunController) sinkFor(gen uint64) agui.Sink {
	return func(ev agui.Event) {
		c.dispatch(gen, ev)
	}
}

func (c *RunController) appendMessageLocked(m chat.ChatMessage) {
	msgs := c.messages.Get()
	next := make([]chat.ChatMessage, len(msgs), len(msgs)+1)
	copy(next, msgs)
	c.messages.Set(append(next, m))
}

// updateMessageLocked replaces the message with the given id by a modified
// copy. It reports whether the message exists.
func (c *RunController) updateMessageLocked(id string, fn func(*chat.ChatMessage)) bool {
	if id == "" {
		return false
	}
	msgs := c.messages.Get()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID != id {
			continue
		}
		next := make([]chat.ChatMessage, len(msgs))
		copy(next, msgs)
		m := next[i].Clone()
		fn(&m)
		next[i] = m
		c.messages.Set(next)
		return true
	}
	return false
}

func (c *RunController) hasMessageLocked(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range c.messages.Get() {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (c *RunController) setRunningLocked(running bool) {
	if c.running.Get() != running {
		c.running.Set(running)
	}
}

// trackOpenCallsLocked makes every unfinished tool call in the history
// eligible for a bus result.
func (c *RunController) trackOpenCallsLocked() {
	live := make(map[string]struct{})
	for _, m := range c.messages.Get() {
		for _, tc := range m.ToolCalls {
			if tc.ID != "" && !tc.Status.IsTerminal() {
				live[tc.ID] = struct{}{}
			}
		}
	}
	c.liveCalls = live
}

// setStatusLocked merges status into the agent state, keeping other keys.
func (c *RunController) setStatusLocked(status string) {
	c.agentState.Set(c.agentState.Get().Merge(map[string]any{"status": status}))
}
