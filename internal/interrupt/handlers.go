package interrupt

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"agentrun/internal/chat"
	"agentrun/internal/tools"
	"agentrun/pkg/logger"
)

// ToolExecutionHandler runs pending frontend tool calls and resumes the run
// once all of them have a result.
type ToolExecutionHandler struct {
	manager  *tools.Manager
	executor *tools.Executor
	logger   *zerolog.Logger
}

// NewToolExecutionHandler creates the handler. The executor's bus must be the
// one the controller subscribes to.
func NewToolExecutionHandler(manager *tools.Manager, executor *tools.Executor, l *zerolog.Logger) *ToolExecutionHandler {
	if l == nil {
		l = logger.For("interrupt.tools")
	}
	return &ToolExecutionHandler{manager: manager, executor: executor, logger: l}
}

func (h *ToolExecutionHandler) Handle(ctx context.Context, info chat.InterruptInfo, ictx *Context) bool {
	kind := info.Kind()
	if kind != KindToolExecution && kind != KindToolExecutionPending {
		return false
	}

	msg, ok := ictx.LastAssistantMessage()
	if !ok {
		return false
	}
	var pending []chat.ToolCallInfo
	for _, tc := range msg.ToolCalls {
		if !tc.Status.IsTerminal() && h.manager.IsFrontendTool(tc.Name) {
			pending = append(pending, tc)
		}
	}
	if len(pending) == 0 {
		return false
	}

	remaining := make(map[string]struct{}, len(pending))
	for _, tc := range pending {
		remaining[tc.ID] = struct{}{}
	}

	var (
		mu    sync.Mutex
		once  sync.Once
		unsub func()
	)
	unsub = h.executor.Bus().SubscribeResults(func(r tools.Result) {
		mu.Lock()
		if _, ok := remaining[r.ToolCallID]; !ok {
			mu.Unlock()
			return
		}
		delete(remaining, r.ToolCallID)
		done := len(remaining) == 0
		mu.Unlock()

		if done {
			once.Do(func() {
				unsub()
				h.logger.Debug().Int("calls", len(pending)).Msg("frontend tools finished, resuming")
				ictx.Resume(nil)
			})
		}
	})

	ictx.SetAgentState(chat.NewAgentState(chat.StatusExecuting))
	h.logger.Debug().Int("calls", len(pending)).Str("interrupt", kind).Msg("executing frontend tools")

	go func() {
		h.executor.Execute(ctx, pending)
		if ctx.Err() != nil {
			once.Do(unsub)
		}
	}()
	return true
}

// Prompter asks a human to answer an interrupt. It blocks until an answer is
// available, the request times out, or ctx is done.
type Prompter interface {
	Prompt(ctx context.Context, info chat.InterruptInfo) (any, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(ctx context.Context, info chat.InterruptInfo) (any, error)

func (f PromptFunc) Prompt(ctx context.Context, info chat.InterruptInfo) (any, error) {
	return f(ctx, info)
}

// HitlHandler surfaces human approval interrupts through a Prompter and
// resumes with the answer.
type HitlHandler struct {
	prompter Prompter
	logger   *zerolog.Logger
}

// NewHitlHandler creates the handler.
func NewHitlHandler(p Prompter, l *zerolog.Logger) *HitlHandler {
	if l == nil {
		l = logger.For("interrupt.hitl")
	}
	return &HitlHandler{prompter: p, logger: l}
}

func (h *HitlHandler) Handle(ctx context.Context, info chat.InterruptInfo, ictx *Context) bool {
	kind := info.Kind()
	if kind != KindHumanApproval && kind != KindHitlApproval {
		return false
	}
	if h.prompter == nil {
		return false
	}

	ictx.SetAgentState(chat.NewAgentState(chat.StatusAwaitingApproval))

	go func() {
		answer, err := h.prompter.Prompt(ctx, info)
		if err != nil {
			h.logger.Info().Err(err).Str("interrupt_id", info.ID).Msg("interrupt left unanswered")
			if ctx.Err() == nil {
				ictx.SetAgentState(nil)
			}
			return
		}
		ictx.Resume(answer)
	}()
	return true
}

// DefaultHandler claims every interrupt and ends the run.
type DefaultHandler struct {
	logger *zerolog.Logger
}

// NewDefaultHandler creates the catch-all handler.
func NewDefaultHandler(l *zerolog.Logger) *DefaultHandler {
	if l == nil {
		l = logger.For("interrupt")
	}
	return &DefaultHandler{logger: l}
}

func (h *DefaultHandler) Handle(_ context.Context, info chat.InterruptInfo, ictx *Context) bool {
	h.logger.Warn().Str("kind", info.Kind()).Str("interrupt_id", info.ID).Msg("unhandled interrupt")
	ictx.SetAgentState(nil)
	return true
}
