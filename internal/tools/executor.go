package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"agentrun/internal/chat"
	"agentrun/pkg/logger"
)

// ApprovalArgKey is the argument key under which an approval value reaches the tool.
const ApprovalArgKey = "__approval"

// CancelledMessage is the result content of a call the user declined.
const CancelledMessage = "User cancelled the operation"

// ApprovalRequest asks a human whether a tool call may run.
type ApprovalRequest struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Arguments  map[string]any  `json:"arguments"`
	Config     *ApprovalConfig `json:"config,omitempty"`
}

// ApprovalDecision is the human's answer. Value is forwarded to the tool.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Value    any    `json:"value,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Approver obtains approval decisions. Implementations block until the
// decision is made or ctx is done.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)

func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	return f(ctx, req)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithApprover sets the approver consulted for tools that require approval.
func WithApprover(a Approver) ExecutorOption {
	return func(e *Executor) { e.approver = a }
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l *zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// Executor runs frontend tool calls and reports their progress on a Bus.
type Executor struct {
	manager  *Manager
	bus      *Bus
	approver Approver
	logger   *zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(manager *Manager, bus *Bus, opts ...ExecutorOption) *Executor {
	e := &Executor{manager: manager, bus: bus}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.For("tools.executor")
	}
	return e
}

// Bus returns the bus results are published to.
func (e *Executor) Bus() *Bus {
	return e.bus
}

// Execute runs calls one after another. Every call ends with exactly one
// Result on the bus.
func (e *Executor) Execute(ctx context.Context, calls []chat.ToolCallInfo) {
	for _, call := range calls {
		e.ExecuteOne(ctx, call)
	}
}

// ExecuteOne runs a single call and publishes its result.
func (e *Executor) ExecuteOne(ctx context.Context, call chat.ToolCallInfo) Result {
	res := e.run(ctx, call)
	e.bus.PublishResult(res)
	return res
}

func (e *Executor) run(ctx context.Context, call chat.ToolCallInfo) (res Result) {
	res = Result{ToolCallID: call.ID, ToolName: call.Name}
	log := e.logger.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	manifest, ok := e.manager.Manifest(call.Name)
	if !ok {
		log.Warn().Msg("unknown frontend tool")
		res.IsError = true
		res.Content = errorContent(NewToolNotFoundError(call.Name))
		return res
	}
	args := callArgs(call)

	if manifest.RequiresApproval() && e.approver != nil {
		e.bus.PublishStatus(StatusUpdate{ToolCallID: call.ID, Status: chat.ToolCallAwaitingApproval})

		decision, err := e.approver.Approve(ctx, ApprovalRequest{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Arguments:  args,
			Config:     manifest.Approval,
		})
		if err != nil || !decision.Approved {
			if err != nil && !errors.Is(err, ErrApprovalDenied) {
				log.Info().Err(err).Msg("approval not obtained")
			}
			res.IsError = true
			res.Content = CancelledMessage
			return res
		}
		if decision.Value != nil {
			args[ApprovalArgKey] = decision.Value
		}
	}

	e.bus.PublishStatus(StatusUpdate{ToolCallID: call.ID, Status: chat.ToolCallExecuting})

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("tool panicked")
			res.IsError = true
			res.Content = fmt.Sprintf("Tool '%s' panicked: %v", call.Name, r)
		}
	}()

	out, err := e.manager.Execute(ctx, call.Name, args)
	if err != nil {
		log.Warn().Err(err).Msg("tool execution failed")
		res.IsError = true
		res.Content = errorContent(err)
		return res
	}

	res.Content = out.Content
	res.IsError = out.IsError
	log.Debug().Bool("is_error", res.IsError).Msg("tool executed")
	return res
}

func errorContent(err error) string {
	var nf *ToolNotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("Tool '%s' not found", nf.Name)
	}
	return err.Error()
}

// callArgs returns a fresh argument map for call. Unparsable arguments are
// passed through as {"raw": text}.
func callArgs(call chat.ToolCallInfo) map[string]any {
	if m, ok := call.ParsedArgs.(map[string]any); ok {
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		return out
	}

	text := strings.TrimSpace(call.Arguments)
	if text == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil || m == nil {
		return map[string]any{"raw": call.Arguments}
	}
	return m
}
