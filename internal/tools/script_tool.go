package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentrun/internal/chat"
	"agentrun/internal/jsvm"
)

// RuntimeJS marks a manifest entry implemented by a JavaScript body.
const RuntimeJS = "js"

// ScriptTool is a tool whose body is a JavaScript function run in jsvm.
// The script sees the call arguments as `args`; its return value is the result.
type ScriptTool struct {
	name        string
	description string
	parameters  map[string]any
	script      string
	timeout     time.Duration
	vm          *jsvm.Runtime
}

// ScriptToolConfig holds configuration for creating a ScriptTool.
type ScriptToolConfig struct {
	Name        string
	Description string
	Parameters  map[string]any
	Script      string
	Timeout     time.Duration
	VM          *jsvm.Runtime
}

// NewScriptTool creates a script tool.
func NewScriptTool(cfg ScriptToolConfig) *ScriptTool {
	return &ScriptTool{
		name:        cfg.Name,
		description: cfg.Description,
		parameters:  cfg.Parameters,
		script:      cfg.Script,
		timeout:     cfg.Timeout,
		vm:          cfg.VM,
	}
}

func (t *ScriptTool) Name() string { return t.name }

func (t *ScriptTool) Description() string { return t.description }

func (t *ScriptTool) Parameters() map[string]any {
	if t.parameters == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return t.parameters
}

// Execute runs the script. Script failures become error results, not errors.
func (t *ScriptTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	if t.vm == nil {
		return NewErrorResult("JavaScript runtime not configured"), nil
	}
	if args == nil {
		args = map[string]any{}
	}

	res, err := t.vm.ExecuteWithTimeout(ctx, t.name, t.script, map[string]any{"args": args}, t.timeout)
	if err != nil {
		if errors.Is(err, jsvm.ErrTimeout) {
			return ToolResult{}, NewToolTimeoutError(t.name, t.timeout.String())
		}
		return NewErrorResult(fmt.Sprintf("script error: %v", err)), nil
	}

	out := NewSuccessResult(chat.Stringify(res.Value))
	if len(res.Logs) > 0 {
		out.Metadata = map[string]any{"logs": res.Logs}
	}
	return out, nil
}
