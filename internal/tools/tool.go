// Package tools holds the frontend tool manifest, the tool bus and the executor
// that runs client-side tool calls for the run controller.
package tools

import (
	"context"
)

// Tool is an invokable capability exposed to the agent.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns the JSON Schema of the tool's arguments.
	Parameters() map[string]any

	// Execute runs the tool. ctx is cancelled when the run is aborted.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolResult is the output of a single tool execution.
type ToolResult struct {
	Content  string         `json:"content"`
	IsError  bool           `json:"is_error"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSuccessResult creates a successful tool result.
func NewSuccessResult(content string) ToolResult {
	return ToolResult{Content: content}
}

// NewErrorResult creates an error tool result.
func NewErrorResult(errMsg string) ToolResult {
	return ToolResult{Content: errMsg, IsError: true}
}

func (r ToolResult) String() string {
	if r.IsError {
		return "[error] " + r.Content
	}
	return r.Content
}

// ExecuteFunc is the body of a FuncTool.
type ExecuteFunc func(ctx context.Context, args map[string]any) (ToolResult, error)

// FuncTool adapts a function into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
	Fn              ExecuteFunc
}

// NewFuncTool creates a FuncTool.
func NewFuncTool(name, description string, params map[string]any, fn ExecuteFunc) *FuncTool {
	return &FuncTool{ToolName: name, ToolDescription: description, ToolParameters: params, Fn: fn}
}

func (t *FuncTool) Name() string { return t.ToolName }

func (t *FuncTool) Description() string { return t.ToolDescription }

// Parameters returns the schema, defaulting to an empty object schema.
func (t *FuncTool) Parameters() map[string]any {
	if t.ToolParameters == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return t.ToolParameters
}

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	if t.Fn == nil {
		return NewErrorResult("tool has no implementation"), nil
	}
	return t.Fn(ctx, args)
}
