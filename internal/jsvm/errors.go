// Package jsvm runs script tools in an embedded goja JavaScript VM.
package jsvm

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates script execution exceeded its deadline.
	ErrTimeout = errors.New("jsvm: execution timeout")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("jsvm: runtime closed")
)

// ScriptSyntaxError indicates the script failed to compile.
type ScriptSyntaxError struct {
	Script  string
	Message string
}

func (e *ScriptSyntaxError) Error() string {
	return fmt.Sprintf("jsvm: syntax error in %s: %s", e.Script, e.Message)
}

// Is implements errors.Is for ScriptSyntaxError.
func (e *ScriptSyntaxError) Is(target error) bool {
	_, ok := target.(*ScriptSyntaxError)
	return ok
}

// ErrScriptSyntax is a sentinel for errors.Is matching.
var ErrScriptSyntax = &ScriptSyntaxError{}

// ExecutionError wraps a runtime failure inside a script.
type ExecutionError struct {
	Script string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("jsvm: execution error in %s: %v", e.Script, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
