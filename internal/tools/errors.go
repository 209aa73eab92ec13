package tools

import (
	"errors"
	"fmt"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolAlreadyExists = errors.New("tool already exists")
	ErrInvalidArgs       = errors.New("invalid tool arguments")
	ErrToolTimeout       = errors.New("tool execution timeout")
	// ErrApprovalDenied is returned by an Approver when the user rejects a call.
	ErrApprovalDenied = errors.New("tool call denied")
)

// ToolNotFoundError is returned when a call names a tool nobody registered.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string { return "tool not found: " + e.Name }

func (e *ToolNotFoundError) Unwrap() error { return ErrToolNotFound }

// ToolAlreadyExistsError is returned when two manifest entries share a name.
type ToolAlreadyExistsError struct {
	Name string
}

func (e *ToolAlreadyExistsError) Error() string { return "tool already exists: " + e.Name }

func (e *ToolAlreadyExistsError) Unwrap() error { return ErrToolAlreadyExists }

// InvalidArgsError rejects a manifest entry. It matches ErrInvalidArgs and
// unwraps to Cause.
type InvalidArgsError struct {
	Tool    string
	Message string
	Cause   error
}

func (e *InvalidArgsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid tool %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid tool %s: %s", e.Tool, e.Message)
}

func (e *InvalidArgsError) Is(target error) bool { return target == ErrInvalidArgs }

func (e *InvalidArgsError) Unwrap() error { return e.Cause }

// ToolTimeoutError reports a script tool that ran past its deadline.
type ToolTimeoutError struct {
	Tool    string
	Timeout string
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %s", e.Tool, e.Timeout)
}

func (e *ToolTimeoutError) Unwrap() error { return ErrToolTimeout }

func NewToolNotFoundError(name string) error {
	return &ToolNotFoundError{Name: name}
}

func NewToolAlreadyExistsError(name string) error {
	return &ToolAlreadyExistsError{Name: name}
}

func NewInvalidArgsError(tool, message string, cause error) error {
	return &InvalidArgsError{Tool: tool, Message: message, Cause: cause}
}

func NewToolTimeoutError(tool, timeout string) error {
	return &ToolTimeoutError{Tool: tool, Timeout: timeout}
}
