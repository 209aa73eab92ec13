// Package agui defines the AG-UI protocol events consumed by the run controller
// and the event source contract that produces them.
package agui

import (
	"agentrun/internal/chat"
)

// EventType is the AG-UI wire name of an event.
type EventType string

const (
	EventRunStarted       EventType = "RUN_STARTED"
	EventTextStart        EventType = "TEXT_MESSAGE_START"
	EventTextDelta        EventType = "TEXT_MESSAGE_CONTENT"
	EventTextEnd          EventType = "TEXT_MESSAGE_END"
	EventToolCallStart    EventType = "TOOL_CALL_START"
	EventToolCallArgs     EventType = "TOOL_CALL_ARGS"
	EventToolCallArgsEnd  EventType = "TOOL_CALL_ARGS_END"
	EventToolCallEnd      EventType = "TOOL_CALL_END"
	EventToolCallResult   EventType = "TOOL_CALL_RESULT"
	EventRunFinished      EventType = "RUN_FINISHED"
	EventStateSnapshot    EventType = "STATE_SNAPSHOT"
	EventStateDelta       EventType = "STATE_DELTA"
	EventMessagesSnapshot EventType = "MESSAGES_SNAPSHOT"
	EventCustom           EventType = "CUSTOM"
	EventError            EventType = "RUN_ERROR"
)

// Custom event names understood by the controller.
const (
	CustomAgentSelected = "agent_selected"
)

// Event is one decoded protocol event. Only the fields relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`

	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`

	MessageID string `json:"messageId,omitempty"`
	Delta     string `json:"delta,omitempty"`

	ToolCallID   string `json:"toolCallId,omitempty"`
	ToolCallName string `json:"toolCallName,omitempty"`
	Args         string `json:"args,omitempty"`
	Result       string `json:"content,omitempty"`

	Outcome *chat.RunOutcome `json:"outcome,omitempty"`

	State    map[string]any     `json:"state,omitempty"`
	Messages []chat.ChatMessage `json:"messages,omitempty"`

	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`

	Err string `json:"error,omitempty"`
}

func RunStarted(threadID, runID string) Event {
	return Event{Type: EventRunStarted, ThreadID: threadID, RunID: runID}
}

func TextStart(messageID string) Event {
	return Event{Type: EventTextStart, MessageID: messageID}
}

func TextDelta(delta string) Event {
	return Event{Type: EventTextDelta, Delta: delta}
}

func TextEnd() Event {
	return Event{Type: EventTextEnd}
}

func ToolCallStart(id, name string) Event {
	return Event{Type: EventToolCallStart, ToolCallID: id, ToolCallName: name}
}

func ToolCallArgs(id, delta string) Event {
	return Event{Type: EventToolCallArgs, ToolCallID: id, Delta: delta}
}

func ToolCallArgsEnd(id, argsJSON string) Event {
	return Event{Type: EventToolCallArgsEnd, ToolCallID: id, Args: argsJSON}
}

func ToolCallEnd(id string) Event {
	return Event{Type: EventToolCallEnd, ToolCallID: id}
}

func ToolCallResult(id, result string) Event {
	return Event{Type: EventToolCallResult, ToolCallID: id, Result: result}
}

// RunSucceeded is RunFinished with a success outcome.
func RunSucceeded() Event {
	return Event{Type: EventRunFinished, Outcome: &chat.RunOutcome{Kind: chat.OutcomeSuccess}}
}

// RunFailed is RunFinished with an error outcome.
func RunFailed(msg string) Event {
	return Event{Type: EventRunFinished, Outcome: &chat.RunOutcome{Kind: chat.OutcomeError, Error: msg}}
}

// RunInterrupted is RunFinished with an interrupt outcome.
func RunInterrupted(info chat.InterruptInfo) Event {
	return Event{Type: EventRunFinished, Outcome: &chat.RunOutcome{Kind: chat.OutcomeInterrupt, Interrupt: &info}}
}

func StateSnapshot(state map[string]any) Event {
	return Event{Type: EventStateSnapshot, State: state}
}

func StateDelta(partial map[string]any) Event {
	return Event{Type: EventStateDelta, State: partial}
}

func MessagesSnapshot(msgs []chat.ChatMessage) Event {
	return Event{Type: EventMessagesSnapshot, Messages: msgs}
}

func Custom(name string, value any) Event {
	return Event{Type: EventCustom, Name: name, Value: value}
}

// TransportError reports a transport-level failure.
func TransportError(msg string) Event {
	return Event{Type: EventError, Err: msg}
}
