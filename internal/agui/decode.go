package agui

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentrun/internal/chat"
)

var (
	// ErrUnknownEvent is returned by DecodeEvent for unsupported wire types.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedEvent is returned when a required field is missing.
	ErrMalformedEvent = errors.New("malformed event")
)

// DecodeJSON decodes one AG-UI event from its JSON encoding.
func DecodeJSON(data []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return DecodeEvent(raw)
}

// DecodeEvent maps a raw AG-UI wire object onto an Event.
func DecodeEvent(raw map[string]any) (Event, error) {
	typ := str(raw, "type")
	switch EventType(typ) {
	case EventRunStarted:
		return RunStarted(str(raw, "threadId"), str(raw, "runId")), nil
	case EventTextStart:
		return TextStart(str(raw, "messageId")), nil
	case EventTextDelta:
		return TextDelta(str(raw, "delta")), nil
	case EventTextEnd:
		return TextEnd(), nil
	case EventToolCallStart:
		id := str(raw, "toolCallId")
		if id == "" {
			return Event{}, fmt.Errorf("%w: %s without toolCallId", ErrMalformedEvent, typ)
		}
		ev := ToolCallStart(id, str(raw, "toolCallName"))
		ev.MessageID = str(raw, "parentMessageId")
		return ev, nil
	case EventToolCallArgs:
		return ToolCallArgs(str(raw, "toolCallId"), str(raw, "delta")), nil
	case EventToolCallArgsEnd:
		return ToolCallArgsEnd(str(raw, "toolCallId"), str(raw, "args")), nil
	case EventToolCallEnd:
		return ToolCallEnd(str(raw, "toolCallId")), nil
	case EventToolCallResult:
		return ToolCallResult(str(raw, "toolCallId"), chat.Stringify(raw["content"])), nil
	case EventRunFinished:
		return decodeRunFinished(raw), nil
	case EventError:
		msg := str(raw, "message")
		if msg == "" {
			msg = str(raw, "error")
		}
		return TransportError(msg), nil
	case EventStateSnapshot:
		state, _ := raw["snapshot"].(map[string]any)
		if state == nil {
			state, _ = raw["state"].(map[string]any)
		}
		return StateSnapshot(state), nil
	case EventStateDelta:
		delta, ok := raw["delta"].(map[string]any)
		if !ok {
			return Event{}, fmt.Errorf("%w: %s delta is not an object", ErrMalformedEvent, typ)
		}
		return StateDelta(delta), nil
	case EventMessagesSnapshot:
		items, _ := raw["messages"].([]any)
		return MessagesSnapshot(decodeMessages(items)), nil
	case EventCustom:
		return Custom(str(raw, "name"), raw["value"]), nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}
}

func decodeRunFinished(raw map[string]any) Event {
	outcome := &chat.RunOutcome{Kind: chat.ParseOutcome(str(raw, "outcome"))}
	switch outcome.Kind {
	case chat.OutcomeError:
		outcome.Error = str(raw, "error")
	case chat.OutcomeInterrupt:
		im, _ := raw["interrupt"].(map[string]any)
		if im == nil {
			im = map[string]any{}
		}
		info := chat.InterruptFromMap(im)
		outcome.Interrupt = &info
	}
	return Event{Type: EventRunFinished, Outcome: outcome}
}

func decodeMessages(items []any) []chat.ChatMessage {
	msgs := make([]chat.ChatMessage, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		msg := chat.ChatMessage{
			ID:         str(m, "id"),
			Role:       chat.Role(str(m, "role")),
			Content:    str(m, "content"),
			ToolCallID: str(m, "toolCallId"),
			Timestamp:  time.Now(),
		}
		if calls, ok := m["toolCalls"].([]any); ok {
			for _, c := range calls {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				fn, _ := cm["function"].(map[string]any)
				args := str(fn, "arguments")
				msg.ToolCalls = append(msg.ToolCalls, chat.ToolCallInfo{
					ID:         str(cm, "id"),
					Name:       str(fn, "name"),
					Arguments:  args,
					ParsedArgs: chat.ParseJSON(args),
					Status:     chat.ToolCallCompleted,
				})
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// EncodeMessages renders history in the AG-UI wire shape.
func EncodeMessages(msgs []chat.ChatMessage) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		w := map[string]any{
			"id":      m.ID,
			"role":    string(m.Role),
			"content": m.Content,
		}
		switch m.Role {
		case chat.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				calls := make([]map[string]any, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					args := tc.Arguments
					if args == "" {
						args = "{}"
					}
					calls = append(calls, map[string]any{
						"id":   tc.ID,
						"type": "function",
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": args,
						},
					})
				}
				w["toolCalls"] = calls
			}
		case chat.RoleTool:
			id := m.ToolCallID
			if id == "" {
				id = m.ID
			}
			w["toolCallId"] = id
		}
		out = append(out, w)
	}
	return out
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
