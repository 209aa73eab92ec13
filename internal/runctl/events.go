package runctl

import (
	"fmt"

	"github.com/google/uuid"

	"agentrun/internal/agui"
	"agentrun/internal/chat"
)

const defaultRunError = "An error occurred"

// dispatch applies one event of generation gen. Events of older generations
// are dropped. Follow-up work such as interrupt handling runs after the lock
// is released.
func (c *RunController) dispatch(gen uint64, ev agui.Event) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug().Str("event", string(ev.Type)).Uint64("generation", gen).Msg("dropping stale event")
		return
	}
	after := c.applySafe(gen, ev)
	c.mu.Unlock()

	if after != nil {
		after()
	}
}

func (c *RunController) applySafe(gen uint64, ev agui.Event) (after func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("event", string(ev.Type)).Str("panic", fmt.Sprint(r)).Msg("event handler panicked")
			after = nil
		}
	}()
	return c.apply(gen, ev)
}

func (c *RunController) apply(gen uint64, ev agui.Event) func() {
	switch ev.Type {
	case agui.EventRunStarted:
		c.logger.Debug().Str("thread_id", ev.ThreadID).Str("run_id", ev.RunID).Msg("run started")

	case agui.EventTextStart:
		c.onTextStart(ev.MessageID)

	case agui.EventTextDelta:
		c.onTextDelta(ev.Delta)

	case agui.EventTextEnd:

	case agui.EventToolCallStart:
		c.onToolCallStart(ev.ToolCallID, ev.ToolCallName, ev.MessageID)

	case agui.EventToolCallArgs:
		c.updateToolCallLocked(ev.ToolCallID, func(tc *chat.ToolCallInfo) {
			tc.Arguments += ev.Delta
		})

	case agui.EventToolCallArgsEnd:
		c.onToolCallArgsEnd(ev.ToolCallID, ev.Args)

	case agui.EventToolCallEnd:
		if !c.argsDone[ev.ToolCallID] {
			c.onToolCallArgsEnd(ev.ToolCallID, "")
		}

	case agui.EventToolCallResult:
		c.completeToolCallLocked(ev.ToolCallID, chat.ToolCallCompleted, ev.Result)

	case agui.EventRunFinished:
		return c.onRunFinished(gen, ev.Outcome)

	case agui.EventStateSnapshot:
		state := chat.AgentState(ev.State).Clone()
		if state == nil {
			state = chat.AgentState{}
		}
		c.agentState.Set(state)

	case agui.EventStateDelta:
		c.agentState.Set(c.agentState.Get().Merge(ev.State))

	case agui.EventMessagesSnapshot:
		msgs := chat.CloneMessages(ev.Messages)
		if msgs == nil {
			msgs = []chat.ChatMessage{}
		}
		c.messages.Set(msgs)
		c.trackOpenCallsLocked()
		if !c.hasMessageLocked(c.openID) {
			c.openID = ""
		}

	case agui.EventCustom:
		c.onCustom(ev.Name, ev.Value)

	case agui.EventError:
		c.logger.Warn().Str("error", ev.Err).Msg("transport error")
		c.clearTransientLocked()
		c.agentState.Set(nil)
		c.setRunningLocked(false)

	default:
		c.logger.Debug().Str("event", string(ev.Type)).Msg("ignoring unknown event")
	}
	return nil
}

// onTextStart opens a new assistant message unless the current one can be
// continued. Text after a tool call always starts a new message.
func (c *RunController) onTextStart(messageID string) {
	if !c.needsNewMessageLocked(messageID) {
		return
	}
	c.openAssistantLocked(messageID)
	if c.streaming.Get() != "" {
		c.streaming.Set("")
	}
}

func (c *RunController) needsNewMessageLocked(messageID string) bool {
	if c.openID == "" || !c.hasMessageLocked(c.openID) {
		return true
	}
	if messageID != "" && messageID != c.openID {
		return true
	}
	msgs := c.messages.Get()
	last := msgs[len(msgs)-1]
	switch {
	case last.Role == chat.RoleTool:
		return true
	case last.Role == chat.RoleAssistant && last.HasToolCalls():
		return true
	}
	return false
}

// openAssistantLocked appends an empty assistant message and makes it the
// open one. A backend id that is already taken is replaced by a fresh one.
func (c *RunController) openAssistantLocked(messageID string) {
	if messageID == "" || c.hasMessageLocked(messageID) {
		messageID = uuid.NewString()
	}
	m := chat.NewMessage(chat.RoleAssistant, "")
	m.ID = messageID
	c.appendMessageLocked(m)
	c.openID = messageID
}

func (c *RunController) onTextDelta(delta string) {
	if delta == "" {
		return
	}
	if c.openID == "" || !c.hasMessageLocked(c.openID) {
		c.openAssistantLocked("")
	}
	c.streaming.Set(c.streaming.Get() + delta)
	c.updateMessageLocked(c.openID, func(m *chat.ChatMessage) {
		m.Content += delta
	})
}

func (c *RunController) onToolCallStart(id, name, parentID string) {
	if id == "" {
		c.logger.Debug().Str("tool", name).Msg("dropping tool call without id")
		return
	}
	if _, ok := c.findToolCallLocked(id); ok {
		c.logger.Debug().Str("tool_call_id", id).Msg("dropping duplicate tool call start")
		return
	}

	if c.openID == "" || !c.hasMessageLocked(c.openID) {
		c.openAssistantLocked(parentID)
	}

	call := chat.ToolCallInfo{ID: id, Name: name, Status: chat.ToolCallPending}
	c.pending = append(c.pending, call)
	c.liveCalls[id] = struct{}{}
	c.updateMessageLocked(c.openID, func(m *chat.ChatMessage) {
		m.ToolCalls = append(m.ToolCalls, call)
	})
	c.agentState.Set(c.agentState.Get().Merge(map[string]any{
		"status":      chat.StatusExecuting,
		"currentStep": fmt.Sprintf("Calling %s...", name),
	}))
}

func (c *RunController) onToolCallArgsEnd(id, args string) {
	updated := c.updateToolCallLocked(id, func(tc *chat.ToolCallInfo) {
		if args != "" {
			tc.Arguments = args
		}
		tc.ParsedArgs = chat.ParseJSON(tc.Arguments)
	})
	if updated {
		c.argsDone[id] = true
	}
}

func (c *RunController) onRunFinished(gen uint64, outcome *chat.RunOutcome) func() {
	lastAssistant := c.openID
	if lastAssistant == "" {
		msgs := c.messages.Get()
		if idx := chat.LastAssistantIndex(msgs); idx >= 0 {
			lastAssistant = msgs[idx].ID
		}
	}
	c.clearTransientLocked()

	kind := chat.OutcomeSuccess
	if outcome != nil {
		kind = outcome.Kind
	}

	switch kind {
	case chat.OutcomeError:
		msg := outcome.Error
		if msg == "" {
			msg = defaultRunError
		}
		c.appendMessageLocked(chat.NewMessage(chat.RoleAssistant, "Error: "+msg))
		c.agentState.Set(nil)
		c.setRunningLocked(false)
		c.logger.Info().Str("error", msg).Msg("run failed")
		return nil

	case chat.OutcomeInterrupt:
		var info chat.InterruptInfo
		if outcome.Interrupt != nil {
			info = *outcome.Interrupt
		} else {
			info = chat.InterruptFromMap(nil)
		}
		return c.parkLocked(gen, info, lastAssistant)

	default:
		c.agentState.Set(nil)
		c.setRunningLocked(false)
		return nil
	}
}

func (c *RunController) onCustom(name string, value any) {
	if name != agui.CustomAgentSelected {
		c.logger.Debug().Str("name", name).Msg("ignoring custom event")
		return
	}
	ref, ok := agentRefFrom(value)
	if !ok {
		c.logger.Debug().Msg("malformed agent_selected event")
		return
	}
	c.resolvedAgent.Set(&ref)
}

func agentRefFrom(v any) (chat.AgentRef, bool) {
	switch t := v.(type) {
	case chat.AgentRef:
		return t, t.ID != ""
	case *chat.AgentRef:
		if t == nil {
			return chat.AgentRef{}, false
		}
		return *t, t.ID != ""
	case map[string]any:
		ref := chat.AgentRef{}
		ref.ID, _ = t["agentId"].(string)
		ref.Name, _ = t["agentName"].(string)
		ref.Alias, _ = t["agentAlias"].(string)
		return ref, ref.ID != ""
	}
	return chat.AgentRef{}, false
}
