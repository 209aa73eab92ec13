package runctl

import (
	"agentrun/internal/chat"
	"agentrun/internal/tools"
)

// findToolCallLocked returns the tool call with id from the history.
func (c *RunController) findToolCallLocked(id string) (chat.ToolCallInfo, bool) {
	if id == "" {
		return chat.ToolCallInfo{}, false
	}
	msgs := c.messages.Get()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != chat.RoleAssistant {
			continue
		}
		for _, tc := range msgs[i].ToolCalls {
			if tc.ID == id {
				return tc, true
			}
		}
	}
	return chat.ToolCallInfo{}, false
}

// updateToolCallLocked applies fn to the tool call with id and writes the
// same value to the owning message and to the tracking list.
func (c *RunController) updateToolCallLocked(id string, fn func(*chat.ToolCallInfo)) bool {
	if id == "" {
		return false
	}

	var updated chat.ToolCallInfo
	found := false
	msgs := c.messages.Get()
	for i := len(msgs) - 1; i >= 0 && !found; i-- {
		for j, tc := range msgs[i].ToolCalls {
			if tc.ID != id {
				continue
			}
			fn(&tc)
			updated = tc
			found = true

			next := make([]chat.ChatMessage, len(msgs))
			copy(next, msgs)
			m := next[i].Clone()
			m.ToolCalls[j] = tc
			next[i] = m
			c.messages.Set(next)
			break
		}
	}

	for k := range c.pending {
		if c.pending[k].ID != id {
			continue
		}
		if found {
			c.pending[k] = updated
		} else {
			fn(&c.pending[k])
			found = true
		}
		break
	}
	return found
}

// completeToolCallLocked moves the call to a terminal status and appends the
// tool message carrying result. Unknown and already finished calls are ignored.
func (c *RunController) completeToolCallLocked(id string, status chat.ToolCallStatus, result string) bool {
	tc, ok := c.findToolCallLocked(id)
	if !ok {
		c.logger.Debug().Str("tool_call_id", id).Msg("dropping result for unknown tool call")
		return false
	}
	if tc.Status.IsTerminal() {
		c.logger.Debug().Str("tool_call_id", id).Str("status", string(tc.Status)).Msg("dropping result for finished tool call")
		return false
	}

	c.updateToolCallLocked(id, func(tc *chat.ToolCallInfo) {
		if tc.Status.CanAdvance(status) {
			tc.Status = status
		}
		tc.Result = result
	})
	c.appendMessageLocked(chat.NewToolMessage(id, result))
	delete(c.liveCalls, id)
	return true
}

func (c *RunController) onToolResult(r tools.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.liveCalls[r.ToolCallID]; !ok {
		c.logger.Debug().Str("tool_call_id", r.ToolCallID).Msg("ignoring bus result for untracked tool call")
		return
	}
	if c.completeToolCallLocked(r.ToolCallID, r.Status(), r.Content) {
		c.logger.Debug().
			Str("tool", r.ToolName).
			Str("tool_call_id", r.ToolCallID).
			Bool("is_error", r.IsError).
			Msg("frontend tool finished")
	}
}

func (c *RunController) onToolStatus(u tools.StatusUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.liveCalls[u.ToolCallID]; !ok {
		return
	}
	tc, ok := c.findToolCallLocked(u.ToolCallID)
	if !ok || u.Status.IsTerminal() || !tc.Status.CanAdvance(u.Status) {
		return
	}
	c.updateToolCallLocked(u.ToolCallID, func(tc *chat.ToolCallInfo) {
		tc.Status = u.Status
	})
	if c.agentState.Get() != nil {
		switch u.Status {
		case chat.ToolCallAwaitingApproval:
			c.setStatusLocked(chat.StatusAwaitingApproval)
		case chat.ToolCallExecuting:
			c.setStatusLocked(chat.StatusExecuting)
		}
	}
}
