package runctl

import (
	"time"

	"agentrun/internal/chat"
	"agentrun/internal/interrupt"
)

// parkLocked suspends the run of generation gen and returns the call that
// offers info to the interrupt handlers.
func (c *RunController) parkLocked(gen uint64, info chat.InterruptInfo, lastAssistantID string) func() {
	c.parked = true
	c.startTimerLocked(gen)

	ictx := interrupt.NewContext(
		c.resumeFor(gen),
		c.stateSetterFor(gen),
		lastAssistantID,
		chat.CloneMessages(c.messages.Get()),
	)
	ctx := c.runCtx
	registry := c.registry

	c.logger.Info().
		Str("kind", info.Kind()).
		Str("interrupt_id", info.ID).
		Msg("run interrupted")

	return func() {
		if !registry.Handle(ctx, info, ictx) {
			ictx.SetAgentState(nil)
		}
	}
}

// resumeFor continues a parked run. A non-nil response becomes a user message.
// Calls for a run that was resumed, abandoned or replaced are ignored.
func (c *RunController) resumeFor(gen uint64) func(any) {
	return func(response any) {
		c.mu.Lock()
		if c.closed || gen != c.generation || !c.parked {
			c.mu.Unlock()
			c.logger.Debug().Uint64("generation", gen).Msg("ignoring stale resume")
			return
		}
		if c.source == nil {
			c.parked = false
			c.agentState.Set(nil)
			c.setRunningLocked(false)
			c.mu.Unlock()
			return
		}
		if response != nil {
			c.appendMessageLocked(chat.NewMessage(chat.RoleUser, chat.Stringify(response)))
		}
		launch := c.beginRunLocked()
		c.mu.Unlock()

		c.logger.Debug().Bool("with_response", response != nil).Msg("resuming run")
		launch()
	}
}

func (c *RunController) stateSetterFor(gen uint64) func(chat.AgentState) {
	return func(s chat.AgentState) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed || gen != c.generation {
			return
		}
		c.agentState.Set(s.Clone())
		if s == nil {
			c.parked = false
			c.stopTimerLocked()
			c.setRunningLocked(false)
		}
	}
}

func (c *RunController) startTimerLocked(gen uint64) {
	c.stopTimerLocked()
	if c.interruptTimeout <= 0 {
		return
	}
	c.timer = time.AfterFunc(c.interruptTimeout, func() {
		c.expireInterrupt(gen)
	})
}

func (c *RunController) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expireInterrupt abandons a run that stayed parked past the interrupt timeout.
func (c *RunController) expireInterrupt(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation || !c.parked {
		c.mu.Unlock()
		return
	}
	c.resetLocked(false)
	source := c.source
	c.mu.Unlock()

	c.logger.Warn().Dur("timeout", c.interruptTimeout).Msg("interrupt not resolved in time, run abandoned")
	if source != nil {
		source.Reset()
	}
}
