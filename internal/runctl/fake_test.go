package runctl

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"agentrun/internal/agui"
	"agentrun/internal/chat"
)

// fakeSource records every run and lets the test push events into it.
type fakeSource struct {
	mu     sync.Mutex
	inputs []agui.RunInput
	sinks  []agui.Sink
	ctxs   []context.Context
	resets int

	// onRun, when set, is called synchronously for every run.
	onRun func(n int, input agui.RunInput, sink agui.Sink)
}

func (f *fakeSource) Run(ctx context.Context, input agui.RunInput, sink agui.Sink) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.sinks = append(f.sinks, sink)
	f.ctxs = append(f.ctxs, ctx)
	n := len(f.inputs) - 1
	onRun := f.onRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(n, input, sink)
	}
}

func (f *fakeSource) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeSource) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeSource) input(i int) agui.RunInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[i]
}

func (f *fakeSource) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// emit delivers events through the sink of run i.
func (f *fakeSource) emit(i int, events ...agui.Event) {
	f.mu.Lock()
	sink := f.sinks[i]
	f.mu.Unlock()
	for _, ev := range events {
		sink(ev)
	}
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type harness struct {
	ctl     *RunController
	source  *fakeSource
	mu      sync.Mutex
	bound   []string
	sources []*fakeSource
}

func (h *harness) bindings() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.bound...)
}

// newHarness builds a controller bound to agent "agent-1" over a fakeSource.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{}
	opts.Logger = nopLogger()
	opts.Transports = func(agent chat.AgentRef) (agui.EventSource, error) {
		src := &fakeSource{}
		h.mu.Lock()
		h.bound = append(h.bound, agent.ID)
		h.sources = append(h.sources, src)
		h.mu.Unlock()
		return src, nil
	}
	h.ctl = New(opts)
	t.Cleanup(func() { _ = h.ctl.Close() })

	require.NoError(t, h.ctl.SetAgent(chat.AgentRef{ID: "agent-1", Name: "Agent One"}))
	h.source = h.sources[0]
	return h
}

// summary renders messages as compact strings for assertions.
func summary(msgs []chat.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.Role == chat.RoleTool:
			out = append(out, fmt.Sprintf("tool(%s):%s", m.ToolCallID, m.Content))
		case m.HasToolCalls():
			calls := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, tc.ID+"="+string(tc.Status))
			}
			out = append(out, fmt.Sprintf("%s:%s[%s]", m.Role, m.Content, strings.Join(calls, ",")))
		default:
			out = append(out, fmt.Sprintf("%s:%s", m.Role, m.Content))
		}
	}
	return out
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
