package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrun/internal/chat"
	"agentrun/internal/config"
	"agentrun/internal/runctl"
	"agentrun/internal/tools"
)

const transcript = `
turns:
  - - type: TEXT_MESSAGE_START
      messageId: a1
    - type: TOOL_CALL_START
      toolCallId: tc1
      toolCallName: add
      parentMessageId: a1
    - type: TOOL_CALL_ARGS
      toolCallId: tc1
      delta: '{"a": 2, "b": 3}'
    - type: TOOL_CALL_END
      toolCallId: tc1
    - type: RUN_FINISHED
      outcome: interrupt
      interrupt:
        type: tool_execution
  - - type: TEXT_MESSAGE_START
      messageId: a2
    - type: TEXT_MESSAGE_CONTENT
      messageId: a2
      delta: done
    - type: RUN_FINISHED
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.yaml"), []byte(transcript), 0600))

	cfg := fmt.Sprintf(`
log:
  level: error
storage:
  path: %s
agents:
  demo:
    name: Demo
    transcript: demo.yaml
    synchronous: true
tools:
  - name: add
    description: adds numbers
    approval: true
    script: return args.a + args.b
`, filepath.Join(dir, "agentrun.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.Reset)

	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agentrun dev")

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info.Version)
}

func TestConfigShow(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "demo:")
	assert.Contains(t, out, "transcript: demo.yaml")
}

func TestConfigGet(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "8787\n", out)

	_, err = execute(t, "--config", writeConfig(t), "config", "get", "nope.nothing")
	assert.Error(t, err)
}

func TestToolsList(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "yes")

	out, err = execute(t, "--config", writeConfig(t), "tool", "list", "--json")
	require.NoError(t, err)
	var manifests []tools.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &manifests))
	require.Len(t, manifests, 1)
	assert.True(t, manifests[0].RequiresApproval())
}

func TestReplayAutoApprove(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "replay", "--auto-approve", "--timeout", "5s", "add", "them")
	require.NoError(t, err)
	assert.Contains(t, out, "user: add them")
	assert.Contains(t, out, "assistant -> add(")
	assert.Contains(t, out, "tool[tc1]: 5")
	assert.Contains(t, out, "assistant: done")
}

func TestReplayDeniedWithoutAutoApprove(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "replay", "--agent", "demo", "--json", "add")
	require.NoError(t, err)

	var snap runctl.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, chat.ToolCallError, snap.Messages[1].ToolCalls[0].Status)
	assert.Equal(t, tools.CancelledMessage, snap.Messages[2].Content)
	assert.False(t, snap.Running)
}

func TestReplayUnknownAgent(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "replay", "--agent", "ghost", "hi")
	assert.ErrorContains(t, err, "unknown agent")
}

func TestTerminalPrompterInteractive(t *testing.T) {
	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader("2\nsomething else\n"), &out, true, false)

	info := chat.InterruptInfo{
		Title:   "Pick a color",
		Options: []chat.InterruptOption{{Value: "red", Label: "Red"}, {Value: "blue", Label: "Blue"}},
	}
	answer, err := p.Prompt(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, "blue", answer)
	assert.Contains(t, out.String(), "2) Blue")

	answer, err = p.Prompt(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, "something else", answer)
}

func TestTerminalPrompterApprove(t *testing.T) {
	tests := []struct {
		input    string
		approved bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"\n", false},
		{"no\n", false},
		{"deny\n", false},
		{"use staging\n", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := newTerminalPrompter(strings.NewReader(tt.input), &out, true, false)
			dec, err := p.Approve(context.Background(), tools.ApprovalRequest{ToolName: "deploy", Arguments: map[string]any{"env": "prod"}})
			assert.Equal(t, tt.approved, dec.Approved)
			if tt.approved {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tools.ErrApprovalDenied)
			}
			assert.Contains(t, out.String(), "Run tool deploy?")
		})
	}
}

func TestTerminalPrompterNonInteractive(t *testing.T) {
	info := chat.InterruptInfo{Options: []chat.InterruptOption{{Value: "first"}}}

	auto := newTerminalPrompter(strings.NewReader(""), &bytes.Buffer{}, false, true)
	answer, err := auto.Prompt(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, "first", answer)
	dec, err := auto.Approve(context.Background(), tools.ApprovalRequest{ToolName: "x"})
	require.NoError(t, err)
	assert.True(t, dec.Approved)

	deny := newTerminalPrompter(strings.NewReader(""), &bytes.Buffer{}, false, false)
	answer, err = deny.Prompt(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"approved": false, "cancelled": true}, answer)
	_, err = deny.Approve(context.Background(), tools.ApprovalRequest{ToolName: "x"})
	assert.ErrorIs(t, err, tools.ErrApprovalDenied)
}

func TestTerminalPrompterCancelled(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	p := newTerminalPrompter(r, &bytes.Buffer{}, true, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Prompt(ctx, chat.InterruptInfo{Title: "wait"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
