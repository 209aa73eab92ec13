package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"agentrun/internal/approval"
	"agentrun/internal/chat"
	"agentrun/internal/tools"
)

// terminalPrompter answers interrupts and tool approvals on a terminal.
// When the input is not interactive it answers on its own according to
// autoApprove.
type terminalPrompter struct {
	mu          sync.Mutex
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	autoApprove bool
}

func newTerminalPrompter(in io.Reader, out io.Writer, interactive, autoApprove bool) *terminalPrompter {
	return &terminalPrompter{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
		autoApprove: autoApprove,
	}
}

// Prompt implements interrupt.Prompter.
func (p *terminalPrompter) Prompt(ctx context.Context, info chat.InterruptInfo) (any, error) {
	if !p.interactive {
		if !p.autoApprove {
			return map[string]any{"approved": false, "cancelled": true}, nil
		}
		if len(info.Options) > 0 {
			return info.Options[0].Value, nil
		}
		return map[string]any{"approved": true}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\n? %s\n", info.Title)
	if info.Message != "" {
		fmt.Fprintf(p.out, "  %s\n", info.Message)
	}
	for i, opt := range info.Options {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, label)
	}
	fmt.Fprint(p.out, "> ")

	line, err := p.readLine(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(info.Options) {
		return info.Options[n-1].Value, nil
	}
	return line, nil
}

// Approve implements tools.Approver.
func (p *terminalPrompter) Approve(ctx context.Context, req tools.ApprovalRequest) (tools.ApprovalDecision, error) {
	if !p.interactive {
		if p.autoApprove {
			return tools.ApprovalDecision{Approved: true}, nil
		}
		return tools.ApprovalDecision{Approved: false, Message: "not approved"}, tools.ErrApprovalDenied
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	title := "Run tool " + req.ToolName + "?"
	if req.Config != nil && req.Config.Title != "" {
		title = req.Config.Title
	}
	fmt.Fprintf(p.out, "\n? %s\n", title)
	if len(req.Arguments) > 0 {
		fmt.Fprintf(p.out, "  args: %s\n", chat.Stringify(req.Arguments))
	}
	fmt.Fprint(p.out, "  [y/N] > ")

	line, err := p.readLine(ctx)
	if err != nil {
		return tools.ApprovalDecision{}, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return tools.ApprovalDecision{Approved: true}, nil
	case "", "n", "no":
		return tools.ApprovalDecision{Approved: false}, tools.ErrApprovalDenied
	}
	resp := approval.ParseAnswer(line)
	if !resp.Approved {
		return tools.ApprovalDecision{Approved: false}, tools.ErrApprovalDenied
	}
	return tools.ApprovalDecision{Approved: true, Value: resp.Value}, nil
}

// readLine reads one trimmed line or gives up when ctx is done. The
// abandoned read keeps the reader busy until the next line arrives.
func (p *terminalPrompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
