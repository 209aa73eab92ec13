package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"agentrun/internal/chat"
	"agentrun/internal/runctl"
	"agentrun/internal/server"
)

type replayOptions struct {
	agent       string
	autoApprove bool
	timeout     time.Duration
	jsonOutput  bool
}

// NewReplayCmd creates the replay command.
func NewReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <message>",
		Short: "Send a message to a scripted agent and print the conversation",
		Long: `Bind an agent whose transcript is configured, send one user message and
wait until the run (including tool execution and approvals) is idle.

Approvals and interrupts are asked on the terminal when stdin is a TTY.
Otherwise they are answered according to --auto-approve.`,
		Example: `  agentrun replay --agent demo "what's the weather?"
  agentrun replay --agent demo --auto-approve --json "delete tmp files"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			if opts.agent == "" {
				ids := cliCtx.Config.AgentIDs()
				if len(ids) != 1 {
					return errors.New("--agent is required when more than one agent is configured")
				}
				opts.agent = ids[0]
			}

			in := cmd.InOrStdin()
			interactive := false
			if f, ok := in.(*os.File); ok {
				interactive = term.IsTerminal(int(f.Fd()))
			}
			prompter := newTerminalPrompter(in, cmd.ErrOrStderr(), interactive, opts.autoApprove)
			return runReplay(cmd.Context(), cliCtx, prompter, opts, strings.Join(args, " "), out(cmd))
		},
	}

	cmd.Flags().StringVarP(&opts.agent, "agent", "a", "", "agent id from the config")
	cmd.Flags().BoolVar(&opts.autoApprove, "auto-approve", false, "approve tools and interrupts when not interactive")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up after this long")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the final snapshot as JSON")

	return cmd
}

func runReplay(ctx context.Context, cliCtx *CLIContext, prompter *terminalPrompter, opts replayOptions, message string, w io.Writer) error {
	storagePath := ""
	if cliCtx.Config.Approval.Audit {
		storagePath = cliCtx.StoragePath
	}
	stack, err := server.NewStack(cliCtx.Config, server.StackOptions{
		StoragePath: storagePath,
		Prompter:    prompter,
		Approver:    prompter,
		Logger:      cliCtx.Log(),
	})
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.BindAgent(opts.agent); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	ctrl := stack.Controller
	if err := ctrl.SendUserMessage(message); err != nil {
		return err
	}
	if err := waitIdle(ctx, ctrl); err != nil {
		ctrl.AbortRun()
		return fmt.Errorf("run did not finish: %w", err)
	}

	snap := ctrl.Snapshot()
	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printConversation(w, snap)
	return nil
}

// waitIdle blocks until the controller has no active run.
func waitIdle(ctx context.Context, ctrl *runctl.RunController) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for running := range ctrl.Running().Watch(watchCtx) {
		if !running {
			return nil
		}
	}
	return ctx.Err()
}

func printConversation(w io.Writer, snap runctl.Snapshot) {
	for _, m := range snap.Messages {
		switch m.Role {
		case chat.RoleTool:
			fmt.Fprintf(w, "tool[%s]: %s\n", m.ToolCallID, m.Content)
		default:
			if m.Content != "" {
				fmt.Fprintf(w, "%s: %s\n", m.Role, m.Content)
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(w, "%s -> %s(%s) [%s]\n", m.Role, tc.Name, tc.Arguments, tc.Status)
			}
		}
	}
}
