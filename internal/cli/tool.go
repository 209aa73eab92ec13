package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentrun/internal/jsvm"
	"agentrun/internal/tools"
	"agentrun/pkg/logger"
)

// NewToolCmd creates the tools command.
func NewToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tools",
		Aliases: []string{"tool"},
		Short:   "Inspect frontend tools",
		Long:    `List the frontend tools offered to agents on every run.`,
	}

	cmd.AddCommand(newToolListCmd())

	return cmd
}

func newToolListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured frontend tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}

			vm := jsvm.NewRuntime(jsvm.Config{Timeout: cliCtx.Config.JSVM.Timeout}, logger.For("jsvm"))
			defer vm.Close()

			manager, err := tools.LoadManager(cliCtx.Config.Tools, vm)
			if err != nil {
				return fmt.Errorf("load tools: %w", err)
			}
			manifests := manager.Manifests()

			if jsonOutput {
				data, err := json.MarshalIndent(manifests, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), string(data))
				return nil
			}

			if len(manifests) == 0 {
				fmt.Fprintln(out(cmd), "No frontend tools configured.")
				return nil
			}

			w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAPPROVAL\tDESCRIPTION")
			for _, m := range manifests {
				approval := "no"
				if m.RequiresApproval() {
					approval = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, approval, truncate(m.Description, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
