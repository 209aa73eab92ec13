// Package cli implements the agentrun command line.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"agentrun/internal/config"
	"agentrun/pkg/logger"
)

// GlobalFlags holds flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

type contextKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var flags GlobalFlags

	rootCmd := &cobra.Command{
		Use:   "agentrun",
		Short: "agentrun - AG-UI agent run controller",
		Long: `agentrun drives conversations with AG-UI agents: it streams agent events
into a conversation, runs frontend tools, asks for approvals and resumes
interrupted runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := flags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logLevel := cfg.Log.Level
			if flags.Verbose {
				logLevel = "debug"
			}
			if flags.Quiet {
				logLevel = "error"
			}
			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
			}); err != nil {
				return err
			}

			storagePath := cfg.Storage.Path
			if storagePath == "" {
				storagePath, err = config.DefaultDataPath()
				if err != nil {
					return err
				}
			}

			cliCtx := NewCLIContext(cfg, configPath, logger.For("cli"), storagePath, flags.Verbose, flags.Quiet)
			cliCtx.Out = cmd.OutOrStdout()
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cliCtx := GetCLIContext(cmd); cliCtx != nil {
				return logger.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet mode")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewToolCmd())
	rootCmd.AddCommand(NewReplayCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// GetCLIContext returns the context installed by the root command.
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, ok := ctx.Value(contextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cliCtx
}

func mustCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	if c := GetCLIContext(cmd); c != nil {
		return c, nil
	}
	return nil, errNoContext
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
