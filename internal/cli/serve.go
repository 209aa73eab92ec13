package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentrun/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agentrun gateway",
		Long: `Start the HTTP/WebSocket gateway.

The gateway exposes the conversation, accepts user messages and approval
answers, and pushes conversation updates to WebSocket clients.`,
		Example: `  agentrun serve
  agentrun serve --port 9000 --agent demo`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")
	cmd.Flags().StringP("agent", "a", "", "agent to bind at startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	agent, _ := cmd.Flags().GetString("agent")

	storagePath := ""
	if cfg.Approval.Audit {
		storagePath = cliCtx.StoragePath
	}

	srv, err := server.NewServer(server.ServerConfig{
		Config:      cfg,
		StoragePath: storagePath,
		Agent:       agent,
		Version:     Version,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		_ = srv.Stop()
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().
		Str("address", "http://"+cfg.Gateway.Addr()).
		Msg("server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
		log.Info().Msg("shutting down server")
	case runErr = <-srv.ErrorChan():
		log.Error().Err(runErr).Msg("server error")
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
