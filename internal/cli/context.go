package cli

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"

	"agentrun/internal/config"
	"agentrun/pkg/logger"
)

var errNoContext = errors.New("CLI context not initialized")

// CLIContext carries the loaded configuration into subcommands.
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	StoragePath string
	Verbose     bool
	Quiet       bool
	Out         io.Writer
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		StoragePath: storagePath,
		Verbose:     verbose,
		Quiet:       quiet,
		Out:         os.Stdout,
	}
}

// Log returns the CLI logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
