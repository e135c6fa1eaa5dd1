// Package cli provides ayupilotctl, the operator command line: schema
// migrations, one-off reconciliation, a standalone worker, and bootstrap
// of doctors and API keys.
package cli

import (
	"context"
	"log/slog"

	"github.com/kiranshivaraju/ayupilot/internal/app"
	"github.com/kiranshivaraju/ayupilot/internal/config"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// env is what commands reach for outside their flags. Tests swap the
// openers to share one in-memory store across invocations.
type env struct {
	loadConfig func() (*config.Config, error)
	openStore  func(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func() error, error)
	buildApp   func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

func defaultEnv() *env {
	return &env{
		loadConfig: func() (*config.Config, error) { return config.Load() },
		openStore:  app.OpenStore,
		buildApp:   app.Build,
	}
}

// NewRootCommand builds ayupilotctl with every subcommand attached.
func NewRootCommand() *cobra.Command {
	return newRoot(defaultEnv())
}

func newRoot(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "ayupilotctl",
		Short:         "Operate an AyuPilot deployment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCommand(e),
		newReconcileCommand(e),
		newWorkerCommand(e),
		newCreateDoctorCommand(e),
		newCreateKeyCommand(e),
	)
	return root
}

// setup loads configuration and installs the process logger.
func (e *env) setup() (*config.Config, func() error, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog := config.SetupLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, closeLog, nil
}
