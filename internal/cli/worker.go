package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newWorkerCommand runs the job pool without the HTTP server, for
// deployments that set WORKER_EMBEDDED=false on the API processes.
func newWorkerCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Drain the work queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := e.setup()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := e.buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Pool().Run(ctx)
			slog.Info("worker stopped")
			return nil
		},
	}
}
