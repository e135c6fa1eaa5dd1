package cli

import (
	"encoding/json"
	"time"

	"github.com/kiranshivaraju/ayupilot/internal/reconciler"
	"github.com/spf13/cobra"
)

func newReconcileCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one appointment reconciliation pass and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := e.setup()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			st, closeStore, err := e.openStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer closeStore()

			r := reconciler.New(st, cfg.Reconciler.Location, cfg.Reconciler.NoShowGrace, nil)
			res, err := r.Run(ctx, time.Now())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
}
