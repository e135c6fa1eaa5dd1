package cli

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/ayupilot/internal/config"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("migrations need STORE_DRIVER=postgres and DATABASE_URL")

func newMigrateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := migrationTarget(e)
			if err != nil {
				return err
			}
			if err := store.RunMigrations(db.URL, db.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			db, err := migrationTarget(e)
			if err != nil {
				return err
			}
			if err := store.RollbackMigrations(db.URL, db.MigrationsDir, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migration(s).\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := migrationTarget(e)
			if err != nil {
				return err
			}
			v, dirty, err := store.MigrationVersion(db.URL, db.MigrationsDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func migrationTarget(e *env) (config.DatabaseConfig, error) {
	cfg, closeLog, err := e.setup()
	if err != nil {
		return config.DatabaseConfig{}, err
	}
	defer closeLog()
	if cfg.Database.Driver != "postgres" {
		return config.DatabaseConfig{}, errNoDatabase
	}
	return cfg.Database, nil
}
