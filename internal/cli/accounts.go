package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/accounts"
	"github.com/spf13/cobra"
)

func newCreateDoctorCommand(e *env) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-doctor",
		Short: "Register a doctor account",
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

			u, err := accounts.New(st).CreateDoctor(ctx, email, name)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(u)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCreateKeyCommand(e *env) *cobra.Command {
	var (
		userID, email, name string
		scopes              []string
	)
	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Issue an API key for a doctor",
		Long: `Issue an API key for the doctor given by --user-id or --email.
The raw key is printed once and cannot be recovered later.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == (email == "") {
				return fmt.Errorf("exactly one of --user-id or --email is required")
			}
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

			var id uuid.UUID
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("--user-id: %w", err)
				}
			} else {
				u, err := st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
				if err != nil {
					return fmt.Errorf("look up %s: %w", email, err)
				}
				id = u.ID
			}

			issued, err := accounts.New(st).CreateKey(ctx, id, name, scopes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:    %s\n", issued.Key)
			fmt.Fprintf(out, "id:     %s\n", issued.APIKey.ID)
			fmt.Fprintf(out, "scopes: %s\n", strings.Join(issued.APIKey.Scopes, ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "owning doctor's ID")
	cmd.Flags().StringVar(&email, "email", "", "owning doctor's email")
	cmd.Flags().StringVar(&name, "name", "cli", "label for the key")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "comma-separated scopes (read, write, admin)")
	return cmd
}
