package main

import (
	"fmt"

	"github.com/phrazzld/scry-hook/internal/platform/sqlstore"
	"github.com/spf13/cobra"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := flags.load()
				if err != nil {
					return err
				}
				db, dialect, err := openDatabase(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				if err := sqlstore.Migrate(cmd.Context(), db, dialect, log); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := flags.load()
				if err != nil {
					return err
				}
				db, dialect, err := openDatabase(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				version, err := sqlstore.Rollback(cmd.Context(), db, dialect)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back migration %d\n", version)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := flags.load()
				if err != nil {
					return err
				}
				db, dialect, err := openDatabase(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()

				statuses, err := sqlstore.Status(cmd.Context(), db, dialect)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-8d %-8s %s\n", s.Version, state, s.Path)
				}
				return nil
			},
		},
	)
	return cmd
}
