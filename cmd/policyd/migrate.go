package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/homelab/policyd/internal/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ds, err := cfg.InitializeDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer ds.Close()

			version, err := ds.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Int64("version", version))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			ds, err := cfg.OpenDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer ds.Close()

			reverted, err := migrations.NewDefaultMigrator(ds.DB, ds.Dialect).RollbackLast(cmd.Context())
			if err != nil {
				return err
			}
			if reverted == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no migrations to revert")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted migration %d\n", reverted)
			return nil
		},
	})

	return cmd
}
