package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Skotchmaster/vending_machine/internal/config"
	"github.com/Skotchmaster/vending_machine/internal/repo"
	"github.com/Skotchmaster/vending_machine/internal/session"
	"github.com/Skotchmaster/vending_machine/pkg/db"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vending",
		Short:         "Vending machine API: coins in, products and change out",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSessionsCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateDB(); err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			gdb, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBSQLDriver)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close(gdb)

			if err := repo.Migrate(ctx, gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrate_done")
			return nil
		},
	}
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete sessions whose expiry has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateDB(); err != nil {
				return err
			}
			log := logging.New(cfg.LogLevel)

			gdb, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBSQLDriver)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close(gdb)

			registry := &session.Registry{Store: &repo.GormRepo{DB: gdb}}
			n, err := registry.PurgeExpired(ctx)
			if err != nil {
				return err
			}
			log.Info("sessions_purged", "deleted", n)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
			return nil
		},
	})
	return cmd
}
