package main

import (
    "fmt"

    "github.com/spf13/cobra"

    "juscapture/internal/app"
    pg "juscapture/internal/adapters/postgres"
    "juscapture/internal/config"
)

func newMigrateCmd() *cobra.Command {
    var status bool
    cmd := &cobra.Command{
        Use:   "migrate",
        Short: "Apply database migrations",
        RunE: func(cmd *cobra.Command, _ []string) error {
            cfg, err := config.Load()
            if err != nil {
                return err
            }
            if cfg.StoreDriver == "sqlite" {
                if status {
                    return fmt.Errorf("migration status is only tracked for postgres")
                }
                // SQLite migrates on open.
                _, _, closeStore, err := app.OpenStore(cmd.Context(), cfg, nil)
                if err != nil {
                    return err
                }
                closeStore()
                fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema up to date: %s\n", cfg.SQLitePath)
                return nil
            }
            if status {
                return pg.MigrationStatus(cmd.Context(), cfg.DatabaseURL)
            }
            if err := pg.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
                return err
            }
            fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
            return nil
        },
    }
    cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of migrating")
    return cmd
}
