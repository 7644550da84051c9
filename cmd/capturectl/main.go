// Command capturectl is the operator tool: schema migrations, one-off captures,
// raw log recovery and credential provisioning.
package main

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"

    "juscapture/internal/app"
    "juscapture/internal/config"
)

func main() {
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    if err := newRootCmd().ExecuteContext(ctx); err != nil {
        os.Exit(1)
    }
}

func newRootCmd() *cobra.Command {
    root := &cobra.Command{
        Use:           "capturectl",
        Short:         "Operate the judicial portal capture service",
        SilenceUsage:  true,
        SilenceErrors: false,
    }
    root.AddCommand(newMigrateCmd(), newCaptureCmd(), newRecoveryCmd(), newCredentialsCmd())
    return root
}

// withApp loads configuration, builds the application and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
    cfg, err := config.Load()
    if err != nil {
        return err
    }
    a, err := app.New(cmd.Context(), cfg)
    if err != nil {
        return err
    }
    defer a.Close()
    return fn(cmd.Context(), a)
}

func printJSON(cmd *cobra.Command, v any) error {
    enc := json.NewEncoder(cmd.OutOrStdout())
    enc.SetIndent("", "  ")
    if err := enc.Encode(v); err != nil {
        return fmt.Errorf("encode output: %w", err)
    }
    return nil
}
