package main

import (
    "context"

    "github.com/spf13/cobra"

    "juscapture/internal/app"
    "juscapture/internal/domain"
)

func newRecoveryCmd() *cobra.Command {
    cmd := &cobra.Command{
        Use:   "recovery",
        Short: "Inspect raw capture logs and re-persist what they hold",
    }
    cmd.AddCommand(newRecoveryListCmd(), newRecoveryAnalyzeCmd(), newRecoveryElementsCmd(), newRecoveryRepersistCmd())
    return cmd
}

func newRecoveryListCmd() *cobra.Command {
    var captureType, status, tribunal, lawyer string
    var limit int
    cmd := &cobra.Command{
        Use:   "list",
        Short: "List raw capture logs, newest first",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, _ []string) error {
            f := domain.RawLogFilter{Tribunal: domain.NormalizeTribunal(tribunal), LawyerID: lawyer, Limit: limit}
            var err error
            if captureType != "" {
                if f.CaptureType, err = domain.ParseCaptureType(captureType); err != nil {
                    return err
                }
            }
            if status != "" {
                if f.Status, err = domain.ParseCaptureStatus(status); err != nil {
                    return err
                }
            }
            return withApp(cmd, func(ctx context.Context, a *app.App) error {
                logs, err := a.Recovery.List(ctx, f)
                if err != nil {
                    return err
                }
                return printJSON(cmd, logs)
            })
        },
    }
    cmd.Flags().StringVar(&captureType, "type", "", "capture type")
    cmd.Flags().StringVar(&status, "status", "", "pending, success, partial or error")
    cmd.Flags().StringVar(&tribunal, "tribunal", "", "tribunal code")
    cmd.Flags().StringVar(&lawyer, "lawyer", "", "lawyer id")
    cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
    return cmd
}

func newRecoveryAnalyzeCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "analyze <rawLogId>",
        Short: "Report which captured elements are missing from the database",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            return withApp(cmd, func(ctx context.Context, a *app.App) error {
                report, err := a.Recovery.Analyze(ctx, args[0])
                if err != nil {
                    return err
                }
                return printJSON(cmd, report)
            })
        },
    }
}

func newRecoveryElementsCmd() *cobra.Command {
    var filter, mode string
    cmd := &cobra.Command{
        Use:   "elements <rawLogId>",
        Short: "List the elements of a raw log with their persistence status",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ef, err := domain.ParseElementFilter(filter)
            if err != nil {
                return err
            }
            lm, err := domain.ParseListingMode(mode)
            if err != nil {
                return err
            }
            return withApp(cmd, func(ctx context.Context, a *app.App) error {
                listing, err := a.Recovery.Elements(ctx, args[0], ef, lm)
                if err != nil {
                    return err
                }
                return printJSON(cmd, listing)
            })
        },
    }
    cmd.Flags().StringVar(&filter, "filter", "all", "all, missing or existing")
    cmd.Flags().StringVar(&mode, "mode", "generic", "generic or byPartyKind")
    return cmd
}

func newRecoveryRepersistCmd() *cobra.Command {
    var filter string
    cmd := &cobra.Command{
        Use:   "repersist <rawLogId>",
        Short: "Persist the elements of a raw log again",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ef, err := domain.ParseElementFilter(filter)
            if err != nil {
                return err
            }
            if ef == domain.FilterExisting {
                return &domain.ValidationError{Field: "filter", Reason: "expected all or missing"}
            }
            return withApp(cmd, func(ctx context.Context, a *app.App) error {
                res, err := a.Recovery.Repersist(ctx, args[0], ef)
                if err != nil {
                    return err
                }
                return printJSON(cmd, res)
            })
        },
    }
    cmd.Flags().StringVar(&filter, "filter", "missing", "all or missing")
    return cmd
}
