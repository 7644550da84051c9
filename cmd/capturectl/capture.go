package main

import (
    "context"
    "errors"
    "time"

    "github.com/spf13/cobra"

    "juscapture/internal/app"
    "juscapture/internal/domain"
    "juscapture/internal/workers/capturerunner"
)

type captureFlags struct {
    lawyer, tribunal, level, from, to string
    queue                             bool
}

func (f captureFlags) request(rawType string) (domain.CaptureRequest, error) {
    ct, err := domain.ParseCaptureType(rawType)
    if err != nil {
        return domain.CaptureRequest{}, err
    }
    level, err := domain.ParseInstanceLevel(f.level)
    if err != nil {
        return domain.CaptureRequest{}, err
    }
    req := domain.CaptureRequest{LawyerID: f.lawyer, Tribunal: f.tribunal, Level: level, Type: ct}
    if f.from != "" || f.to != "" {
        var rng domain.DateRange
        if rng.From, err = parseDay("from", f.from); err != nil {
            return req, err
        }
        if rng.To, err = parseDay("to", f.to); err != nil {
            return req, err
        }
        req.Range = &rng
    }
    return req, req.Validate()
}

func parseDay(field, s string) (time.Time, error) {
    if s == "" {
        return time.Time{}, nil
    }
    t, err := time.Parse("2006-01-02", s)
    if err != nil {
        return time.Time{}, &domain.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
    }
    return t, nil
}

func newCaptureCmd() *cobra.Command {
    var f captureFlags
    cmd := &cobra.Command{
        Use:   "capture <type>",
        Short: "Run one capture attempt, or queue it with --queue",
        Long: "Types: acervo_geral, pendentes_manifestacao, audiencias, arquivados, timeline.\n" +
            "Without --queue the attempt runs in this process and its outcome is printed.",
        Args: cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            req, err := f.request(args[0])
            if err != nil {
                return err
            }
            return withApp(cmd, func(ctx context.Context, a *app.App) error {
                if f.queue {
                    id, err := a.Queue.Enqueue(ctx, req)
                    if err != nil {
                        return err
                    }
                    return printJSON(cmd, map[string]string{"jobId": id})
                }
                jobID, outcome, err := capturerunner.ProcessInline(ctx, a.Store, a.Capturer, req)
                if perr := printJSON(cmd, struct {
                    JobID string `json:"jobId"`
                    domain.CaptureOutcome
                }{jobID, outcome}); perr != nil {
                    return errors.Join(err, perr)
                }
                return err
            })
        },
    }
    cmd.Flags().StringVar(&f.lawyer, "lawyer", "", "lawyer id (required)")
    cmd.Flags().StringVar(&f.tribunal, "tribunal", "", "tribunal code, e.g. TRT2 (required)")
    cmd.Flags().StringVar(&f.level, "level", "primeiro_grau", "instance level")
    cmd.Flags().StringVar(&f.from, "from", "", "range start (YYYY-MM-DD)")
    cmd.Flags().StringVar(&f.to, "to", "", "range end (YYYY-MM-DD)")
    cmd.Flags().BoolVar(&f.queue, "queue", false, "queue for the server's workers instead of running here")
    _ = cmd.MarkFlagRequired("lawyer")
    _ = cmd.MarkFlagRequired("tribunal")
    return cmd
}
