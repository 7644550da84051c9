package capturerunner

import (
    "context"
    "log"
    "sync"
    "time"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
)

// Run starts a dispatcher that claims queued capture jobs and concurrency workers
// that run them. It returns once ctx is done and every worker has finished.
func Run(ctx context.Context, repo ports.JobRepository, capturer ports.Capturer, concurrency int, pollInterval time.Duration) {
    if concurrency < 1 {
        return
    }
    jobsCh := make(chan domain.CaptureJob, concurrency)

    // dispatcher loop
    go func() {
        defer close(jobsCh)
        ticker := time.NewTicker(pollInterval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-ticker.C:
                for {
                    job, found, err := repo.ClaimNext(ctx)
                    if err != nil {
                        if ctx.Err() == nil {
                            log.Printf("capturerunner: claim error: %v", err)
                        }
                        break
                    }
                    if !found {
                        break
                    }
                    select {
                    case jobsCh <- job:
                    case <-ctx.Done():
                        _ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "worker shutting down")
                        return
                    }
                }
            }
        }
    }()

    var wg sync.WaitGroup
    for i := 0; i < concurrency; i++ {
        wg.Add(1)
        go func(idx int) {
            defer wg.Done()
            for job := range jobsCh {
                outcome, err := process(ctx, repo, capturer, job.ID, job.Request)
                if err != nil {
                    log.Printf("capturerunner: worker %d: job %s failed: %v", idx, job.ID, err)
                    continue
                }
                log.Printf("capturerunner: worker %d: job %s done raw_log=%s status=%s", idx, job.ID, outcome.RawLogID, outcome.Status)
            }
        }(i)
    }
    wg.Wait()
}

// ProcessInline records a running job for req and executes it synchronously with the
// same logic the background workers use.
func ProcessInline(ctx context.Context, repo ports.JobRepository, capturer ports.Capturer, req domain.CaptureRequest) (string, domain.CaptureOutcome, error) {
    jobID, err := repo.StartJob(ctx, req)
    if err != nil {
        return "", domain.CaptureOutcome{}, err
    }
    outcome, err := process(ctx, repo, capturer, jobID, req)
    return jobID, outcome, err
}

// process runs one attempt and records the job's end state. The job row is written
// even when ctx was cancelled mid-attempt.
func process(ctx context.Context, repo ports.JobRepository, capturer ports.Capturer, jobID string, req domain.CaptureRequest) (domain.CaptureOutcome, error) {
    outcome, err := capturer.Run(ctx, req)
    done := context.WithoutCancel(ctx)
    if err != nil {
        if merr := repo.MarkFailed(done, jobID, domain.Sanitize(err)); merr != nil {
            log.Printf("capturerunner: mark failed %s: %v", jobID, merr)
        }
        return outcome, err
    }
    if merr := repo.MarkCompleted(done, jobID, outcome); merr != nil {
        log.Printf("capturerunner: mark completed %s: %v", jobID, merr)
    }
    return outcome, nil
}
