package ports

import (
    "context"

    "juscapture/internal/domain"
)

// JobRepository supports queuing, claiming and completing capture jobs.
type JobRepository interface {
    EnqueueJob(ctx context.Context, req domain.CaptureRequest) (jobID string, err error)
    ClaimNext(ctx context.Context) (job domain.CaptureJob, found bool, err error)
    // StartJob records a job that runs inline, already in the running state.
    StartJob(ctx context.Context, req domain.CaptureRequest) (jobID string, err error)
    MarkCompleted(ctx context.Context, jobID string, outcome domain.CaptureOutcome) error
    MarkFailed(ctx context.Context, jobID string, reason string) error
    GetJob(ctx context.Context, jobID string) (domain.CaptureJob, error)
}
