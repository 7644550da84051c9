package capture

import (
    "context"

    "juscapture/internal/domain"
    "juscapture/internal/ports"
)

// Service queues capture requests for the background workers.
type Service struct {
    jobs ports.JobRepository
}

func New(jobs ports.JobRepository) *Service {
    return &Service{jobs: jobs}
}

func (s *Service) Enqueue(ctx context.Context, req domain.CaptureRequest) (string, error) {
    if err := req.Validate(); err != nil {
        return "", err
    }
    req.Tribunal = domain.NormalizeTribunal(req.Tribunal)
    return s.jobs.EnqueueJob(ctx, req)
}

func (s *Service) Job(ctx context.Context, jobID string) (domain.CaptureJob, error) {
    return s.jobs.GetJob(ctx, jobID)
}
