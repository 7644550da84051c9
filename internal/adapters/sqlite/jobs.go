package sqlite

import (
    "context"
    "errors"

    "gorm.io/gorm"

    "juscapture/internal/domain"
)

const (
    jobQueued    = "queued"
    jobRunning   = "running"
    jobCompleted = "completed"
    jobFailed    = "failed"
)

func jobFromRequest(req domain.CaptureRequest, status string) jobRow {
    row := jobRow{
        ID:          newID(),
        LawyerID:    req.LawyerID,
        Tribunal:    req.Tribunal,
        Level:       string(req.Level),
        CaptureType: string(req.Type),
        Status:      status,
    }
    if req.Range != nil {
        if !req.Range.From.IsZero() {
            f := req.Range.From.UTC()
            row.DateFrom = &f
        }
        if !req.Range.To.IsZero() {
            t := req.Range.To.UTC()
            row.DateTo = &t
        }
    }
    return row
}

func (r jobRow) toDomain() domain.CaptureJob {
    j := domain.CaptureJob{
        ID: r.ID,
        Request: domain.CaptureRequest{
            LawyerID: r.LawyerID,
            Tribunal: r.Tribunal,
            Level:    domain.InstanceLevel(r.Level),
            Type:     domain.CaptureType(r.CaptureType),
        },
        Status:        r.Status,
        Attempts:      r.Attempts,
        RawLogID:      r.RawLogID,
        OutcomeStatus: domain.CaptureStatus(r.OutcomeStatus),
        LastError:     r.LastError,
        QueuedAt:      r.QueuedAt,
        StartedAt:     r.StartedAt,
        FinishedAt:    r.FinishedAt,
    }
    if r.DateFrom != nil || r.DateTo != nil {
        j.Request.Range = &domain.DateRange{}
        if r.DateFrom != nil {
            j.Request.Range.From = *r.DateFrom
        }
        if r.DateTo != nil {
            j.Request.Range.To = *r.DateTo
        }
    }
    return j
}

func (s *Store) EnqueueJob(ctx context.Context, req domain.CaptureRequest) (string, error) {
    row := jobFromRequest(req, jobQueued)
    row.QueuedAt = s.now()
    if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
        return "", mapErr(err)
    }
    return row.ID, nil
}

func (s *Store) StartJob(ctx context.Context, req domain.CaptureRequest) (string, error) {
    row := jobFromRequest(req, jobRunning)
    now := s.now()
    row.QueuedAt = now
    row.StartedAt = &now
    row.Attempts = 1
    if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
        return "", mapErr(err)
    }
    return row.ID, nil
}

// ClaimNext moves the oldest queued job to running. The single connection serializes
// claimers, so the conditional update is enough to hand each job out once.
func (s *Store) ClaimNext(ctx context.Context) (domain.CaptureJob, bool, error) {
    var (
        job   domain.CaptureJob
        found bool
    )
    err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        var row jobRow
        err := tx.Where("status = ?", jobQueued).Order("queued_at").First(&row).Error
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil
        }
        if err != nil {
            return err
        }
        now := s.now()
        res := tx.Model(&jobRow{}).Where("id = ? AND status = ?", row.ID, jobQueued).Updates(map[string]any{
            "status":     jobRunning,
            "started_at": &now,
            "attempts":   gorm.Expr("attempts + 1"),
        })
        if res.Error != nil {
            return res.Error
        }
        if res.RowsAffected == 0 {
            return nil
        }
        row.Status = jobRunning
        row.StartedAt = &now
        row.Attempts++
        job, found = row.toDomain(), true
        return nil
    })
    return job, found, err
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string, outcome domain.CaptureOutcome) error {
    now := s.now()
    return s.finishJob(ctx, jobID, map[string]any{
        "status":         jobCompleted,
        "raw_log_id":     outcome.RawLogID,
        "outcome_status": string(outcome.Status),
        "last_error":     outcome.Message,
        "finished_at":    &now,
    })
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
    now := s.now()
    return s.finishJob(ctx, jobID, map[string]any{
        "status":      jobFailed,
        "last_error":  reason,
        "finished_at": &now,
    })
}

func (s *Store) finishJob(ctx context.Context, jobID string, updates map[string]any) error {
    res := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", jobID).Updates(updates)
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return domain.ErrNotFound
    }
    return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (domain.CaptureJob, error) {
    var row jobRow
    if err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error; err != nil {
        return domain.CaptureJob{}, mapErr(err)
    }
    return row.toDomain(), nil
}
