package postgres

import (
    "context"
    "errors"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"

    "juscapture/internal/domain"
)

const jobColumns = `id, lawyer_id, tribunal, level, capture_type, date_from, date_to, status, attempts,
    raw_log_id, outcome_status, last_error, queued_at, started_at, finished_at`

func rangeOf(req domain.CaptureRequest) (from, to *time.Time) {
    if req.Range == nil {
        return nil, nil
    }
    if !req.Range.From.IsZero() {
        f := req.Range.From.UTC()
        from = &f
    }
    if !req.Range.To.IsZero() {
        t := req.Range.To.UTC()
        to = &t
    }
    return from, to
}

func (db *DB) EnqueueJob(ctx context.Context, req domain.CaptureRequest) (string, error) {
    id := uuid.NewString()
    from, to := rangeOf(req)
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO capture_jobs (id, lawyer_id, tribunal, level, capture_type, date_from, date_to)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, id, req.LawyerID, req.Tribunal, string(req.Level), string(req.Type), from, to)
    return id, mapErr(err)
}

// StartJob records an inline job directly in the running state.
func (db *DB) StartJob(ctx context.Context, req domain.CaptureRequest) (string, error) {
    id := uuid.NewString()
    from, to := rangeOf(req)
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO capture_jobs (id, lawyer_id, tribunal, level, capture_type, date_from, date_to, status, attempts, started_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 'running', 1, now())
    `, id, req.LawyerID, req.Tribunal, string(req.Level), string(req.Type), from, to)
    return id, mapErr(err)
}

// ClaimNext selects the next queued job using SKIP LOCKED and marks it running.
func (db *DB) ClaimNext(ctx context.Context) (job domain.CaptureJob, found bool, err error) {
    err = db.inTx(ctx, func(tx pgx.Tx) error {
        var id string
        err := tx.QueryRow(ctx, `
            SELECT id FROM capture_jobs
            WHERE status = 'queued'
            ORDER BY queued_at
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        `).Scan(&id)
        if errors.Is(err, pgx.ErrNoRows) {
            return nil
        }
        if err != nil {
            return err
        }
        row := tx.QueryRow(ctx, `
            UPDATE capture_jobs SET status = 'running', started_at = now(), attempts = attempts + 1
            WHERE id = $1
            RETURNING `+jobColumns, id)
        if job, err = scanJob(row); err != nil {
            return err
        }
        found = true
        return nil
    })
    return job, found, err
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string, outcome domain.CaptureOutcome) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    tag, err := db.Pool.Exec(ctx, `
        UPDATE capture_jobs
        SET status = 'completed', raw_log_id = $2, outcome_status = $3, last_error = $4, finished_at = now()
        WHERE id = $1
    `, jobID, outcome.RawLogID, string(outcome.Status), outcome.Message)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return domain.ErrNotFound
    }
    return nil
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    tag, err := db.Pool.Exec(ctx, `
        UPDATE capture_jobs SET status = 'failed', last_error = $2, finished_at = now() WHERE id = $1
    `, jobID, reason)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return domain.ErrNotFound
    }
    return nil
}

func (db *DB) GetJob(ctx context.Context, jobID string) (domain.CaptureJob, error) {
    job, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM capture_jobs WHERE id = $1`, jobID))
    return job, mapErr(err)
}

func scanJob(row pgx.Row) (domain.CaptureJob, error) {
    var (
        j                                  domain.CaptureJob
        level, captureType, outcomeStatus string
        from, to                           *time.Time
    )
    err := row.Scan(&j.ID, &j.Request.LawyerID, &j.Request.Tribunal, &level, &captureType, &from, &to,
        &j.Status, &j.Attempts, &j.RawLogID, &outcomeStatus, &j.LastError, &j.QueuedAt, &j.StartedAt, &j.FinishedAt)
    if err != nil {
        return j, err
    }
    j.Request.Level = domain.InstanceLevel(level)
    j.Request.Type = domain.CaptureType(captureType)
    j.OutcomeStatus = domain.CaptureStatus(outcomeStatus)
    if from != nil || to != nil {
        j.Request.Range = &domain.DateRange{}
        if from != nil {
            j.Request.Range.From = *from
        }
        if to != nil {
            j.Request.Range.To = *to
        }
    }
    return j, nil
}
