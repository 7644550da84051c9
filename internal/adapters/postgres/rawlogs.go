package postgres

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"

    "github.com/jackc/pgx/v5"

    "juscapture/internal/domain"
)

func (db *DB) InsertRawLog(ctx context.Context, l domain.RawCaptureLog) error {
    params, err := json.Marshal(l.RequestParams)
    if err != nil {
        return err
    }
    var summary []byte
    if l.ProcessedSummary != nil {
        if summary, err = json.Marshal(l.ProcessedSummary); err != nil {
            return err
        }
    }
    var payload []byte
    if len(l.RawPayload) > 0 {
        payload = l.RawPayload
    }
    status := l.Status
    if status == "" {
        status = domain.StatusPending
    }
    _, err = db.Pool.Exec(ctx, `
        INSERT INTO raw_capture_logs (id, capture_log_id, capture_type, lawyer_id, credential_id, tribunal, level,
                                      status, request_params, raw_payload, processed_summary, error_detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, l.ID, l.CaptureLogID, string(l.CaptureType), l.LawyerID, l.CredentialID, l.Tribunal, string(l.Level),
        string(status), params, payload, summary, l.ErrorDetail)
    return mapErr(err)
}

// FinalizeRawLog moves a pending entry to a terminal status. The guard trigger rejects
// anything else, so the WHERE clause only decides between not found and already final.
func (db *DB) FinalizeRawLog(ctx context.Context, id string, status domain.CaptureStatus, summary *domain.ProcessedSummary, errorDetail string) error {
    if !status.Terminal() {
        return &domain.ValidationError{Field: "status", Reason: "finalize needs a terminal status"}
    }
    var sum []byte
    if summary != nil {
        var err error
        if sum, err = json.Marshal(summary); err != nil {
            return err
        }
    }
    tag, err := db.Pool.Exec(ctx, `
        UPDATE raw_capture_logs
        SET status = $2, processed_summary = COALESCE($3, processed_summary), error_detail = $4, updated_at = now()
        WHERE id = $1 AND status = 'pending'
    `, id, string(status), sum, errorDetail)
    if err != nil {
        return mapErr(err)
    }
    if tag.RowsAffected() == 1 {
        return nil
    }
    var exists bool
    if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM raw_capture_logs WHERE id = $1)`, id).Scan(&exists); err != nil {
        return err
    }
    if !exists {
        return domain.ErrNotFound
    }
    return domain.ErrRawLogFinal
}

const rawLogColumns = `id, capture_log_id, capture_type, lawyer_id, credential_id, tribunal, level, status,
    request_params, processed_summary, error_detail, created_at, updated_at`

func (db *DB) GetRawLog(ctx context.Context, id string) (domain.RawCaptureLog, error) {
    row := db.Pool.QueryRow(ctx, `SELECT `+rawLogColumns+`, raw_payload FROM raw_capture_logs WHERE id = $1`, id)
    var payload []byte
    l, err := scanRawLog(row, &payload)
    if err != nil {
        return l, mapErr(err)
    }
    if len(payload) > 0 {
        l.RawPayload = json.RawMessage(payload)
    }
    return l, nil
}

func (db *DB) ListRawLogs(ctx context.Context, f domain.RawLogFilter) ([]domain.RawCaptureLog, error) {
    var (
        where []string
        args  []any
    )
    add := func(cond string, v any) {
        args = append(args, v)
        where = append(where, fmt.Sprintf(cond, len(args)))
    }
    if f.CaptureType != "" {
        add("capture_type = $%d", string(f.CaptureType))
    }
    if f.Status != "" {
        add("status = $%d", string(f.Status))
    }
    if f.Tribunal != "" {
        add("tribunal = $%d", f.Tribunal)
    }
    if f.LawyerID != "" {
        add("lawyer_id = $%d", f.LawyerID)
    }
    limit := f.Limit
    if limit <= 0 {
        limit = 50
    }
    q := `SELECT ` + rawLogColumns + ` FROM raw_capture_logs`
    if len(where) > 0 {
        q += ` WHERE ` + strings.Join(where, " AND ")
    }
    args = append(args, limit)
    q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

    rows, err := db.Pool.Query(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []domain.RawCaptureLog
    for rows.Next() {
        l, err := scanRawLog(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, l)
    }
    return out, rows.Err()
}

func scanRawLog(row pgx.Row, extra ...any) (domain.RawCaptureLog, error) {
    var (
        l                         domain.RawCaptureLog
        captureType, level, state string
        params, summary           []byte
    )
    dest := []any{&l.ID, &l.CaptureLogID, &captureType, &l.LawyerID, &l.CredentialID, &l.Tribunal, &level, &state,
        &params, &summary, &l.ErrorDetail, &l.CreatedAt, &l.UpdatedAt}
    if err := row.Scan(append(dest, extra...)...); err != nil {
        return l, err
    }
    l.CaptureType = domain.CaptureType(captureType)
    l.Level = domain.InstanceLevel(level)
    l.Status = domain.CaptureStatus(state)
    if len(params) > 0 {
        if err := json.Unmarshal(params, &l.RequestParams); err != nil {
            return l, fmt.Errorf("decode request params of %s: %w", l.ID, err)
        }
    }
    if len(summary) > 0 {
        var sum domain.ProcessedSummary
        if err := json.Unmarshal(summary, &sum); err != nil {
            return l, fmt.Errorf("decode summary of %s: %w", l.ID, err)
        }
        l.ProcessedSummary = &sum
    }
    return l, nil
}

func (db *DB) CreateCaptureLog(ctx context.Context, l domain.CaptureLog) (int64, error) {
    status := l.Status
    if status == "" {
        status = domain.StatusPending
    }
    var id int64
    err := db.Pool.QueryRow(ctx, `
        INSERT INTO capture_logs (capture_type, lawyer_id, tribunal, level, status, started_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `, string(l.CaptureType), l.LawyerID, l.Tribunal, string(l.Level), string(status), l.StartedAt.UTC()).Scan(&id)
    return id, mapErr(err)
}

func (db *DB) CompleteCaptureLog(ctx context.Context, id int64, status domain.CaptureStatus, sum domain.PersistenceSummary) error {
    tag, err := db.Pool.Exec(ctx, `
        UPDATE capture_logs
        SET status = $2, total = $3, created = $4, updated = $5, errors = $6, finished_at = now()
        WHERE id = $1
    `, id, string(status), sum.Total, sum.Created, sum.Updated, sum.Errors)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return domain.ErrNotFound
    }
    return nil
}
