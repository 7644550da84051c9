package sqlite

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"

    "gorm.io/gorm"

    "juscapture/internal/domain"
)

func (s *Store) InsertRawLog(ctx context.Context, l domain.RawCaptureLog) error {
    params, err := json.Marshal(l.RequestParams)
    if err != nil {
        return err
    }
    row := rawLogRow{
        ID:            l.ID,
        CaptureLogID:  l.CaptureLogID,
        CaptureType:   string(l.CaptureType),
        LawyerID:      l.LawyerID,
        CredentialID:  l.CredentialID,
        Tribunal:      l.Tribunal,
        Level:         string(l.Level),
        Status:        string(l.Status),
        RequestParams: string(params),
        ErrorDetail:   l.ErrorDetail,
        CreatedAt:     l.CreatedAt.UTC(),
        UpdatedAt:     l.UpdatedAt.UTC(),
    }
    if row.Status == "" {
        row.Status = string(domain.StatusPending)
    }
    if row.CreatedAt.IsZero() {
        row.CreatedAt = s.now()
        row.UpdatedAt = row.CreatedAt
    }
    if len(l.RawPayload) > 0 {
        p := string(l.RawPayload)
        row.RawPayload = &p
    }
    if l.ProcessedSummary != nil {
        b, err := json.Marshal(l.ProcessedSummary)
        if err != nil {
            return err
        }
        sum := string(b)
        row.ProcessedSummary = &sum
    }
    return mapErr(s.db.WithContext(ctx).Create(&row).Error)
}

// FinalizeRawLog only touches status, summary and error detail, and only while pending.
func (s *Store) FinalizeRawLog(ctx context.Context, id string, status domain.CaptureStatus, summary *domain.ProcessedSummary, errorDetail string) error {
    if !status.Terminal() {
        return &domain.ValidationError{Field: "status", Reason: "finalize needs a terminal status"}
    }
    updates := map[string]any{
        "status":       string(status),
        "error_detail": errorDetail,
        "updated_at":   s.now(),
    }
    if summary != nil {
        b, err := json.Marshal(summary)
        if err != nil {
            return err
        }
        updates["processed_summary"] = string(b)
    }
    res := s.db.WithContext(ctx).Model(&rawLogRow{}).
        Where("id = ? AND status = ?", id, string(domain.StatusPending)).
        Updates(updates)
    if res.Error != nil {
        return mapErr(res.Error)
    }
    if res.RowsAffected == 1 {
        return nil
    }
    var n int64
    if err := s.db.WithContext(ctx).Model(&rawLogRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
        return err
    }
    if n == 0 {
        return domain.ErrNotFound
    }
    return domain.ErrRawLogFinal
}

func (s *Store) GetRawLog(ctx context.Context, id string) (domain.RawCaptureLog, error) {
    var row rawLogRow
    if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
        return domain.RawCaptureLog{}, mapErr(err)
    }
    return row.toDomain(true)
}

func (s *Store) ListRawLogs(ctx context.Context, f domain.RawLogFilter) ([]domain.RawCaptureLog, error) {
    q := s.db.WithContext(ctx).Model(&rawLogRow{}).Omit("raw_payload")
    if f.CaptureType != "" {
        q = q.Where("capture_type = ?", string(f.CaptureType))
    }
    if f.Status != "" {
        q = q.Where("status = ?", string(f.Status))
    }
    if f.Tribunal != "" {
        q = q.Where("tribunal = ?", f.Tribunal)
    }
    if f.LawyerID != "" {
        q = q.Where("lawyer_id = ?", f.LawyerID)
    }
    limit := f.Limit
    if limit <= 0 {
        limit = 50
    }
    var rows []rawLogRow
    if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
        return nil, err
    }
    out := make([]domain.RawCaptureLog, 0, len(rows))
    for _, r := range rows {
        l, err := r.toDomain(false)
        if err != nil {
            return nil, err
        }
        out = append(out, l)
    }
    return out, nil
}

func (r rawLogRow) toDomain(withPayload bool) (domain.RawCaptureLog, error) {
    l := domain.RawCaptureLog{
        ID:           r.ID,
        CaptureLogID: r.CaptureLogID,
        CaptureType:  domain.CaptureType(r.CaptureType),
        LawyerID:     r.LawyerID,
        CredentialID: r.CredentialID,
        Tribunal:     r.Tribunal,
        Level:        domain.InstanceLevel(r.Level),
        Status:       domain.CaptureStatus(r.Status),
        ErrorDetail:  r.ErrorDetail,
        CreatedAt:    r.CreatedAt,
        UpdatedAt:    r.UpdatedAt,
    }
    if r.RequestParams != "" {
        if err := json.Unmarshal([]byte(r.RequestParams), &l.RequestParams); err != nil {
            return l, fmt.Errorf("decode request params of %s: %w", r.ID, err)
        }
    }
    if withPayload && r.RawPayload != nil {
        l.RawPayload = json.RawMessage(*r.RawPayload)
    }
    if r.ProcessedSummary != nil {
        var sum domain.ProcessedSummary
        if err := json.Unmarshal([]byte(*r.ProcessedSummary), &sum); err != nil {
            return l, fmt.Errorf("decode summary of %s: %w", r.ID, err)
        }
        l.ProcessedSummary = &sum
    }
    return l, nil
}

func (s *Store) CreateCaptureLog(ctx context.Context, l domain.CaptureLog) (int64, error) {
    row := captureLogRow{
        CaptureType: string(l.CaptureType),
        LawyerID:    l.LawyerID,
        Tribunal:    l.Tribunal,
        Level:       string(l.Level),
        Status:      string(l.Status),
        StartedAt:   l.StartedAt.UTC(),
    }
    if row.Status == "" {
        row.Status = string(domain.StatusPending)
    }
    if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
        return 0, mapErr(err)
    }
    return row.ID, nil
}

func (s *Store) CompleteCaptureLog(ctx context.Context, id int64, status domain.CaptureStatus, sum domain.PersistenceSummary) error {
    now := s.now()
    res := s.db.WithContext(ctx).Model(&captureLogRow{}).Where("id = ?", id).Updates(map[string]any{
        "status":      string(status),
        "total":       sum.Total,
        "created":     sum.Created,
        "updated":     sum.Updated,
        "errors":      sum.Errors,
        "finished_at": &now,
    })
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return domain.ErrNotFound
    }
    return nil
}

// GetCaptureLog is used by tests and the CLI.
func (s *Store) GetCaptureLog(ctx context.Context, id int64) (domain.CaptureLog, error) {
    var row captureLogRow
    err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return domain.CaptureLog{}, domain.ErrNotFound
    }
    if err != nil {
        return domain.CaptureLog{}, err
    }
    return domain.CaptureLog{
        ID:          row.ID,
        CaptureType: domain.CaptureType(row.CaptureType),
        LawyerID:    row.LawyerID,
        Tribunal:    row.Tribunal,
        Level:       domain.InstanceLevel(row.Level),
        Status:      domain.CaptureStatus(row.Status),
        Summary:     domain.PersistenceSummary{Total: row.Total, Created: row.Created, Updated: row.Updated, Errors: row.Errors},
        StartedAt:   row.StartedAt,
        FinishedAt:  row.FinishedAt,
    }, nil
}
