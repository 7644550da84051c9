package sqlite

import (
    "context"
    "errors"
    "fmt"

    "gorm.io/gorm"
    "gorm.io/gorm/clause"

    "juscapture/internal/domain"
)

type entityRow interface {
    rowID() int64
}

func (r *processRow) rowID() int64        { return r.ID }
func (r *hearingRow) rowID() int64        { return r.ID }
func (r *pendingRow) rowID() int64        { return r.ID }
func (r *partyRow) rowID() int64          { return r.ID }
func (r *addressRow) rowID() int64        { return r.ID }
func (r *representativeRow) rowID() int64 { return r.ID }
func (r *timelineRow) rowID() int64       { return r.ID }

// upsert inserts fresh or merges it into the row with the same natural key. merge copies
// the non-empty fields of fresh onto the stored row; Save bumps updated_at.
func upsert[T any, PT interface {
    *T
    entityRow
}](ctx context.Context, db *gorm.DB, key string, fresh PT, merge func(stored PT)) (domain.UpsertResult, error) {
    if key == "" {
        return domain.UpsertResult{}, &domain.ValidationError{Field: "naturalKey", Reason: "required"}
    }
    var res domain.UpsertResult
    err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        stored := PT(new(T))
        err := tx.Where("natural_key = ?", key).First(stored).Error
        if errors.Is(err, gorm.ErrRecordNotFound) {
            if err := tx.Create(fresh).Error; err != nil {
                return err
            }
            res = domain.UpsertResult{ID: fresh.rowID(), Created: true}
            return nil
        }
        if err != nil {
            return err
        }
        merge(stored)
        if err := tx.Save(stored).Error; err != nil {
            return err
        }
        res = domain.UpsertResult{ID: stored.rowID()}
        return nil
    })
    return res, mapErr(err)
}

func (s *Store) UpsertProcess(ctx context.Context, p domain.Process) (domain.UpsertResult, error) {
    fresh := &processRow{
        NaturalKey:   p.NaturalKey,
        Number:       p.Number,
        Tribunal:     p.Tribunal,
        Level:        string(p.Level),
        PortalID:     p.PortalID,
        Class:        p.Class,
        Court:        p.Court,
        Subject:      p.Subject,
        FiledAt:      utcPtr(p.FiledAt),
        Archived:     p.Archived,
        Confidential: p.Confidential,
    }
    return upsert(ctx, s.db, p.NaturalKey, fresh, func(r *processRow) {
        keep(&r.Number, p.Number)
        keep(&r.Tribunal, p.Tribunal)
        keep(&r.Level, string(p.Level))
        keepInt(&r.PortalID, p.PortalID)
        keep(&r.Class, p.Class)
        keep(&r.Court, p.Court)
        keep(&r.Subject, p.Subject)
        keepTime(&r.FiledAt, p.FiledAt)
        if p.Archived != nil {
            r.Archived = p.Archived
        }
        r.Confidential = r.Confidential || p.Confidential
    })
}

func (s *Store) UpsertHearing(ctx context.Context, h domain.Hearing) (domain.UpsertResult, error) {
    fresh := &hearingRow{
        NaturalKey: h.NaturalKey,
        ProcessID:  h.ProcessID,
        PortalID:   h.PortalID,
        StartsAt:   h.StartsAt.UTC(),
        EndsAt:     utcPtr(h.EndsAt),
        Type:       h.Type,
        Room:       h.Room,
        Status:     h.Status,
        URL:        h.URL,
    }
    return upsert(ctx, s.db, h.NaturalKey, fresh, func(r *hearingRow) {
        keepInt(&r.ProcessID, h.ProcessID)
        keepInt(&r.PortalID, h.PortalID)
        keepTime(&r.EndsAt, h.EndsAt)
        keep(&r.Type, h.Type)
        keep(&r.Room, h.Room)
        keep(&r.Status, h.Status)
        keep(&r.URL, h.URL)
    })
}

func (s *Store) UpsertPendingItem(ctx context.Context, p domain.PendingItem) (domain.UpsertResult, error) {
    fresh := &pendingRow{
        NaturalKey:     p.NaturalKey,
        ProcessID:      p.ProcessID,
        PortalItemID:   p.PortalItemID,
        Kind:           p.Kind,
        AcknowledgedAt: utcPtr(p.AcknowledgedAt),
        DueAt:          utcPtr(p.DueAt),
        DeadlineDays:   p.DeadlineDays,
    }
    return upsert(ctx, s.db, p.NaturalKey, fresh, func(r *pendingRow) {
        keepInt(&r.ProcessID, p.ProcessID)
        keepInt(&r.PortalItemID, p.PortalItemID)
        keep(&r.Kind, p.Kind)
        keepTime(&r.AcknowledgedAt, p.AcknowledgedAt)
        keepTime(&r.DueAt, p.DueAt)
        if p.DeadlineDays != 0 {
            r.DeadlineDays = p.DeadlineDays
        }
    })
}

func (s *Store) UpsertParty(ctx context.Context, p domain.Party) (domain.UpsertResult, error) {
    fresh := &partyRow{
        NaturalKey:   p.NaturalKey,
        Name:         p.Name,
        DocumentType: p.DocumentType,
        Document:     p.Document,
        PersonType:   p.PersonType,
    }
    return upsert(ctx, s.db, p.NaturalKey, fresh, func(r *partyRow) {
        keep(&r.Name, p.Name)
        keep(&r.DocumentType, p.DocumentType)
        keep(&r.Document, p.Document)
        keep(&r.PersonType, p.PersonType)
    })
}

func (s *Store) UpsertAddress(ctx context.Context, a domain.Address) (domain.UpsertResult, error) {
    fresh := &addressRow{
        NaturalKey: a.NaturalKey,
        PartyID:    a.PartyID,
        Street:     a.Street,
        Number:     a.Number,
        Complement: a.Complement,
        District:   a.District,
        City:       a.City,
        State:      a.State,
        PostalCode: a.PostalCode,
    }
    return upsert(ctx, s.db, a.NaturalKey, fresh, func(r *addressRow) {
        keepInt(&r.PartyID, a.PartyID)
        keep(&r.Street, a.Street)
        keep(&r.Number, a.Number)
        keep(&r.Complement, a.Complement)
        keep(&r.District, a.District)
        keep(&r.City, a.City)
        keep(&r.State, a.State)
        keep(&r.PostalCode, a.PostalCode)
    })
}

func (s *Store) UpsertRepresentative(ctx context.Context, rep domain.Representative) (domain.UpsertResult, error) {
    fresh := &representativeRow{
        NaturalKey: rep.NaturalKey,
        Name:       rep.Name,
        Document:   rep.Document,
        OAB:        rep.OAB,
        Kind:       rep.Kind,
    }
    return upsert(ctx, s.db, rep.NaturalKey, fresh, func(r *representativeRow) {
        keep(&r.Name, rep.Name)
        keep(&r.Document, rep.Document)
        keep(&r.OAB, rep.OAB)
        keep(&r.Kind, rep.Kind)
    })
}

func (s *Store) UpsertTimelineEntry(ctx context.Context, e domain.TimelineEntry) (domain.UpsertResult, error) {
    fresh := &timelineRow{
        NaturalKey:  e.NaturalKey,
        ProcessID:   e.ProcessID,
        Instance:    string(e.Instance),
        OccurredAt:  e.OccurredAt.UTC(),
        Kind:        e.Kind,
        Title:       e.Title,
        DocumentID:  e.DocumentID,
        ContentHash: e.ContentHash,
    }
    return upsert(ctx, s.db, e.NaturalKey, fresh, func(r *timelineRow) {
        keepInt(&r.ProcessID, e.ProcessID)
        keep(&r.Instance, string(e.Instance))
        keep(&r.Kind, e.Kind)
        keep(&r.Title, e.Title)
        keepInt(&r.DocumentID, e.DocumentID)
        keep(&r.ContentHash, e.ContentHash)
    })
}

func (s *Store) LinkProcessParty(ctx context.Context, l domain.ProcessParty) error {
    now := s.now()
    row := processPartyRow{ProcessID: l.ProcessID, PartyID: l.PartyID, Pole: string(l.Pole), Role: l.Role, CreatedAt: now, UpdatedAt: now}
    return mapErr(s.db.WithContext(ctx).Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "process_id"}, {Name: "party_id"}, {Name: "pole"}},
        DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
    }).Create(&row).Error)
}

func (s *Store) LinkRepresentation(ctx context.Context, l domain.Representation) error {
    now := s.now()
    row := representationRow{ProcessID: l.ProcessID, PartyID: l.PartyID, RepresentativeID: l.RepresentativeID, CreatedAt: now, UpdatedAt: now}
    return mapErr(s.db.WithContext(ctx).Clauses(clause.OnConflict{
        Columns:   []clause.Column{{Name: "process_id"}, {Name: "party_id"}, {Name: "representative_id"}},
        DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
    }).Create(&row).Error)
}

var entityTables = map[domain.ElementKind]string{
    domain.KindProcess:        "processes",
    domain.KindHearing:        "hearings",
    domain.KindPendingItem:    "pending_items",
    domain.KindParty:          "parties",
    domain.KindAddress:        "addresses",
    domain.KindRepresentative: "representatives",
    domain.KindTimelineEntry:  "timeline_entries",
}

func tableFor(kind domain.ElementKind) (string, error) {
    t, ok := entityTables[kind]
    if !ok {
        return "", fmt.Errorf("unknown element kind %q", kind)
    }
    return t, nil
}

func (s *Store) LookupEntity(ctx context.Context, kind domain.ElementKind, key string) (int64, bool, error) {
    table, err := tableFor(kind)
    if err != nil {
        return 0, false, err
    }
    var ids []int64
    if err := s.db.WithContext(ctx).Table(table).Where("natural_key = ?", key).Limit(1).Pluck("id", &ids).Error; err != nil {
        return 0, false, err
    }
    if len(ids) == 0 {
        return 0, false, nil
    }
    return ids[0], true, nil
}

func (s *Store) EntityKey(ctx context.Context, kind domain.ElementKind, id int64) (string, bool, error) {
    table, err := tableFor(kind)
    if err != nil {
        return "", false, err
    }
    var keys []string
    if err := s.db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1).Pluck("natural_key", &keys).Error; err != nil {
        return "", false, err
    }
    if len(keys) == 0 {
        return "", false, nil
    }
    return keys[0], true, nil
}

// CountEntities reports the number of rows of a kind; tests use it to check idempotency.
func (s *Store) CountEntities(ctx context.Context, kind domain.ElementKind) (int64, error) {
    table, err := tableFor(kind)
    if err != nil {
        return 0, err
    }
    var n int64
    err = s.db.WithContext(ctx).Table(table).Count(&n).Error
    return n, err
}
