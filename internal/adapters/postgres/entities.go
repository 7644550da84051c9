package postgres

import (
    "context"
    "fmt"
    "time"

    "juscapture/internal/domain"
)

// Upserts merge on natural_key. Text columns keep their stored value when the incoming
// one is empty; nullable columns keep theirs when the incoming one is NULL. xmax is zero
// only on the row version an INSERT produced, which is how created is told from updated.

func (db *DB) upsert(ctx context.Context, key, q string, args ...any) (domain.UpsertResult, error) {
    if key == "" {
        return domain.UpsertResult{}, &domain.ValidationError{Field: "naturalKey", Reason: "required"}
    }
    var res domain.UpsertResult
    err := db.Pool.QueryRow(ctx, q, args...).Scan(&res.ID, &res.Created)
    return res, mapErr(err)
}

func utc(t *time.Time) *time.Time {
    if t == nil {
        return nil
    }
    u := t.UTC()
    return &u
}

func (db *DB) UpsertProcess(ctx context.Context, p domain.Process) (domain.UpsertResult, error) {
    return db.upsert(ctx, p.NaturalKey, `
        INSERT INTO processes AS t (natural_key, number, tribunal, level, portal_id, class, court, subject,
                                    filed_at, archived, confidential)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (natural_key) DO UPDATE SET
            number       = COALESCE(NULLIF(EXCLUDED.number, ''), t.number),
            tribunal     = COALESCE(NULLIF(EXCLUDED.tribunal, ''), t.tribunal),
            level        = COALESCE(NULLIF(EXCLUDED.level, ''), t.level),
            portal_id    = COALESCE(NULLIF(EXCLUDED.portal_id, 0), t.portal_id),
            class        = COALESCE(NULLIF(EXCLUDED.class, ''), t.class),
            court        = COALESCE(NULLIF(EXCLUDED.court, ''), t.court),
            subject      = COALESCE(NULLIF(EXCLUDED.subject, ''), t.subject),
            filed_at     = COALESCE(EXCLUDED.filed_at, t.filed_at),
            archived     = COALESCE(EXCLUDED.archived, t.archived),
            confidential = t.confidential OR EXCLUDED.confidential,
            updated_at   = now()
        RETURNING id, (xmax = 0)
    `, p.NaturalKey, p.Number, p.Tribunal, string(p.Level), p.PortalID, p.Class, p.Court, p.Subject,
        utc(p.FiledAt), p.Archived, p.Confidential)
}

func (db *DB) UpsertHearing(ctx context.Context, h domain.Hearing) (domain.UpsertResult, error) {
    return db.upsert(ctx, h.NaturalKey, `
        INSERT INTO hearings AS t (natural_key, process_id, portal_id, starts_at, ends_at, type, room, status, url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (natural_key) DO UPDATE SET
            process_id = COALESCE(NULLIF(EXCLUDED.process_id, 0), t.process_id),
            portal_id  = COALESCE(NULLIF(EXCLUDED.portal_id, 0), t.portal_id),
            ends_at    = COALESCE(EXCLUDED.ends_at, t.ends_at),
            type       = COALESCE(NULLIF(EXCLUDED.type, ''), t.type),
            room       = COALESCE(NULLIF(EXCLUDED.room, ''), t.room),
            status     = COALESCE(NULLIF(EXCLUDED.status, ''), t.status),
            url        = COALESCE(NULLIF(EXCLUDED.url, ''), t.url),
            updated_at = now()
        RETURNING id, (xmax = 0)
    `, h.NaturalKey, h.ProcessID, h.PortalID, h.StartsAt.UTC(), utc(h.EndsAt), h.Type, h.Room, h.Status, h.URL)
}

func (db *DB) UpsertPendingItem(ctx context.Context, p domain.PendingItem) (domain.UpsertResult, error) {
    return db.upsert(ctx, p.NaturalKey, `
        INSERT INTO pending_items AS t (natural_key, process_id, portal_item_id, kind, acknowledged_at, due_at, deadline_days)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (natural_key) DO UPDATE SET
            process_id      = COALESCE(NULLIF(EXCLUDED.process_id, 0), t.process_id),
            portal_item_id  = COALESCE(NULLIF(EXCLUDED.portal_item_id, 0), t.portal_item_id),
            kind            = COALESCE(NULLIF(EXCLUDED.kind, ''), t.kind),
            acknowledged_at = COALESCE(EXCLUDED.acknowledged_at, t.acknowledged_at),
            due_at          = COALESCE(EXCLUDED.due_at, t.due_at),
            deadline_days   = COALESCE(NULLIF(EXCLUDED.deadline_days, 0), t.deadline_days),
            updated_at      = now()
        RETURNING id, (xmax = 0)
    `, p.NaturalKey, p.ProcessID, p.PortalItemID, p.Kind, utc(p.AcknowledgedAt), utc(p.DueAt), p.DeadlineDays)
}

func (db *DB) UpsertParty(ctx context.Context, p domain.Party) (domain.UpsertResult, error) {
    return db.upsert(ctx, p.NaturalKey, `
        INSERT INTO parties AS t (natural_key, name, document_type, document, person_type)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (natural_key) DO UPDATE SET
            name          = COALESCE(NULLIF(EXCLUDED.name, ''), t.name),
            document_type = COALESCE(NULLIF(EXCLUDED.document_type, ''), t.document_type),
            document      = COALESCE(NULLIF(EXCLUDED.document, ''), t.document),
            person_type   = COALESCE(NULLIF(EXCLUDED.person_type, ''), t.person_type),
            updated_at    = now()
        RETURNING id, (xmax = 0)
    `, p.NaturalKey, p.Name, p.DocumentType, p.Document, p.PersonType)
}

func (db *DB) UpsertAddress(ctx context.Context, a domain.Address) (domain.UpsertResult, error) {
    return db.upsert(ctx, a.NaturalKey, `
        INSERT INTO addresses AS t (natural_key, party_id, street, number, complement, district, city, state, postal_code)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (natural_key) DO UPDATE SET
            party_id    = COALESCE(NULLIF(EXCLUDED.party_id, 0), t.party_id),
            street      = COALESCE(NULLIF(EXCLUDED.street, ''), t.street),
            number      = COALESCE(NULLIF(EXCLUDED.number, ''), t.number),
            complement  = COALESCE(NULLIF(EXCLUDED.complement, ''), t.complement),
            district    = COALESCE(NULLIF(EXCLUDED.district, ''), t.district),
            city        = COALESCE(NULLIF(EXCLUDED.city, ''), t.city),
            state       = COALESCE(NULLIF(EXCLUDED.state, ''), t.state),
            postal_code = COALESCE(NULLIF(EXCLUDED.postal_code, ''), t.postal_code),
            updated_at  = now()
        RETURNING id, (xmax = 0)
    `, a.NaturalKey, a.PartyID, a.Street, a.Number, a.Complement, a.District, a.City, a.State, a.PostalCode)
}

func (db *DB) UpsertRepresentative(ctx context.Context, r domain.Representative) (domain.UpsertResult, error) {
    return db.upsert(ctx, r.NaturalKey, `
        INSERT INTO representatives AS t (natural_key, name, document, oab, kind)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (natural_key) DO UPDATE SET
            name       = COALESCE(NULLIF(EXCLUDED.name, ''), t.name),
            document   = COALESCE(NULLIF(EXCLUDED.document, ''), t.document),
            oab        = COALESCE(NULLIF(EXCLUDED.oab, ''), t.oab),
            kind       = COALESCE(NULLIF(EXCLUDED.kind, ''), t.kind),
            updated_at = now()
        RETURNING id, (xmax = 0)
    `, r.NaturalKey, r.Name, r.Document, r.OAB, r.Kind)
}

func (db *DB) UpsertTimelineEntry(ctx context.Context, e domain.TimelineEntry) (domain.UpsertResult, error) {
    return db.upsert(ctx, e.NaturalKey, `
        INSERT INTO timeline_entries AS t (natural_key, process_id, instance, occurred_at, kind, title, document_id, content_hash)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (natural_key) DO UPDATE SET
            process_id   = COALESCE(NULLIF(EXCLUDED.process_id, 0), t.process_id),
            instance     = COALESCE(NULLIF(EXCLUDED.instance, ''), t.instance),
            kind         = COALESCE(NULLIF(EXCLUDED.kind, ''), t.kind),
            title        = COALESCE(NULLIF(EXCLUDED.title, ''), t.title),
            document_id  = COALESCE(NULLIF(EXCLUDED.document_id, 0), t.document_id),
            content_hash = COALESCE(NULLIF(EXCLUDED.content_hash, ''), t.content_hash),
            updated_at   = now()
        RETURNING id, (xmax = 0)
    `, e.NaturalKey, e.ProcessID, string(e.Instance), e.OccurredAt.UTC(), e.Kind, e.Title, e.DocumentID, e.ContentHash)
}

func (db *DB) LinkProcessParty(ctx context.Context, l domain.ProcessParty) error {
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO process_parties (process_id, party_id, pole, role)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (process_id, party_id, pole) DO UPDATE SET
            role = COALESCE(NULLIF(EXCLUDED.role, ''), process_parties.role),
            updated_at = now()
    `, l.ProcessID, l.PartyID, string(l.Pole), l.Role)
    return mapErr(err)
}

func (db *DB) LinkRepresentation(ctx context.Context, l domain.Representation) error {
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO party_representatives (process_id, party_id, representative_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (process_id, party_id, representative_id) DO UPDATE SET updated_at = now()
    `, l.ProcessID, l.PartyID, l.RepresentativeID)
    return mapErr(err)
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

func (db *DB) LookupEntity(ctx context.Context, kind domain.ElementKind, key string) (int64, bool, error) {
    table, err := tableFor(kind)
    if err != nil {
        return 0, false, err
    }
    var id int64
    err = db.Pool.QueryRow(ctx, `SELECT id FROM `+table+` WHERE natural_key = $1`, key).Scan(&id)
    if err = mapErr(err); err == domain.ErrNotFound {
        return 0, false, nil
    }
    return id, err == nil, err
}

func (db *DB) EntityKey(ctx context.Context, kind domain.ElementKind, id int64) (string, bool, error) {
    table, err := tableFor(kind)
    if err != nil {
        return "", false, err
    }
    var key string
    err = db.Pool.QueryRow(ctx, `SELECT natural_key FROM `+table+` WHERE id = $1`, id).Scan(&key)
    if err = mapErr(err); err == domain.ErrNotFound {
        return "", false, nil
    }
    return key, err == nil, err
}
