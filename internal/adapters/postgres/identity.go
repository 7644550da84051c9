package postgres

import (
    "context"
    "encoding/json"

    "juscapture/internal/domain"
)

func (db *DB) FindMapping(ctx context.Context, k domain.IdentityKey) (domain.IdentityMapping, bool, error) {
    var (
        m     = domain.IdentityMapping{EntityType: k.EntityType, PortalPersonID: k.PortalPersonID, System: k.System, Tribunal: k.Tribunal, Level: k.Level}
        extra []byte
    )
    err := db.Pool.QueryRow(ctx, `
        SELECT id, entity_id, extra_data, created_at FROM identity_mappings
        WHERE entity_type = $1 AND portal_person_id = $2 AND system = $3 AND tribunal = $4 AND level = $5
    `, string(k.EntityType), k.PortalPersonID, k.System, k.Tribunal, string(k.Level)).Scan(&m.ID, &m.EntityID, &extra, &m.CreatedAt)
    if err = mapErr(err); err == domain.ErrNotFound {
        return domain.IdentityMapping{}, false, nil
    }
    if err != nil {
        return domain.IdentityMapping{}, false, err
    }
    if len(extra) > 0 {
        _ = json.Unmarshal(extra, &m.ExtraData)
    }
    return m, true, nil
}

func (db *DB) CreateMapping(ctx context.Context, m domain.IdentityMapping) (domain.IdentityMapping, error) {
    var extra []byte
    if len(m.ExtraData) > 0 {
        var err error
        if extra, err = json.Marshal(m.ExtraData); err != nil {
            return m, err
        }
    }
    err := db.Pool.QueryRow(ctx, `
        INSERT INTO identity_mappings (entity_type, portal_person_id, system, tribunal, level, entity_id, extra_data)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `, string(m.EntityType), m.PortalPersonID, m.System, m.Tribunal, string(m.Level), m.EntityID, extra).Scan(&m.ID, &m.CreatedAt)
    return m, mapErr(err)
}
