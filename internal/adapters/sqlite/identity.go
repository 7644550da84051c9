package sqlite

import (
    "context"
    "encoding/json"
    "errors"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "juscapture/internal/domain"
)

func (s *Store) FindMapping(ctx context.Context, k domain.IdentityKey) (domain.IdentityMapping, bool, error) {
    var row identityRow
    err := s.db.WithContext(ctx).
        Where("entity_type = ? AND portal_person_id = ? AND system = ? AND tribunal = ? AND level = ?",
            string(k.EntityType), k.PortalPersonID, k.System, k.Tribunal, string(k.Level)).
        First(&row).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        return domain.IdentityMapping{}, false, nil
    }
    if err != nil {
        return domain.IdentityMapping{}, false, err
    }
    m := domain.IdentityMapping{
        ID:             row.ID,
        EntityType:     domain.ElementKind(row.EntityType),
        EntityID:       row.EntityID,
        PortalPersonID: row.PortalPersonID,
        System:         row.System,
        Tribunal:       row.Tribunal,
        Level:          domain.InstanceLevel(row.Level),
        CreatedAt:      row.CreatedAt,
    }
    if row.ExtraData != "" {
        _ = json.Unmarshal([]byte(row.ExtraData), &m.ExtraData)
    }
    return m, true, nil
}

func (s *Store) CreateMapping(ctx context.Context, m domain.IdentityMapping) (domain.IdentityMapping, error) {
    extra := ""
    if len(m.ExtraData) > 0 {
        b, err := json.Marshal(m.ExtraData)
        if err != nil {
            return m, err
        }
        extra = string(b)
    }
    row := identityRow{
        EntityType:     string(m.EntityType),
        PortalPersonID: m.PortalPersonID,
        System:         m.System,
        Tribunal:       m.Tribunal,
        Level:          string(m.Level),
        EntityID:       m.EntityID,
        ExtraData:      extra,
        CreatedAt:      s.now(),
    }
    if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
        return m, mapErr(err)
    }
    m.ID = row.ID
    m.CreatedAt = row.CreatedAt
    return m, nil
}

func (s *Store) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
    acquired := false
    err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        now := s.now()
        var row lockRow
        err := tx.Where("lock_key = ?", key).First(&row).Error
        if errors.Is(err, gorm.ErrRecordNotFound) {
            if err := tx.Create(&lockRow{Key: key, Owner: owner, ExpiresAt: now.Add(ttl)}).Error; err != nil {
                return err
            }
            acquired = true
            return nil
        }
        if err != nil {
            return err
        }
        if row.Owner != owner && now.Before(row.ExpiresAt) {
            return nil
        }
        res := tx.Model(&lockRow{}).
            Where("lock_key = ? AND owner = ?", key, row.Owner).
            Updates(map[string]any{"owner": owner, "expires_at": now.Add(ttl)})
        if res.Error != nil {
            return res.Error
        }
        acquired = res.RowsAffected == 1
        return nil
    })
    if errors.Is(mapErr(err), domain.ErrConflict) {
        return false, nil
    }
    return acquired, err
}

func (s *Store) Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
    res := s.db.WithContext(ctx).Model(&lockRow{}).
        Where("lock_key = ? AND owner = ?", key, owner).
        Update("expires_at", s.now().Add(ttl))
    return res.RowsAffected == 1, res.Error
}

func (s *Store) Release(ctx context.Context, key, owner string) error {
    return s.db.WithContext(ctx).Where("lock_key = ? AND owner = ?", key, owner).Delete(&lockRow{}).Error
}

func newID() string { return uuid.NewString() }
