package sqlite

import (
    "context"
    "errors"

    "gorm.io/gorm"

    "juscapture/internal/domain"
)

var errNoSealer = errors.New("credential store opened without a credential key")

func (s *Store) GetCredential(ctx context.Context, lawyerID, tribunal string, level domain.InstanceLevel) (domain.Credential, error) {
    if s.sealer == nil {
        return domain.Credential{}, errNoSealer
    }
    var row credentialRow
    err := s.db.WithContext(ctx).
        Where("lawyer_id = ? AND tribunal = ? AND level = ?", lawyerID, domain.NormalizeTribunal(tribunal), string(level)).
        First(&row).Error
    if err != nil {
        return domain.Credential{}, mapErr(err)
    }
    secret, err := s.sealer.Open(row.SecretSealed, row.ID)
    if err != nil {
        return domain.Credential{}, err
    }
    seed, err := s.sealer.Open(row.TOTPSealed, row.ID+":totp")
    if err != nil {
        return domain.Credential{}, err
    }
    return domain.Credential{
        ID:       row.ID,
        LawyerID: row.LawyerID,
        Tribunal: row.Tribunal,
        Level:    domain.InstanceLevel(row.Level),
        Login:    row.Login,
        Secret:   secret,
        TOTPSeed: seed,
        Active:   row.Active,
    }, nil
}

func (s *Store) DeactivateCredential(ctx context.Context, credentialID, reason string) error {
    res := s.db.WithContext(ctx).Model(&credentialRow{}).Where("id = ?", credentialID).Updates(map[string]any{
        "active":             false,
        "deactivated_reason": reason,
        "updated_at":         s.now(),
    })
    if res.Error != nil {
        return res.Error
    }
    if res.RowsAffected == 0 {
        return domain.ErrNotFound
    }
    return nil
}

// PutCredential creates or replaces the credential of a (lawyer, tribunal, level) tuple.
func (s *Store) PutCredential(ctx context.Context, c domain.Credential) (string, error) {
    if s.sealer == nil {
        return "", errNoSealer
    }
    tribunal := domain.NormalizeTribunal(c.Tribunal)
    var id string
    err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
        var row credentialRow
        err := tx.Where("lawyer_id = ? AND tribunal = ? AND level = ?", c.LawyerID, tribunal, string(c.Level)).First(&row).Error
        switch {
        case errors.Is(err, gorm.ErrRecordNotFound):
            row = credentialRow{ID: newID(), LawyerID: c.LawyerID, Tribunal: tribunal, Level: string(c.Level)}
        case err != nil:
            return err
        }
        sealed, err := s.sealer.Seal(c.Secret, row.ID)
        if err != nil {
            return err
        }
        seed, err := s.sealer.Seal(c.TOTPSeed, row.ID+":totp")
        if err != nil {
            return err
        }
        row.Login = c.Login
        row.SecretSealed = sealed
        row.TOTPSealed = seed
        row.Active = true
        row.DeactivatedReason = ""
        id = row.ID
        return tx.Save(&row).Error
    })
    return id, mapErr(err)
}
