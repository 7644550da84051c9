package postgres

import (
    "context"
    "errors"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"

    "juscapture/internal/domain"
)

var errNoSealer = errors.New("credential store opened without a credential key")

func (db *DB) GetCredential(ctx context.Context, lawyerID, tribunal string, level domain.InstanceLevel) (domain.Credential, error) {
    if db.sealer == nil {
        return domain.Credential{}, errNoSealer
    }
    var (
        c            domain.Credential
        lvl          string
        secret, seed []byte
    )
    err := db.Pool.QueryRow(ctx, `
        SELECT id, lawyer_id, tribunal, level, login, secret_sealed, totp_sealed, active
        FROM credentials WHERE lawyer_id = $1 AND tribunal = $2 AND level = $3
    `, lawyerID, domain.NormalizeTribunal(tribunal), string(level)).Scan(&c.ID, &c.LawyerID, &c.Tribunal, &lvl, &c.Login, &secret, &seed, &c.Active)
    if err != nil {
        return domain.Credential{}, mapErr(err)
    }
    c.Level = domain.InstanceLevel(lvl)
    if c.Secret, err = db.sealer.Open(secret, c.ID); err != nil {
        return domain.Credential{}, err
    }
    if c.TOTPSeed, err = db.sealer.Open(seed, c.ID+":totp"); err != nil {
        return domain.Credential{}, err
    }
    return c, nil
}

func (db *DB) DeactivateCredential(ctx context.Context, credentialID, reason string) error {
    tag, err := db.Pool.Exec(ctx, `
        UPDATE credentials SET active = false, deactivated_reason = $2, updated_at = now() WHERE id = $1
    `, credentialID, reason)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return domain.ErrNotFound
    }
    return nil
}

// PutCredential creates or replaces the credential of a (lawyer, tribunal, level) tuple.
// The row id is the associated data of both sealed values, so it is fixed before sealing.
func (db *DB) PutCredential(ctx context.Context, c domain.Credential) (string, error) {
    if db.sealer == nil {
        return "", errNoSealer
    }
    tribunal := domain.NormalizeTribunal(c.Tribunal)
    var id string
    err := db.inTx(ctx, func(tx pgx.Tx) error {
        err := tx.QueryRow(ctx, `
            SELECT id FROM credentials WHERE lawyer_id = $1 AND tribunal = $2 AND level = $3 FOR UPDATE
        `, c.LawyerID, tribunal, string(c.Level)).Scan(&id)
        if errors.Is(err, pgx.ErrNoRows) {
            id = uuid.NewString()
        } else if err != nil {
            return err
        }
        secret, err := db.sealer.Seal(c.Secret, id)
        if err != nil {
            return err
        }
        seed, err := db.sealer.Seal(c.TOTPSeed, id+":totp")
        if err != nil {
            return err
        }
        _, err = tx.Exec(ctx, `
            INSERT INTO credentials (id, lawyer_id, tribunal, level, login, secret_sealed, totp_sealed)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            ON CONFLICT (id) DO UPDATE SET
                login = EXCLUDED.login, secret_sealed = EXCLUDED.secret_sealed, totp_sealed = EXCLUDED.totp_sealed,
                active = true, deactivated_reason = '', updated_at = now()
        `, id, c.LawyerID, tribunal, string(c.Level), c.Login, secret, seed)
        return err
    })
    return id, mapErr(err)
}
