package postgres

import (
    "context"
    "time"
)

// TryAcquire inserts the lock row or takes over an expired one in a single statement.
func (db *DB) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
    tag, err := db.Pool.Exec(ctx, `
        INSERT INTO capture_locks (lock_key, owner, expires_at)
        VALUES ($1, $2, now() + $3 * interval '1 millisecond')
        ON CONFLICT (lock_key) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
        WHERE capture_locks.owner = EXCLUDED.owner OR capture_locks.expires_at <= now()
    `, key, owner, ttl.Milliseconds())
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

func (db *DB) Refresh(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
    tag, err := db.Pool.Exec(ctx, `
        UPDATE capture_locks SET expires_at = now() + $3 * interval '1 millisecond'
        WHERE lock_key = $1 AND owner = $2
    `, key, owner, ttl.Milliseconds())
    if err != nil {
        return false, err
    }
    return tag.RowsAffected() == 1, nil
}

func (db *DB) Release(ctx context.Context, key, owner string) error {
    _, err := db.Pool.Exec(ctx, `DELETE FROM capture_locks WHERE lock_key = $1 AND owner = $2`, key, owner)
    return err
}
