// Package postgres implements the store ports over pgx. Schema changes live in
// migrations/ and are applied with goose.
package postgres

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "juscapture/internal/domain"
    "juscapture/internal/secrets"
)

type DB struct {
    Pool   *pgxpool.Pool
    sealer *secrets.Sealer
}

func Connect(ctx context.Context, url string) (*DB, error) {
    cfg, err := pgxpool.ParseConfig(url)
    if err != nil {
        return nil, err
    }
    cfg.MaxConns = 10
    cfg.HealthCheckPeriod = 30 * time.Second
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil {
        return nil, err
    }
    if err := pool.Ping(ctx); err != nil {
        pool.Close()
        return nil, err
    }
    return &DB{Pool: pool}, nil
}

// WithSealer enables the credential store.
func (db *DB) WithSealer(s *secrets.Sealer) *DB {
    db.sealer = s
    return db
}

func (db *DB) Close() { db.Pool.Close() }

// inTx runs fn in a transaction, committing only when fn returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil {
        return err
    }
    defer func() {
        if err != nil {
            _ = tx.Rollback(ctx)
        } else {
            err = tx.Commit(ctx)
        }
    }()
    return fn(tx)
}

const (
    uniqueViolation = "23505"
    raiseException  = "P0001"
)

func mapErr(err error) error {
    if err == nil {
        return nil
    }
    if errors.Is(err, pgx.ErrNoRows) {
        return domain.ErrNotFound
    }
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) {
        switch pgErr.Code {
        case uniqueViolation:
            return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
        case raiseException:
            return fmt.Errorf("%w: %s", domain.ErrRawLogFinal, pgErr.Message)
        }
    }
    return err
}
