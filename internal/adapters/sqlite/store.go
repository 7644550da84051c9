// Package sqlite is the embedded store: gorm over the pure-Go glebarez SQLite driver.
// It implements the same ports as the Postgres adapter.
package sqlite

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/glebarez/sqlite"
    "gorm.io/gorm"
    "gorm.io/gorm/logger"

    "juscapture/internal/domain"
    "juscapture/internal/secrets"
)

type Store struct {
    db     *gorm.DB
    sealer *secrets.Sealer
    now    func() time.Time
}

// Open opens (and migrates) the database at path. sealer may be nil when the caller
// never touches credentials.
func Open(path string, sealer *secrets.Sealer) (*Store, error) {
    db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
        Logger:         logger.Default.LogMode(logger.Silent),
        TranslateError: true,
    })
    if err != nil {
        return nil, err
    }
    sqlDB, err := db.DB()
    if err != nil {
        return nil, err
    }
    // SQLite allows one writer; a single connection keeps transactions from tripping over each other.
    sqlDB.SetMaxOpenConns(1)
    if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
        return nil, err
    }
    if err := migrate(db); err != nil {
        return nil, err
    }
    return &Store{db: db, sealer: sealer, now: func() time.Time { return time.Now().UTC() }}, nil
}

func migrate(db *gorm.DB) error {
    if err := db.AutoMigrate(
        &rawLogRow{}, &captureLogRow{},
        &processRow{}, &hearingRow{}, &pendingRow{}, &partyRow{}, &addressRow{}, &representativeRow{}, &timelineRow{},
        &processPartyRow{}, &representationRow{}, &identityRow{},
        &lockRow{}, &jobRow{}, &credentialRow{},
    ); err != nil {
        return fmt.Errorf("automigrate: %w", err)
    }
    for _, stmt := range triggers {
        if err := db.Exec(stmt).Error; err != nil {
            return fmt.Errorf("create trigger: %w", err)
        }
    }
    return nil
}

// triggers keep raw payloads immutable even against hand-written SQL.
var triggers = []string{
    `CREATE TRIGGER IF NOT EXISTS raw_capture_logs_payload_immutable
        BEFORE UPDATE OF raw_payload ON raw_capture_logs
        BEGIN SELECT RAISE(ABORT, 'raw payload is immutable'); END`,
    `CREATE TRIGGER IF NOT EXISTS raw_capture_logs_final
        BEFORE UPDATE ON raw_capture_logs WHEN OLD.status <> 'pending'
        BEGIN SELECT RAISE(ABORT, 'raw capture log is final'); END`,
    `CREATE TRIGGER IF NOT EXISTS raw_capture_logs_no_delete
        BEFORE DELETE ON raw_capture_logs
        BEGIN SELECT RAISE(ABORT, 'raw capture logs are append-only'); END`,
}

func (s *Store) Close() error {
    sqlDB, err := s.db.DB()
    if err != nil {
        return err
    }
    return sqlDB.Close()
}

// DB exposes the handle for tests and operator tooling.
func (s *Store) DB() *gorm.DB { return s.db }

func mapErr(err error) error {
    switch {
    case err == nil:
        return nil
    case errors.Is(err, gorm.ErrRecordNotFound):
        return domain.ErrNotFound
    case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
        return fmt.Errorf("%w: %v", domain.ErrConflict, err)
    }
    return err
}

func keep(dst *string, v string) {
    if v != "" {
        *dst = v
    }
}

func keepInt(dst *int64, v int64) {
    if v != 0 {
        *dst = v
    }
}

func keepTime(dst **time.Time, v *time.Time) {
    if v != nil {
        t := v.UTC()
        *dst = &t
    }
}

func utcPtr(t *time.Time) *time.Time {
    if t == nil {
        return nil
    }
    u := t.UTC()
    return &u
}
