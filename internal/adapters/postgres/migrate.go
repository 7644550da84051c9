package postgres

import (
    "context"
    "database/sql"
    "embed"

    _ "github.com/jackc/pgx/v5/stdlib"
    "github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending migration. goose needs database/sql, so it gets its own
// short-lived connection through the pgx stdlib driver.
func Migrate(ctx context.Context, url string) error {
    conn, err := sql.Open("pgx", url)
    if err != nil {
        return err
    }
    defer conn.Close()
    goose.SetBaseFS(migrations)
    if err := goose.SetDialect("postgres"); err != nil {
        return err
    }
    return goose.UpContext(ctx, conn, "migrations")
}

// MigrationStatus logs the applied state of each migration.
func MigrationStatus(ctx context.Context, url string) error {
    conn, err := sql.Open("pgx", url)
    if err != nil {
        return err
    }
    defer conn.Close()
    goose.SetBaseFS(migrations)
    if err := goose.SetDialect("postgres"); err != nil {
        return err
    }
    return goose.StatusContext(ctx, conn, "migrations")
}
