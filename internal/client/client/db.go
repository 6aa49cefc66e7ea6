package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/pdfxcel/internal/client/migrations"
	"github.com/dmitrijs2005/pdfxcel/internal/client/repositories/cache"
	"github.com/dmitrijs2005/pdfxcel/internal/client/repositories/crashes"
	"github.com/dmitrijs2005/pdfxcel/internal/client/repositories/metadata"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles the local stores backed by one sqlite database.
type Repositories struct {
	DB       *sql.DB
	Metadata metadata.Repository
	Cache    cache.Repository
	Crashes  crashes.Repository
}

// Close closes the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

// RunMigrations applies the embedded schema. It is safe to call repeatedly.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// InitDatabase opens (creating if needed) the sqlite file at dsn, applies
// migrations and wires the repositories.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:       db,
		Metadata: metadata.NewSQLiteRepository(db),
		Cache:    cache.NewSQLiteRepository(db),
		Crashes:  crashes.NewSQLiteRepository(db),
	}, nil
}
