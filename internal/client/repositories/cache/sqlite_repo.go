package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var (
		e                 models.CacheEntry
		stored, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT key, value, stored_at, expires_at FROM response_cache WHERE key = ?`, key,
	).Scan(&e.Key, &e.Value, &stored, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache[%s]: %w", key, err)
	}
	e.StoredAt = time.UnixMilli(stored)
	e.ExpiresAt = time.UnixMilli(expiresAt)
	return &e, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, e *models.CacheEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, value, stored_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, e.Key, e.Value, e.StoredAt.UnixMilli(), e.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache[%s]: %w", e.Key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return fmt.Errorf("delete cache prefix %q: %w", prefix, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM response_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
