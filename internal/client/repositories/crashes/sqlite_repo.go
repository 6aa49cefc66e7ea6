package crashes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/dbx"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rep *models.CrashReport, capacity int) error {
	extra, err := json.Marshal(rep.Extra)
	if err != nil {
		return fmt.Errorf("encode crash extra: %w", err)
	}
	if rep.Extra == nil {
		extra = []byte("{}")
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO crash_reports (id, occurred_at, context, message, extra) VALUES (?, ?, ?, ?, ?)`,
			rep.ID, rep.OccurredAt.UnixMilli(), rep.Context, rep.Message, string(extra))
		if err != nil {
			return fmt.Errorf("insert crash report: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM crash_reports WHERE id NOT IN (
				SELECT id FROM crash_reports ORDER BY occurred_at DESC, rowid DESC LIMIT ?
			)`, capacity)
		if err != nil {
			return fmt.Errorf("evict crash reports: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.CrashReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, occurred_at, context, message, extra FROM crash_reports ORDER BY occurred_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list crash reports: %w", err)
	}
	defer rows.Close()

	var out []*models.CrashReport
	for rows.Next() {
		var (
			rep   models.CrashReport
			at    int64
			extra string
		)
		if err := rows.Scan(&rep.ID, &at, &rep.Context, &rep.Message, &extra); err != nil {
			return nil, fmt.Errorf("scan crash report: %w", err)
		}
		rep.OccurredAt = time.UnixMilli(at)
		if err := json.Unmarshal([]byte(extra), &rep.Extra); err != nil {
			return nil, fmt.Errorf("decode crash extra %s: %w", rep.ID, err)
		}
		out = append(out, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate crash reports: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM crash_reports`); err != nil {
		return fmt.Errorf("clear crash reports: %w", err)
	}
	return nil
}
