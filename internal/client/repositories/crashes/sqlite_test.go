package crashes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE crash_reports (
		id TEXT PRIMARY KEY, occurred_at INTEGER NOT NULL,
		context TEXT NOT NULL, message TEXT NOT NULL, extra TEXT NOT NULL DEFAULT '{}')`)
	require.NoError(t, err)
	return db
}

func TestSQLiteRepository_InsertEvictsOldest(t *testing.T) {
	r := NewSQLiteRepository(openDB(t))
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 5; i++ {
		rep := &models.CrashReport{
			ID:         fmt.Sprintf("r%d", i),
			OccurredAt: base.Add(time.Duration(i) * time.Second),
			Context:    "upload",
			Message:    fmt.Sprintf("boom %d", i),
		}
		require.NoError(t, r.Insert(ctx, rep, 3))
	}

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "r4", got[0].ID)
	assert.Equal(t, "r2", got[2].ID)
	assert.Equal(t, base.Add(4*time.Second), got[0].OccurredAt)
}

func TestSQLiteRepository_ExtraRoundTrip(t *testing.T) {
	r := NewSQLiteRepository(openDB(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, &models.CrashReport{
		ID: "x", OccurredAt: time.Now(), Context: "save", Message: "m",
		Extra: map[string]string{"file_id": "f1"},
	}, 10))

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]string{"file_id": "f1"}, got[0].Extra)

	require.NoError(t, r.Clear(ctx))
	got, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteRepository_InsertRollsBackOnEvictError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO crash_reports")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM crash_reports WHERE id NOT IN")).WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	r := NewSQLiteRepository(db)
	err = r.Insert(context.Background(), &models.CrashReport{ID: "a", OccurredAt: time.Now()}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evict crash reports")
	require.NoError(t, mock.ExpectationsWereMet())
}
