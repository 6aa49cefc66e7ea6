package cache

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/google/go-cmp/cmp"
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

	_, err = db.Exec(`CREATE TABLE response_cache (
		key TEXT PRIMARY KEY, value BLOB NOT NULL,
		stored_at INTEGER NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)
	return db
}

func entry(key, val string, stored time.Time) *models.CacheEntry {
	return &models.CacheEntry{Key: key, Value: []byte(val), StoredAt: stored, ExpiresAt: stored.Add(5 * time.Minute)}
}

func TestSQLiteRepository_PutGet(t *testing.T) {
	r := NewSQLiteRepository(openDB(t))
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	want := entry("data:abc", `[{"a":1}]`, now)
	require.NoError(t, r.Put(ctx, want))

	got, err := r.Get(ctx, "data:abc")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, r.Put(ctx, entry("data:abc", "[]", now.Add(time.Second))))
	got, err = r.Get(ctx, "data:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), got.Value)
}

func TestSQLiteRepository_Missing(t *testing.T) {
	r := NewSQLiteRepository(openDB(t))
	got, err := r.Get(context.Background(), "none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteRepository_DeletePrefix(t *testing.T) {
	r := NewSQLiteRepository(openDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Put(ctx, entry("history:s1", "a", now)))
	require.NoError(t, r.Put(ctx, entry("history:s1:stats", "b", now)))
	require.NoError(t, r.Put(ctx, entry("historyXs1", "c", now)))
	require.NoError(t, r.Put(ctx, entry("data:1", "d", now)))

	require.NoError(t, r.DeletePrefix(ctx, "history:"))

	for key, present := range map[string]bool{
		"history:s1": false, "history:s1:stats": false, "historyXs1": true, "data:1": true,
	} {
		got, err := r.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, present, got != nil, key)
	}

	require.NoError(t, r.Delete(ctx, "data:1"))
	require.NoError(t, r.Clear(ctx))
	got, err := r.Get(ctx, "historyXs1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\`, escapeLike(`a%b_c\`))
}

func TestSQLiteRepository_ErrorsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	boom := errors.New("locked")
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, value")).WillReturnError(boom)
	_, err = r.Get(ctx, "k")
	require.ErrorIs(t, err, boom)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO response_cache")).WillReturnError(boom)
	require.ErrorIs(t, r.Put(ctx, entry("k", "v", time.Now())), boom)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM response_cache")).WillReturnError(boom)
	require.ErrorIs(t, r.Clear(ctx), boom)

	require.NoError(t, mock.ExpectationsWereMet())
}
