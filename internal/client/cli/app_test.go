package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/pdfxcel/internal/client/config"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/client/upload"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// fakeServer is a minimal conversion service: every upload becomes job-1
// and completes over the progress socket.
type fakeServer struct {
	*httptest.Server

	mu      sync.Mutex
	uploads []string
	deleted []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.uploads = append(fs.uploads, r.FormValue("use_ai"))
		fs.mu.Unlock()
		pt := models.ProcessingBasic
		if r.FormValue("use_ai") == "true" {
			pt = models.ProcessingAI
		}
		_ = json.NewEncoder(w).Encode(models.UploadResponse{FileID: "job-1", ProcessingType: pt})
	})
	mux.HandleFunc("GET /api/ws/{id}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id := r.PathValue("id")
		_ = conn.WriteJSON(models.ProgressEvent{FileID: id, Status: models.StatusExtracting, Progress: 50, Message: "Reading pages"})
		_ = conn.WriteJSON(models.ProgressEvent{FileID: id, Status: models.StatusCompleted, Progress: 100, Message: "Done"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("GET /api/data/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"date":"2024-01-02","description":"Coffee","amount":-3.5},{"date":"2024-01-03","description":"Salary","amount":1200}]`))
	})
	mux.HandleFunc("GET /api/download/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("xlsx-bytes"))
	})
	mux.HandleFunc("DELETE /api/download/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.deleted = append(fs.deleted, r.PathValue("id"))
		fs.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.HistoryResponse{
			Success:    true,
			TotalCount: 1,
			Files: []models.HistoryItem{{
				FileID: "job-1", OriginalFilename: "statement.pdf", Status: "completed",
				ProcessingType: models.ProcessingBasic,
			}},
		})
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func newTestApp(t *testing.T, serverURL, input string) (*App, *syncBuffer) {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ServerURL = serverURL + "/api"
	cfg.DatabasePath = filepath.Join(dir, "pdfxcel.db")
	cfg.ExportDir = filepath.Join(dir, "exports")
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.RequestTimeout = 5 * time.Second

	out := &syncBuffer{}
	a, err := newApp(context.Background(), cfg, logging.Nop(), strings.NewReader(input), out, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, out
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "statement.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 test"), 0o600))
	return p
}

func waitForResult(t *testing.T, a *App) string {
	t.Helper()
	var id string
	require.Eventually(t, func() bool {
		var err error
		id, err = a.resultID(nil)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	return id
}

func TestApp_ConvertPreviewSave(t *testing.T) {
	srv := newFakeServer(t)
	a, out := newTestApp(t, srv.URL, "")
	ctx := context.Background()

	require.NoError(t, a.Pick(ctx, []string{writePDF(t)}))
	assert.Contains(t, out.String(), "Selected statement.pdf")

	require.NoError(t, a.Upload(ctx, nil))
	id := waitForResult(t, a)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, upload.StatusCompleted, a.uploads.Snapshot().Status)
	assert.Contains(t, out.String(), "Conversion complete (basic extraction)")

	out.Reset()
	require.NoError(t, a.Preview(ctx, nil))
	assert.Contains(t, out.String(), "Coffee")
	assert.Contains(t, out.String(), "description")

	require.NoError(t, a.Save(ctx, nil))
	saved := filepath.Join(a.config.ExportDir, "bank_statement_job-1.xlsx")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "xlsx-bytes", string(data))

	srv.mu.Lock()
	assert.Equal(t, []string{"job-1"}, srv.deleted)
	assert.Equal(t, []string{"false"}, srv.uploads)
	srv.mu.Unlock()

	assert.Equal(t, 1, a.entitlements.Usage(ctx).Uploads)
	assert.Equal(t, "(offline FREE 1/3 completed)", a.getStatus())
}

func TestApp_AIGateNeedsAd(t *testing.T) {
	srv := newFakeServer(t)
	a, out := newTestApp(t, srv.URL, "")
	ctx := context.Background()

	require.NoError(t, a.Pick(ctx, []string{writePDF(t)}))
	require.NoError(t, a.AI(ctx, []string{"on"}))
	assert.Contains(t, out.String(), "watchad")

	err := a.Upload(ctx, nil)
	var denied *upload.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, upload.StatusIdle, a.uploads.Snapshot().Status)

	require.NoError(t, a.WatchAd(ctx, nil))
	require.NoError(t, a.Upload(ctx, nil))
	waitForResult(t, a)
	assert.Contains(t, out.String(), "Conversion complete (AI analysis)")

	u := a.entitlements.Usage(ctx)
	assert.Equal(t, 1, u.AIUploads)
	assert.Equal(t, 0, u.RemainingAIUploads)
}

func TestApp_PickRejectsNonPDF(t *testing.T) {
	srv := newFakeServer(t)
	a, _ := newTestApp(t, srv.URL, "")

	p := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("hi"), 0o600))

	err := a.Pick(context.Background(), []string{p})
	require.Error(t, err)
	assert.Nil(t, a.uploads.Snapshot().File)
}

func TestApp_HistoryAndDeleteConfirm(t *testing.T) {
	srv := newFakeServer(t)
	a, out := newTestApp(t, srv.URL, "n\n")
	ctx := context.Background()

	require.NoError(t, a.History(ctx, nil))
	assert.Contains(t, out.String(), "statement.pdf")

	// Declined confirmation never reaches the server.
	require.NoError(t, a.Delete(ctx, []string{"job-1"}))
	assert.NotContains(t, out.String(), "Deleted.")
}

func TestApp_SetModeAnnouncesChangesOnce(t *testing.T) {
	srv := newFakeServer(t)
	a, out := newTestApp(t, srv.URL, "")

	a.setMode(ModeOnline)
	assert.Equal(t, ModeOnline, a.Mode())
	assert.Contains(t, out.String(), "Switched to online mode")

	out.Reset()
	a.setMode(ModeOnline)
	assert.Empty(t, out.String())

	a.setMode(ModeOffline)
	assert.Contains(t, out.String(), "Switched to offline mode")
}

func TestApp_CheckOnline(t *testing.T) {
	srv := newFakeServer(t)
	a, _ := newTestApp(t, srv.URL, "")

	a.checkOnline(context.Background())
	assert.Equal(t, ModeOnline, a.Mode())

	srv.Close()
	a.checkOnline(context.Background())
	assert.Equal(t, ModeOffline, a.Mode())
}

func TestApp_PanickingCommandIsReported(t *testing.T) {
	srv := newFakeServer(t)
	a, out := newTestApp(t, srv.URL, "")
	ctx := context.Background()

	err := dispatch(ctx, a, "preview", nil, func(context.Context, []string) error {
		panic("nil rows")
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "crash report was saved")

	list, err := a.crashes.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "command preview", list[0].Context)

	require.NoError(t, a.Crashes(ctx, []string{"clear"}))
	list, err = a.crashes.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApp_ResultIDNeedsFinishedJob(t *testing.T) {
	srv := newFakeServer(t)
	a, _ := newTestApp(t, srv.URL, "")

	_, err := a.resultID(nil)
	require.ErrorIs(t, err, errNoResult)

	id, err := a.resultID([]string{"job-9"})
	require.NoError(t, err)
	assert.Equal(t, "job-9", id)
}
