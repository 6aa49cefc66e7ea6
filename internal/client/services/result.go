package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/pdfxcel/internal/client/cache"
	"github.com/dmitrijs2005/pdfxcel/internal/client/client"
	"github.com/dmitrijs2005/pdfxcel/internal/client/export"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

// Preview is the tabular result of a conversion.
type Preview struct {
	Headers []string
	Rows    []models.Row
}

// ResultService gives access to a finished conversion.
//
// Contract:
//   - Preview: converted rows (cached) plus their column headers.
//   - Save: download the spreadsheet and hand it to the export sink,
//     returning where it was stored.
//   - Cleanup: ask the server to drop the download; failures are logged.
type ResultService interface {
	Preview(ctx context.Context, fileID string) (*Preview, error)
	Save(ctx context.Context, fileID string) (string, error)
	Cleanup(ctx context.Context, fileID string)
}

type resultService struct {
	client client.Client
	cache  *cache.Cache
	sink   export.Sink
	log    logging.Logger
}

func NewResultService(c client.Client, cc *cache.Cache, sink export.Sink, log logging.Logger) ResultService {
	return &resultService{client: c, cache: cc, sink: sink, log: log.With("component", "result")}
}

// ExportName is the file name a result is saved under.
func ExportName(fileID string) string {
	return fmt.Sprintf("bank_statement_%s.xlsx", fileID)
}

func (r *resultService) Preview(ctx context.Context, fileID string) (*Preview, error) {
	rows, err := cache.Fetch(ctx, r.cache, "data:"+fileID, func(ctx context.Context) ([]models.Row, error) {
		return r.client.ConvertedData(ctx, fileID)
	}, cache.Options{})
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", fileID, err)
	}
	if len(rows) == 0 {
		// Not ready yet; keep it out of the cache.
		r.cache.Invalidate(ctx, "data:"+fileID)
	}
	return &Preview{Headers: models.Headers(rows), Rows: rows}, nil
}

func (r *resultService) Save(ctx context.Context, fileID string) (string, error) {
	tmp, err := os.CreateTemp("", "pdfxcel-download-*.xlsx")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := r.client.Download(ctx, fileID, tmp)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileID, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind download: %w", err)
	}

	loc, err := r.sink.Save(ctx, ExportName(fileID), tmp)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", fileID, err)
	}
	r.log.Info(ctx, "result saved", "file_id", fileID, "bytes", n, "location", loc)
	return loc, nil
}

func (r *resultService) Cleanup(ctx context.Context, fileID string) {
	if err := r.client.DeleteDownload(ctx, fileID); err != nil {
		r.log.Warn(ctx, "server cleanup failed", "file_id", fileID, "error", err)
	}
}
