package client

import (
	"context"
	"io"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
)

// Client is the contract of the remote conversion service.
type Client interface {
	Ping(ctx context.Context) error

	Upload(ctx context.Context, req models.UploadRequest) (*models.UploadResponse, error)
	ConvertedData(ctx context.Context, fileID string) ([]models.Row, error)
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
	DeleteDownload(ctx context.Context, fileID string) error

	History(ctx context.Context) (*models.HistoryResponse, error)
	FileInfo(ctx context.Context, fileID string) (*models.HistoryItem, error)
	DeleteHistory(ctx context.Context, fileID string) error
	PrepareRedownload(ctx context.Context, fileID string) (string, error)
	SessionStats(ctx context.Context) (*models.SessionStats, error)

	// ProgressURL is the websocket endpoint for a job.
	ProgressURL(fileID string) string
}
