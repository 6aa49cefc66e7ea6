// Package export saves downloaded spreadsheets to their final destination.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/pdfxcel/internal/client/config"
)

var ErrUnknownTarget = errors.New("unknown export target")

// Sink stores a named file and returns where it ended up.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// NewSink builds the sink selected by cfg.ExportTarget.
func NewSink(ctx context.Context, cfg *config.Config) (Sink, error) {
	switch cfg.ExportTarget {
	case "", config.ExportLocal:
		return NewLocalSink(cfg.ExportDir), nil
	case config.ExportS3:
		return NewS3Sink(ctx, cfg.S3)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, cfg.ExportTarget)
}
