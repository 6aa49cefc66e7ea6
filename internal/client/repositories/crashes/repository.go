// Package crashes persists captured crash reports with a bounded row count.
package crashes

import (
	"context"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
)

type Repository interface {
	// Insert stores r and then deletes the oldest rows so that at most
	// capacity remain.
	Insert(ctx context.Context, r *models.CrashReport, capacity int) error
	// List returns reports newest first.
	List(ctx context.Context) ([]*models.CrashReport, error)
	Clear(ctx context.Context) error
}
