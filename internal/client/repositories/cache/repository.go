// Package cache persists response-cache entries in the local sqlite store.
package cache

import (
	"context"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
)

// Repository stores cache entries. Get returns (nil, nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, e *models.CacheEntry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
}
