package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pdfxcel/internal/client/cache"
	"github.com/dmitrijs2005/pdfxcel/internal/client/client"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

// HistoryService reads and edits the conversion history of the current
// session. List and Stats are cached and served stale while refreshing.
type HistoryService interface {
	List(ctx context.Context, refresh bool) (*models.HistoryResponse, error)
	FileInfo(ctx context.Context, fileID string) (*models.HistoryItem, error)
	Delete(ctx context.Context, fileID string) error
	PrepareRedownload(ctx context.Context, fileID string) (string, error)
	Stats(ctx context.Context) (*models.SessionStats, error)
	// Invalidate drops cached history, e.g. after a conversion finished.
	Invalidate(ctx context.Context)
}

type historyService struct {
	client  client.Client
	session SessionService
	cache   *cache.Cache
	log     logging.Logger
}

func NewHistoryService(c client.Client, session SessionService, cc *cache.Cache, log logging.Logger) HistoryService {
	return &historyService{client: c, session: session, cache: cc, log: log.With("component", "history")}
}

func historyPrefix(sessionID string) string {
	return "history:" + sessionID
}

var historyOpts = cache.Options{StaleWhileRevalidate: true}

func (h *historyService) List(ctx context.Context, refresh bool) (*models.HistoryResponse, error) {
	key := historyPrefix(h.session.ID(ctx)) + ":list"
	opts := historyOpts
	opts.ForceRefresh = refresh

	resp, err := cache.Fetch(ctx, h.cache, key, func(ctx context.Context) (*models.HistoryResponse, error) {
		return h.client.History(ctx)
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return resp, nil
}

func (h *historyService) FileInfo(ctx context.Context, fileID string) (*models.HistoryItem, error) {
	item, err := h.client.FileInfo(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("file info %s: %w", fileID, err)
	}
	return item, nil
}

func (h *historyService) Delete(ctx context.Context, fileID string) error {
	if err := h.client.DeleteHistory(ctx, fileID); err != nil {
		return fmt.Errorf("delete %s: %w", fileID, err)
	}
	h.Invalidate(ctx)
	return nil
}

func (h *historyService) PrepareRedownload(ctx context.Context, fileID string) (string, error) {
	u, err := h.client.PrepareRedownload(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("prepare redownload %s: %w", fileID, err)
	}
	return u, nil
}

func (h *historyService) Stats(ctx context.Context) (*models.SessionStats, error) {
	key := historyPrefix(h.session.ID(ctx)) + ":stats"
	st, err := cache.Fetch(ctx, h.cache, key, h.client.SessionStats, historyOpts)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return st, nil
}

func (h *historyService) Invalidate(ctx context.Context) {
	h.cache.InvalidatePrefix(ctx, historyPrefix(h.session.ID(ctx)))
}
