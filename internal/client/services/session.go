package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/pdfxcel/internal/client/cache"
	"github.com/dmitrijs2005/pdfxcel/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
	"github.com/google/uuid"
)

// SessionKey is the metadata key holding the session id.
const SessionKey = "session_id"

// SessionService owns the client-generated session id that scopes the
// server-side history.
//
// Contract:
//   - ID: return the persisted id, creating one on first use. Never fails;
//     if storage is unavailable a temporary id is used for the process.
//   - NewSession: replace the id and drop history cached for the old one.
type SessionService interface {
	ID(ctx context.Context) string
	NewSession(ctx context.Context) (string, error)
}

type sessionService struct {
	repo  metadata.Repository
	cache *cache.Cache
	log   logging.Logger

	mu sync.Mutex
	id string
}

// NewSessionService constructs a SessionService. c may be nil.
func NewSessionService(repo metadata.Repository, c *cache.Cache, log logging.Logger) SessionService {
	return &sessionService{repo: repo, cache: c, log: log.With("component", "session")}
}

func newSessionID() string {
	return "session_" + uuid.NewString()
}

func (s *sessionService) ID(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id
	}

	v, err := s.repo.Get(ctx, SessionKey)
	if err != nil {
		s.id = newSessionID()
		s.log.Warn(ctx, "session storage unavailable, using temporary id", "error", err)
		return s.id
	}
	if len(v) > 0 {
		s.id = string(v)
		return s.id
	}

	s.id = newSessionID()
	if err := s.repo.Set(ctx, SessionKey, []byte(s.id)); err != nil {
		s.log.Warn(ctx, "persisting session id failed", "error", err)
	}
	s.log.Info(ctx, "session created", "session_id", s.id)
	return s.id
}

func (s *sessionService) NewSession(ctx context.Context) (string, error) {
	old := s.ID(ctx)

	id := newSessionID()
	if err := s.repo.Set(ctx, SessionKey, []byte(id)); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}

	s.mu.Lock()
	s.id = id
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.InvalidatePrefix(ctx, historyPrefix(old))
	}
	s.log.Info(ctx, "session replaced", "session_id", id)
	return id, nil
}
