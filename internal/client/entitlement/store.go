package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

// StateKey is the metadata key holding the JSON-encoded State.
const StateKey = "entitlement_state"

// Free plan limits.
const (
	DefaultDailyUploads = 3
	DailyAIUploads      = 1
)

// Store is the entitlement record. All methods are safe for concurrent use;
// each one is a serialized read-modify-write of the persisted State.
type Store struct {
	mu    sync.Mutex
	repo  metadata.Repository
	clock clock.Clock
	log   logging.Logger
	loc   *time.Location
	limit int
}

// NewStore builds a Store. dailyUploads <= 0 selects DefaultDailyUploads.
func NewStore(repo metadata.Repository, clk clock.Clock, log logging.Logger, dailyUploads int) *Store {
	if dailyUploads <= 0 {
		dailyUploads = DefaultDailyUploads
	}
	return &Store{
		repo:  repo,
		clock: clk,
		log:   log.With("component", "entitlement"),
		loc:   time.Local,
		limit: dailyUploads,
	}
}

// WithLocation sets the time zone that defines the calendar day.
func (s *Store) WithLocation(loc *time.Location) *Store {
	s.loc = loc
	return s
}

// DailyLimit is the free plan's upload quota.
func (s *Store) DailyLimit() int { return s.limit }

func (s *Store) now() time.Time { return s.clock.Now().In(s.loc) }

func (s *Store) nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
}

// load returns the current State, applying and persisting the date
// rollover. A read failure yields a default State that is not written back.
func (s *Store) load(ctx context.Context) State {
	now := s.now()
	today := now.Format(dateLayout)

	raw, err := s.repo.Get(ctx, StateKey)
	if err != nil {
		s.log.Warn(ctx, "entitlement read failed, using defaults", "error", err)
		return defaultState(today, now)
	}

	if raw == nil {
		st := defaultState(today, now)
		s.persist(ctx, st)
		return st
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		s.log.Warn(ctx, "entitlement record corrupt, resetting", "error", err)
		st = defaultState(today, now)
		s.persist(ctx, st)
		return st
	}
	if st.PlanTier != PlanPro {
		st.PlanTier = PlanFree
	}

	if st.rollover(today) {
		st.UpdatedAt = now
		s.log.Debug(ctx, "daily usage reset", "date", today)
		s.persist(ctx, st)
	}
	return st
}

// persist writes st and logs failures.
func (s *Store) persist(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err == nil {
		err = s.repo.Set(ctx, StateKey, data)
	}
	if err != nil {
		err = fmt.Errorf("persist entitlement: %w", err)
		s.log.Warn(ctx, "entitlement write failed", "error", err)
	}
	return err
}

// GetState never fails; see load.
func (s *Store) GetState(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// CanUpload decides whether a conversion may be submitted.
func (s *Store) CanUpload(ctx context.Context, wantsAI bool) Decision {
	s.mu.Lock()
	st := s.load(ctx)
	s.mu.Unlock()

	return s.decide(st, wantsAI)
}

func (s *Store) decide(st State, wantsAI bool) Decision {
	d := Decision{Allowed: true}
	if wantsAI {
		d.AI = s.aiDecision(st)
	}

	if st.PlanTier == PlanFree && st.DailyUploadCount >= s.limit {
		d.Allowed = false
		d.Reason = ReasonDailyLimit
		d.Message = fmt.Sprintf("Daily upload limit (%d) reached. It resets at midnight.", s.limit)
		return d
	}

	if wantsAI && !d.AI.Allowed() {
		d.Allowed = false
		d.Reason = ReasonAIGate
		switch d.AI.Availability {
		case AINeedAd:
			d.Message = "Watch a short ad to unlock today's free AI conversion."
		case AINeedSubscription:
			d.Message = "Today's free AI conversion is used. Upgrade to PRO for unlimited AI."
		}
	}
	return d
}

// AIAvailability evaluates the AI gate for the current day.
func (s *Store) AIAvailability(ctx context.Context) AIDecision {
	s.mu.Lock()
	st := s.load(ctx)
	s.mu.Unlock()

	return s.aiDecision(st)
}

func (s *Store) aiDecision(st State) AIDecision {
	switch {
	case st.PlanTier == PlanPro:
		return AIDecision{Availability: AIProUnlimited}
	case st.AIFreeUsedToday:
		return AIDecision{Availability: AINeedSubscription, NextAvailable: s.nextMidnight(s.now())}
	case st.AdWatchedToday:
		return AIDecision{Availability: AIFreeAvailable}
	default:
		return AIDecision{Availability: AINeedAd}
	}
}

// MarkAdWatched records a completed rewarded ad. Idempotent.
func (s *Store) MarkAdWatched(ctx context.Context) error {
	return s.update(ctx, func(st *State) {
		st.AdWatchedToday = true
	})
}

// RecordUpload charges one conversion. Call it only after the service has
// accepted the job.
func (s *Store) RecordUpload(ctx context.Context, usedAI bool) error {
	return s.update(ctx, func(st *State) {
		st.DailyUploadCount++
		if !usedAI {
			return
		}
		st.DailyAIUploadCount++
		if st.PlanTier == PlanFree {
			st.AIFreeUsedToday = true
		}
	})
}

// SetProUser switches the plan. Daily counters are kept.
func (s *Store) SetProUser(ctx context.Context, pro bool) error {
	return s.update(ctx, func(st *State) {
		if pro {
			st.PlanTier = PlanPro
		} else {
			st.PlanTier = PlanFree
		}
	})
}

// Reset discards the stored record; the next read starts a fresh free day.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, StateKey); err != nil {
		s.log.Warn(ctx, "entitlement reset failed", "error", err)
		return fmt.Errorf("reset entitlement: %w", err)
	}
	return nil
}

// Usage reports today's counters and what remains.
func (s *Store) Usage(ctx context.Context) Usage {
	s.mu.Lock()
	st := s.load(ctx)
	s.mu.Unlock()

	u := Usage{
		Plan:      st.PlanTier,
		Uploads:   st.DailyUploadCount,
		AIUploads: st.DailyAIUploadCount,
	}
	if st.PlanTier == PlanPro {
		u.RemainingUploads = Unlimited
		u.RemainingAIUploads = Unlimited
		return u
	}

	u.RemainingUploads = max(0, s.limit-st.DailyUploadCount)
	u.RemainingAIUploads = max(0, DailyAIUploads-st.DailyAIUploadCount)
	if st.AIFreeUsedToday {
		u.RemainingAIUploads = 0
	}
	u.NextReset = s.nextMidnight(s.now())
	return u
}

func (s *Store) update(ctx context.Context, fn func(st *State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load(ctx)
	fn(&st)
	st.UpdatedAt = s.now()
	return s.persist(ctx, st)
}
