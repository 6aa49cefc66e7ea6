// Package crash records failures in a small local ring buffer so they can
// be inspected after the fact.
package crash

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/client/repositories/crashes"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
	"github.com/google/uuid"
)

// DefaultCapacity is the number of reports kept; older ones are evicted.
const DefaultCapacity = 10

type Reporter struct {
	repo     crashes.Repository
	clock    clock.Clock
	log      logging.Logger
	capacity int
}

func NewReporter(repo crashes.Repository, clk clock.Clock, log logging.Logger, capacity int) *Reporter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Reporter{repo: repo, clock: clk, log: log.With("component", "crash"), capacity: capacity}
}

// Report stores err under where. Storage failures are only logged.
func (r *Reporter) Report(ctx context.Context, where string, err error, extra map[string]string) {
	if err == nil {
		return
	}
	rep := &models.CrashReport{
		ID:         uuid.NewString(),
		OccurredAt: r.clock.Now(),
		Context:    where,
		Message:    err.Error(),
		Extra:      extra,
	}
	r.log.Error(ctx, "crash reported", "where", where, "error", err, "id", rep.ID)
	if ierr := r.repo.Insert(ctx, rep, r.capacity); ierr != nil {
		r.log.Warn(ctx, "storing crash report failed", "error", ierr)
	}
}

// Recover captures a panic as a report and stops it from propagating.
// Use it deferred: defer rep.Recover(ctx, "command").
func (r *Reporter) Recover(ctx context.Context, where string) {
	if v := recover(); v != nil {
		r.ReportPanic(ctx, where, v)
	}
}

// ReportPanic stores a recovered panic value with the current stack.
func (r *Reporter) ReportPanic(ctx context.Context, where string, v any) {
	r.Report(ctx, where, fmt.Errorf("panic: %v", v), map[string]string{
		"fatal": "true",
		"stack": string(debug.Stack()),
	})
}

// List returns stored reports, newest first.
func (r *Reporter) List(ctx context.Context) ([]*models.CrashReport, error) {
	list, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list crash reports: %w", err)
	}
	return list, nil
}

func (r *Reporter) Clear(ctx context.Context) error {
	if err := r.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear crash reports: %w", err)
	}
	return nil
}
