// Package polling approximates the progress stream when no push connection
// can be opened: it asks the service for the job's converted data on a fixed
// interval until the data appears or an attempt ceiling is reached.
//
// The progress values it reports while waiting are a display estimate
// (min(20+2*attempt, 90)), not a measurement of server progress.
package polling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

// Probe fetches the converted rows; an empty result means "not ready".
type Probe interface {
	ConvertedData(ctx context.Context, fileID string) ([]models.Row, error)
}

// Options for a polling run. Zero fields take the defaults.
type Options struct {
	Interval time.Duration
	Ceiling  int
	// StartProgress is the value shown before the first tick.
	StartProgress int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.Ceiling <= 0 {
		o.Ceiling = 60
	}
	if o.StartProgress <= 0 {
		o.StartProgress = 20
	}
	return o
}

// Estimate is the display progress after attempt polls.
func Estimate(start, attempt int) int {
	return min(start+attempt*2, 90)
}

// Handle controls one polling run.
type Handle struct {
	probe   Probe
	fileID  string
	clock   clock.Clock
	log     logging.Logger
	opts    Options
	onEvent func(models.ProgressEvent)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	attempts int
	timer    clock.Timer
	stopped  bool
	done     chan struct{}
}

// Start begins polling fileID; the first request happens one interval from
// now. onEvent receives every synthesized event, ending with exactly one
// completed or failed event unless Stop is called first.
func Start(ctx context.Context, probe Probe, fileID string, clk clock.Clock, log logging.Logger, opts Options, onEvent func(models.ProgressEvent)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		probe:   probe,
		fileID:  fileID,
		clock:   clk,
		log:     log.With("component", "polling", "file_id", fileID),
		opts:    opts.withDefaults(),
		onEvent: onEvent,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.timer = clk.AfterFunc(h.opts.Interval, h.tick)
	h.mu.Unlock()

	h.log.Info(ctx, "polling started", "interval", h.opts.Interval, "ceiling", h.opts.Ceiling)
	return h
}

// Stop ends the run and aborts an in-flight request. Idempotent.
func (h *Handle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finishLocked()
}

// Done is closed once the run has ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Running reports whether the run is still active.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

// Attempts returns the number of polls made so far.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

func (h *Handle) finishLocked() {
	if h.stopped {
		return
	}
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.cancel()
	close(h.done)
}

func (h *Handle) tick() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.attempts++
	attempt := h.attempts
	h.mu.Unlock()

	rows, err := h.probe.ConvertedData(h.ctx, h.fileID)

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}

	var ev models.ProgressEvent
	switch {
	case err == nil && len(rows) > 0:
		ev = h.event(models.StatusCompleted, 100, "Conversion complete")
		h.finishLocked()
	case attempt >= h.opts.Ceiling:
		ev = h.event(models.StatusFailed, 0, "Conversion timed out. Please try again.")
		h.finishLocked()
	default:
		ev = h.event(models.StatusProcessing, Estimate(h.opts.StartProgress, attempt),
			fmt.Sprintf("Converting... (%d/%d)", attempt, h.opts.Ceiling))
		h.timer = h.clock.AfterFunc(h.opts.Interval, h.tick)
	}
	h.mu.Unlock()

	if err != nil {
		h.log.Debug(h.ctx, "poll failed, still waiting", "attempt", attempt, "error", err)
	}
	if ev.Status.IsTerminal() {
		h.log.Info(context.Background(), "polling finished", "status", ev.Status, "attempts", attempt)
	}
	if h.onEvent != nil {
		h.onEvent(ev)
	}
}

func (h *Handle) event(status models.JobStatus, progress int, msg string) models.ProgressEvent {
	return models.ProgressEvent{
		FileID:    h.fileID,
		Status:    status,
		Progress:  progress,
		Message:   msg,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339Nano),
	}
}
