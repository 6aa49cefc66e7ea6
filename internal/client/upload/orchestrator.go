// Package upload drives one conversion end to end: validate the picked
// file, check entitlements, submit it, then track the job over the progress
// channel or, when that cannot be opened, by polling.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/pdfxcel/internal/client/entitlement"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/client/polling"
	"github.com/dmitrijs2005/pdfxcel/internal/client/progress"
	"github.com/dmitrijs2005/pdfxcel/internal/client/validate"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

var (
	ErrNoFile         = errors.New("no file selected")
	ErrBusy           = errors.New("a conversion is already in progress")
	ErrClosed         = errors.New("orchestrator closed")
	ErrNotCancellable = errors.New("conversion cannot be cancelled right now")
	ErrConversion     = errors.New("conversion failed")
	ErrConnectionLost = errors.New("lost connection to the conversion service")
	ErrAborted        = errors.New("submission aborted")
)

// DeniedError is returned by Submit when entitlements refuse the upload.
type DeniedError struct {
	Decision entitlement.Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("upload denied (%s): %s", e.Decision.Reason, e.Decision.Message)
}

// Service is the part of the remote service the orchestrator needs.
type Service interface {
	Upload(ctx context.Context, req models.UploadRequest) (*models.UploadResponse, error)
	ConvertedData(ctx context.Context, fileID string) ([]models.Row, error)
	ProgressURL(fileID string) string
}

type Entitlements interface {
	CanUpload(ctx context.Context, wantsAI bool) entitlement.Decision
	RecordUpload(ctx context.Context, usedAI bool) error
}

// Tracker is a progress channel; *progress.Channel implements it.
type Tracker interface {
	Connect(ctx context.Context, fileID string) error
	Disconnect()
	Cancel() error
	IsConnected() bool
}

// Poller is a running polling loop; *polling.Handle implements it.
type Poller interface {
	Stop()
	Running() bool
}

// File is a picked file.
type File struct {
	Path string
	Name string
	Size int64
}

// Result is exposed once a job completes.
type Result struct {
	FileID         string
	Filename       string
	UsedAI         bool
	ProcessingType models.ProcessingType
}

// Snapshot is the observable state. Err is set in StatusFailed.
type Snapshot struct {
	Status   Status
	Progress int
	Message  string
	FileID   string
	File     *File
	UseAI    bool
	Polling  bool
	Err      error
	Result   *Result
}

// Config wires the orchestrator. NewTracker and StartPoller default to the
// progress and polling packages.
type Config struct {
	Service        Service
	Entitlements   Entitlements
	Validator      *validate.Validator
	Clock          clock.Clock
	Log            logging.Logger
	Dialer         progress.Dialer
	ChannelOptions progress.Options
	PollOptions    polling.Options

	NewTracker  func(h progress.Handlers) Tracker
	StartPoller func(ctx context.Context, fileID string, onEvent func(models.ProgressEvent)) Poller

	// OnChange receives every state change. It is called without locks
	// held and may call back into the Orchestrator.
	OnChange func(Snapshot)
}

type Orchestrator struct {
	svc       Service
	ent       Entitlements
	validator *validate.Validator
	log       logging.Logger
	newTrk    func(progress.Handlers) Tracker
	startPoll func(context.Context, string, func(models.ProgressEvent)) Poller
	onChange  func(Snapshot)

	mu        sync.Mutex
	snap      Snapshot
	gen       uint64
	starting  bool
	closed    bool
	tracker   Tracker
	poller    Poller
	jobCancel context.CancelFunc
	pending   *Result
}

func New(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Log == nil {
		cfg.Log = logging.Nop()
	}
	if cfg.Validator == nil {
		cfg.Validator = validate.New(0)
	}
	o := &Orchestrator{
		svc:       cfg.Service,
		ent:       cfg.Entitlements,
		validator: cfg.Validator,
		log:       cfg.Log.With("component", "upload"),
		newTrk:    cfg.NewTracker,
		startPoll: cfg.StartPoller,
		onChange:  cfg.OnChange,
	}
	if o.newTrk == nil {
		o.newTrk = func(h progress.Handlers) Tracker {
			return progress.New(cfg.Dialer, cfg.Service.ProgressURL, cfg.Clock, cfg.Log, cfg.ChannelOptions, h)
		}
	}
	if o.startPoll == nil {
		o.startPoll = func(ctx context.Context, fileID string, fn func(models.ProgressEvent)) Poller {
			return polling.Start(ctx, cfg.Service, fileID, cfg.Clock, cfg.Log, cfg.PollOptions, fn)
		}
	}
	o.snap = Snapshot{Status: StatusIdle, Message: idleMessage(nil)}
	return o
}

func idleMessage(f *File) string {
	if f == nil {
		return "Select a file to start"
	}
	return "Ready to upload"
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// SelectFile picks the file for the next job and resets to idle.
func (o *Orchestrator) SelectFile(f File) error {
	return o.reset(func(s *Snapshot) {
		s.File = &f
	})
}

// SetUseAI chooses the AI pipeline for the next job.
func (o *Orchestrator) SetUseAI(on bool) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.starting || o.snap.Status.Active() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.snap.UseAI = on
	snap := o.snap
	o.mu.Unlock()

	o.emit(snap)
	return nil
}

// Retry returns to idle, keeping the selected file. Any tracking still
// running for the previous job is torn down.
func (o *Orchestrator) Retry() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	trk, poll, cancel := o.detachLocked()
	o.gen++
	o.starting = false
	o.pending = nil
	o.snap = Snapshot{Status: StatusIdle, File: o.snap.File, UseAI: o.snap.UseAI, Message: idleMessage(o.snap.File)}
	snap := o.snap
	o.mu.Unlock()

	teardown(trk, poll, cancel)
	o.emit(snap)
	return nil
}

func (o *Orchestrator) reset(fn func(s *Snapshot)) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.starting || o.snap.Status.Active() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.gen++
	next := Snapshot{Status: StatusIdle, File: o.snap.File, UseAI: o.snap.UseAI}
	fn(&next)
	next.Message = idleMessage(next.File)
	o.snap = next
	snap := o.snap
	o.mu.Unlock()

	o.emit(snap)
	return nil
}

// Submit starts a job for the selected file. It returns once the job is
// being tracked; progress then arrives through OnChange. ctx bounds the
// whole job, tracking included. A *DeniedError leaves the state untouched;
// validation and upload errors move to StatusFailed.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.starting || o.snap.Status.Active():
		o.mu.Unlock()
		return ErrBusy
	case o.snap.File == nil:
		o.mu.Unlock()
		return ErrNoFile
	}
	o.starting = true
	file := *o.snap.File
	useAI := o.snap.UseAI
	o.mu.Unlock()

	if _, err := o.validator.ValidateFile(file.Name, file.Size); err != nil {
		o.log.Info(ctx, "file rejected", "file", file.Name, "size", file.Size, "error", err)
		o.failStart(err)
		return err
	}

	if d := o.ent.CanUpload(ctx, useAI); !d.Allowed {
		o.mu.Lock()
		o.starting = false
		o.mu.Unlock()
		o.log.Info(ctx, "upload denied", "reason", d.Reason, "ai", useAI)
		return &DeniedError{Decision: d}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.closed || !o.starting {
		closed := o.closed
		o.mu.Unlock()
		cancel()
		if closed {
			return ErrClosed
		}
		return ErrAborted
	}
	o.starting = false
	o.gen++
	gen := o.gen
	o.jobCancel = cancel
	o.snap = Snapshot{Status: StatusUploading, Progress: 0, Message: "Uploading file...", File: &file, UseAI: useAI}
	snap := o.snap
	o.mu.Unlock()
	o.emit(snap)

	resp, err := o.svc.Upload(jobCtx, models.UploadRequest{Path: file.Path, Filename: file.Name, UseAI: useAI})
	if err != nil {
		if !o.finish(gen, StatusFailed, "Upload failed.", err) {
			return ErrClosed
		}
		o.log.Warn(ctx, "upload failed", "file", file.Name, "error", err)
		return err
	}

	trk := o.newTrk(o.handlers(gen))
	if !o.update(gen, func(s *Snapshot) {
		s.Status = StatusConnecting
		s.Progress = 10
		s.Message = "Connecting to live progress..."
		s.FileID = resp.FileID
	}, func() {
		o.tracker = trk
		o.pending = &Result{FileID: resp.FileID, Filename: file.Name, UsedAI: useAI, ProcessingType: resp.ProcessingType}
	}) {
		return ErrClosed
	}
	o.log.Info(ctx, "upload accepted", "file_id", resp.FileID, "processing_type", resp.ProcessingType)

	if err := trk.Connect(jobCtx, resp.FileID); err != nil {
		o.fallback(jobCtx, gen, trk, resp.FileID, err)
	}
	return nil
}

// fallback replaces a channel that could not be opened with polling.
func (o *Orchestrator) fallback(ctx context.Context, gen uint64, trk Tracker, fileID string, cause error) {
	trk.Disconnect()

	o.mu.Lock()
	if o.closed || gen != o.gen || o.snap.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.tracker = nil
	o.mu.Unlock()

	o.log.Warn(ctx, "progress channel unavailable, polling instead", "file_id", fileID, "error", cause)
	poll := o.startPoll(ctx, fileID, func(ev models.ProgressEvent) { o.handleEvent(gen, ev) })

	if !o.update(gen, func(s *Snapshot) {
		s.Status = StatusProcessing
		s.Progress = max(s.Progress, 20)
		s.Message = "Converting... (polling)"
		s.Polling = true
	}, func() { o.poller = poll }) {
		poll.Stop()
	}
}

func (o *Orchestrator) handlers(gen uint64) progress.Handlers {
	return progress.Handlers{
		OnProgress: func(ev models.ProgressEvent) { o.handleEvent(gen, ev) },
		OnConnect: func() {
			o.update(gen, func(s *Snapshot) {
				if s.Status == StatusConnecting {
					s.Status = StatusProcessing
					s.Message = "Conversion started..."
				}
			}, nil)
		},
		OnDisconnect: func() {
			o.log.Debug(context.Background(), "progress channel dropped", "gen", gen)
		},
		OnError: func(err error) {
			o.finish(gen, StatusFailed, "Lost connection to the conversion service.", fmt.Errorf("%w: %w", ErrConnectionLost, err))
		},
	}
}

// handleEvent applies one progress event of job gen.
func (o *Orchestrator) handleEvent(gen uint64, ev models.ProgressEvent) {
	switch ev.Status {
	case models.StatusCompleted:
		o.finish(gen, StatusCompleted, orDefault(ev.Message, "Conversion complete"), nil)
	case models.StatusFailed:
		msg := orDefault(ev.Message, "Conversion failed.")
		o.finish(gen, StatusFailed, msg, fmt.Errorf("%w: %s", ErrConversion, msg))
	case models.StatusCancelled:
		o.finish(gen, StatusCancelled, orDefault(ev.Message, "Conversion cancelled."), nil)
	default:
		o.update(gen, func(s *Snapshot) {
			s.Status = StatusProcessing
			s.Progress = max(s.Progress, clamp(ev.Progress))
			if ev.Message != "" {
				s.Message = ev.Message
			}
		}, nil)
	}
}

// update mutates the snapshot of job gen unless it is stale or finished.
// locked runs under the lock after fn.
func (o *Orchestrator) update(gen uint64, fn func(s *Snapshot), locked func()) bool {
	o.mu.Lock()
	if o.closed || gen != o.gen || o.snap.Status.Terminal() {
		o.mu.Unlock()
		return false
	}
	fn(&o.snap)
	if locked != nil {
		locked()
	}
	snap := o.snap
	o.mu.Unlock()

	o.emit(snap)
	return true
}

// finish moves job gen to a terminal status once; later calls are no-ops.
// It reports whether this call made the transition.
func (o *Orchestrator) finish(gen uint64, status Status, msg string, cause error) bool {
	o.mu.Lock()
	if o.closed || gen != o.gen || o.snap.Status.Terminal() {
		o.mu.Unlock()
		return false
	}
	trk, poll, cancel := o.detachLocked()
	o.snap.Status = status
	o.snap.Message = msg
	o.snap.Err = cause
	o.snap.Polling = false
	result := o.pending
	o.pending = nil
	if status == StatusCompleted {
		o.snap.Progress = 100
	} else {
		o.snap.Progress = 0
	}
	useAI := o.snap.UseAI
	o.mu.Unlock()

	teardown(trk, poll, cancel)

	if status == StatusCompleted {
		// Usage accounting must not keep the result from the user.
		if err := o.ent.RecordUpload(context.Background(), useAI); err != nil {
			o.log.Warn(context.Background(), "recording upload failed", "error", err)
		}
	}

	o.mu.Lock()
	if status == StatusCompleted && gen == o.gen && !o.closed {
		o.snap.Result = result
	}
	snap := o.snap
	o.mu.Unlock()

	o.log.Info(context.Background(), "conversion finished", "status", status, "file_id", snap.FileID)
	o.emit(snap)
	return true
}

func (o *Orchestrator) failStart(err error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.starting = false
	o.gen++
	o.snap = Snapshot{Status: StatusFailed, File: o.snap.File, UseAI: o.snap.UseAI, Message: err.Error(), Err: err}
	var ve *validate.Error
	if errors.As(err, &ve) {
		o.snap.Message = ve.Message
	}
	snap := o.snap
	o.mu.Unlock()

	o.emit(snap)
}

// Cancel asks the server to stop the current job. It only works while the
// progress channel is connected; polling has no cancel request.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	trk := o.tracker
	status := o.snap.Status
	o.mu.Unlock()

	if status != StatusProcessing || trk == nil || !trk.IsConnected() {
		return ErrNotCancellable
	}
	if err := trk.Cancel(); err != nil {
		return fmt.Errorf("%w: %w", ErrNotCancellable, err)
	}
	o.log.Info(context.Background(), "cancel requested")
	return nil
}

// Close tears down any tracking and drops every later callback.
// Idempotent.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.gen++
	trk, poll, cancel := o.detachLocked()
	o.mu.Unlock()

	teardown(trk, poll, cancel)
}

// Tracking reports the live tracking resources, for status displays.
func (o *Orchestrator) Tracking() (connected, polling bool) {
	o.mu.Lock()
	trk, poll := o.tracker, o.poller
	o.mu.Unlock()
	return trk != nil && trk.IsConnected(), poll != nil && poll.Running()
}

func (o *Orchestrator) detachLocked() (Tracker, Poller, context.CancelFunc) {
	trk, poll, cancel := o.tracker, o.poller, o.jobCancel
	o.tracker, o.poller, o.jobCancel = nil, nil, nil
	return trk, poll, cancel
}

func teardown(trk Tracker, poll Poller, cancel context.CancelFunc) {
	if trk != nil {
		trk.Disconnect()
	}
	if poll != nil {
		poll.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) emit(s Snapshot) {
	if o.onChange != nil {
		o.onChange(s)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clamp(p int) int {
	return min(max(p, 0), 100)
}
