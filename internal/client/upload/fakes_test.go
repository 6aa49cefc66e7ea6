package upload

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/pdfxcel/internal/client/entitlement"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/client/progress"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
	wsBase string
}

func (m *MockService) Upload(ctx context.Context, req models.UploadRequest) (*models.UploadResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*models.UploadResponse)
	return resp, args.Error(1)
}

func (m *MockService) ConvertedData(ctx context.Context, fileID string) ([]models.Row, error) {
	args := m.Called(ctx, fileID)
	rows, _ := args.Get(0).([]models.Row)
	return rows, args.Error(1)
}

func (m *MockService) ProgressURL(fileID string) string {
	if m.wsBase != "" {
		return m.wsBase + fileID
	}
	return "ws://test/api/ws/" + fileID
}

type MockEntitlements struct {
	mock.Mock
}

func (m *MockEntitlements) CanUpload(ctx context.Context, wantsAI bool) entitlement.Decision {
	return m.Called(ctx, wantsAI).Get(0).(entitlement.Decision)
}

func (m *MockEntitlements) RecordUpload(ctx context.Context, usedAI bool) error {
	return m.Called(ctx, usedAI).Error(0)
}

type fakeTracker struct {
	mu          sync.Mutex
	h           progress.Handlers
	connectErr  error
	connected   bool
	connects    []string
	disconnects int
	cancels     int
}

func (t *fakeTracker) Connect(_ context.Context, fileID string) error {
	t.mu.Lock()
	t.connects = append(t.connects, fileID)
	if t.connectErr != nil {
		t.mu.Unlock()
		return t.connectErr
	}
	t.connected = true
	h := t.h
	t.mu.Unlock()

	if h.OnConnect != nil {
		h.OnConnect()
	}
	return nil
}

func (t *fakeTracker) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.disconnects++
}

func (t *fakeTracker) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return progress.ErrNotConnected
	}
	t.cancels++
	return nil
}

func (t *fakeTracker) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTracker) push(ev models.ProgressEvent) {
	t.mu.Lock()
	h := t.h
	t.mu.Unlock()
	h.OnProgress(ev)
}

func (t *fakeTracker) fail(err error) {
	t.mu.Lock()
	h := t.h
	t.connected = false
	t.mu.Unlock()
	h.OnError(err)
}

type fakePoller struct {
	mu      sync.Mutex
	fileID  string
	onEvent func(models.ProgressEvent)
	running bool
}

func (p *fakePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
}

func (p *fakePoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakePoller) emit(ev models.ProgressEvent) {
	p.mu.Lock()
	fn := p.onEvent
	p.mu.Unlock()
	fn(ev)
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s.Status)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}
