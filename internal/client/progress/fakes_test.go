package progress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/gorilla/websocket"
)

var errRemoteClosed = errors.New("websocket: close 1006 (abnormal closure)")

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	sent    []outbound
	control [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-f.in:
		return websocket.TextMessage, m, nil
	default:
	}
	select {
	case m := <-f.in:
		return websocket.TextMessage, m, nil
	case <-f.done:
		return 0, nil, errRemoteClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	var m outbound
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed conn")
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.control = append(f.control, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
	return nil
}

// serverClose simulates the peer dropping the connection.
func (f *fakeConn) serverClose() { f.once.Do(func() { close(f.done) }) }

func (f *fakeConn) push(v any) {
	switch m := v.(type) {
	case string:
		f.in <- []byte(m)
	default:
		b, _ := json.Marshal(m)
		f.in <- b
	}
}

func (f *fakeConn) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Action
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	mu       sync.Mutex
	script   []dialResult
	fallback error
	urls     []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.script) == 0 {
		return nil, d.fallback
	}
	r := d.script[0]
	d.script = d.script[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

type recorder struct {
	mu          sync.Mutex
	events      []models.ProgressEvent
	connects    int
	disconnects int
	errs        []error
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnProgress: func(e models.ProgressEvent) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		},
		OnConnect:    func() { r.mu.Lock(); r.connects++; r.mu.Unlock() },
		OnDisconnect: func() { r.mu.Lock(); r.disconnects++; r.mu.Unlock() },
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]models.ProgressEvent, int, int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProgressEvent(nil), r.events...), r.connects, r.disconnects, append([]error(nil), r.errs...)
}
