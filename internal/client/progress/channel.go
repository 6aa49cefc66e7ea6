package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
	"github.com/gorilla/websocket"
)

var (
	ErrHandshake            = errors.New("progress channel handshake failed")
	ErrMaxReconnectAttempts = errors.New("maximum reconnection attempts reached")
	ErrNotConnected         = errors.New("progress channel not connected")
	ErrClosed               = errors.New("progress channel closed")
	ErrAlreadyStarted       = errors.New("progress channel already started")
)

// State of a Channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Client to server actions.
const (
	ActionPing          = "ping"
	ActionCancelRequest = "cancel_request"
	ActionStatusRequest = "status_request"
	actionPong          = "pong"
)

// Options tune the connection policy. Zero fields take the defaults.
type Options struct {
	HandshakeTimeout time.Duration
	BaseDelay        time.Duration
	MaxAttempts      int
	PingInterval     time.Duration
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

// Handlers receive channel events. They run without the channel lock held
// and may call back into the Channel (Disconnect in particular).
type Handlers struct {
	OnProgress   func(models.ProgressEvent)
	OnConnect    func()
	OnDisconnect func()
	OnError      func(error)
}

// Channel is one push connection for one job.
type Channel struct {
	dialer Dialer
	urlFor func(fileID string) string
	clock  clock.Clock
	log    logging.Logger
	opts   Options
	h      Handlers

	mu         sync.Mutex
	state      State
	fileID     string
	conn       Conn
	gen        uint64
	attempts   int
	manual     bool
	pingTimer  clock.Timer
	retryTimer clock.Timer
	dialCancel context.CancelFunc

	writeMu sync.Mutex
}

// New builds an idle Channel. urlFor maps a job id to the endpoint URL.
func New(dialer Dialer, urlFor func(string) string, clk clock.Clock, log logging.Logger, opts Options, h Handlers) *Channel {
	return &Channel{
		dialer: dialer,
		urlFor: urlFor,
		clock:  clk,
		log:    log.With("component", "progress"),
		opts:   opts.withDefaults(),
		h:      h,
	}
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a connection is open.
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected && c.conn != nil
}

// Attempts returns the reconnect attempts made since the last successful open.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// FileID returns the job this channel tracks.
func (c *Channel) FileID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileID
}

// Connect opens the channel for fileID and returns once the handshake is
// done. It can be called once per Channel.
func (c *Channel) Connect(ctx context.Context, fileID string) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	default:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateConnecting
	c.fileID = fileID
	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	c.dialCancel = cancel
	c.mu.Unlock()

	conn, err := c.dialer.Dial(dctx, c.urlFor(fileID))
	cancel()

	if err != nil {
		c.mu.Lock()
		c.dialCancel = nil
		if c.manual {
			c.mu.Unlock()
			return ErrClosed
		}
		c.state = StateFailed
		c.mu.Unlock()

		c.log.Warn(ctx, "progress channel handshake failed", "file_id", fileID, "error", err)
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	if !c.opened(conn) {
		return ErrClosed
	}
	c.log.Info(ctx, "progress channel connected", "file_id", fileID)
	return nil
}

// opened installs conn as the live connection and starts its read loop.
// It returns false if the channel was disconnected while dialing.
func (c *Channel) opened(conn Conn) bool {
	c.mu.Lock()
	c.dialCancel = nil
	if c.manual {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.attempts = 0
	c.state = StateConnected
	c.schedulePingLocked(gen)
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	if c.h.OnConnect != nil {
		c.h.OnConnect()
	}
	return true
}

func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.closed(gen, err)
			return
		}
		c.dispatch(gen, data)
	}
}

type inbound struct {
	models.ProgressEvent
	Action string `json:"action"`
}

func (c *Channel) dispatch(gen uint64, data []byte) {
	c.mu.Lock()
	live := gen == c.gen && c.state == StateConnected
	c.mu.Unlock()
	if !live {
		return
	}

	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn(context.Background(), "dropping malformed progress message", "error", err, "size", len(data))
		return
	}
	if msg.Action == actionPong {
		return
	}
	if msg.Status == "" {
		c.log.Warn(context.Background(), "dropping progress message without status", "size", len(data))
		return
	}

	if c.h.OnProgress != nil {
		c.h.OnProgress(msg.ProgressEvent)
	}
}

// closed handles the end of the connection identified by gen.
func (c *Channel) closed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.stopPingLocked()
	if c.manual {
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	fileID := c.fileID
	terminal := c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.log.Warn(context.Background(), "progress channel closed unexpectedly", "file_id", fileID, "error", cause)
	if c.h.OnDisconnect != nil {
		c.h.OnDisconnect()
	}
	if terminal && c.h.OnError != nil {
		c.h.OnError(ErrMaxReconnectAttempts)
	}
}

// scheduleReconnectLocked arms the next reconnect or moves to Failed. It
// reports whether the attempts are exhausted.
func (c *Channel) scheduleReconnectLocked() bool {
	if c.attempts >= c.opts.MaxAttempts {
		c.state = StateFailed
		return true
	}
	c.attempts++
	delay := c.opts.BaseDelay << (c.attempts - 1)
	c.state = StateReconnecting

	attempt := c.attempts
	c.retryTimer = c.clock.AfterFunc(delay, func() { c.reconnect(attempt) })
	c.log.Info(context.Background(), "progress channel reconnect scheduled",
		"file_id", c.fileID, "attempt", attempt, "max", c.opts.MaxAttempts, "delay", delay)
	return false
}

func (c *Channel) reconnect(attempt int) {
	c.mu.Lock()
	if c.manual || c.state != StateReconnecting || c.attempts != attempt {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.state = StateConnecting
	fileID := c.fileID
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	c.dialCancel = cancel
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.urlFor(fileID))
	cancel()

	if err == nil {
		if c.opened(conn) {
			c.log.Info(ctx, "progress channel reconnected", "file_id", fileID, "attempt", attempt)
		}
		return
	}

	c.mu.Lock()
	c.dialCancel = nil
	if c.manual {
		c.mu.Unlock()
		return
	}
	terminal := c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.log.Warn(context.Background(), "progress channel reconnect failed", "file_id", fileID, "attempt", attempt, "error", err)
	if terminal && c.h.OnError != nil {
		c.h.OnError(ErrMaxReconnectAttempts)
	}
}

func (c *Channel) schedulePingLocked(gen uint64) {
	c.pingTimer = c.clock.AfterFunc(c.opts.PingInterval, func() { c.ping(gen) })
}

func (c *Channel) stopPingLocked() {
	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
}

func (c *Channel) ping(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.schedulePingLocked(gen)
	c.mu.Unlock()

	if err := c.send(conn, ActionPing); err != nil {
		c.log.Debug(context.Background(), "ping failed", "error", err)
	}
}

// Cancel asks the server to cancel the job. The server answers with a
// cancelled status event; the connection stays open.
func (c *Channel) Cancel() error {
	return c.request(ActionCancelRequest)
}

// RequestStatus asks the server to resend the current status.
func (c *Channel) RequestStatus() error {
	return c.request(ActionStatusRequest)
}

func (c *Channel) request(action string) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	if err := c.send(conn, action); err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}
	return nil
}

type outbound struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

func (c *Channel) send(conn Conn, action string) error {
	data, err := json.Marshal(outbound{Action: action, Timestamp: c.clock.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Disconnect closes the channel for good: it suppresses reconnects, stops
// every timer and closes the connection if open. Handlers are not invoked
// for the closure. Safe to call repeatedly or before Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	c.manual = true
	c.stopPingLocked()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.state = StateClosed
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Manual disconnect"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}
