package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/cache"
	"github.com/dmitrijs2005/pdfxcel/internal/client/client"
	"github.com/dmitrijs2005/pdfxcel/internal/client/config"
	"github.com/dmitrijs2005/pdfxcel/internal/client/crash"
	"github.com/dmitrijs2005/pdfxcel/internal/client/entitlement"
	"github.com/dmitrijs2005/pdfxcel/internal/client/export"
	"github.com/dmitrijs2005/pdfxcel/internal/client/polling"
	"github.com/dmitrijs2005/pdfxcel/internal/client/progress"
	"github.com/dmitrijs2005/pdfxcel/internal/client/services"
	"github.com/dmitrijs2005/pdfxcel/internal/client/upload"
	"github.com/dmitrijs2005/pdfxcel/internal/client/validate"
	"github.com/dmitrijs2005/pdfxcel/internal/clock"
	"github.com/dmitrijs2005/pdfxcel/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config       *config.Config
	log          logging.Logger
	repos        *client.Repositories
	api          client.Client
	session      services.SessionService
	history      services.HistoryService
	results      services.ResultService
	entitlements *entitlement.Store
	crashes      *crash.Reporter
	validator    *validate.Validator
	uploads      *upload.Orchestrator
	view         *progressView

	outMu sync.Mutex
	out   io.Writer
	in    *bufio.Scanner

	mu         sync.Mutex
	mode       Mode
	lastResult string
}

// NewApp opens the local database and wires every service. Output goes to
// stdout and commands are read from stdin.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	return newApp(ctx, c, log, os.Stdin, os.Stdout, isTerminalWriter(os.Stdout))
}

func newApp(ctx context.Context, c *config.Config, log logging.Logger, in io.Reader, out io.Writer, tty bool) (*App, error) {
	repos, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DatabasePath, "error", err)
		return nil, err
	}

	clk := clock.Real{}
	cc := cache.New(repos.Cache, clk, log)
	session := services.NewSessionService(repos.Metadata, cc, log)

	api, err := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, session.ID)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	sink, err := export.NewSink(ctx, c)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	a := &App{
		config:       c,
		log:          log.With("component", "cli"),
		repos:        repos,
		api:          api,
		session:      session,
		history:      services.NewHistoryService(api, session, cc, log),
		results:      services.NewResultService(api, cc, sink, log),
		entitlements: entitlement.NewStore(repos.Metadata, clk, log, c.FreeDailyUploads),
		crashes:      crash.NewReporter(repos.Crashes, clk, log, crash.DefaultCapacity),
		validator:    validate.New(c.MaxFileSize),
		out:          out,
		in:           bufio.NewScanner(in),
		mode:         ModeOffline,
	}
	a.view = newProgressView(a, tty)

	a.uploads = upload.New(upload.Config{
		Service:      api,
		Entitlements: a.entitlements,
		Validator:    a.validator,
		Clock:        clk,
		Log:          log,
		Dialer:       progress.NewWSDialer(c.HandshakeTimeout),
		ChannelOptions: progress.Options{
			HandshakeTimeout: c.HandshakeTimeout,
			BaseDelay:        c.ReconnectBaseDelay,
			MaxAttempts:      c.MaxReconnectAttempts,
			PingInterval:     c.PingInterval,
		},
		PollOptions: polling.Options{Interval: c.PollInterval, Ceiling: c.PollCeiling},
		OnChange:    a.onUploadChange,
	})
	return a, nil
}

// Close stops any tracking and closes the database.
func (a *App) Close() error {
	a.uploads.Close()
	return a.repos.Close()
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(context.Background(), "connectivity changed", "mode", mode)
		a.println("Switched to", mode, "mode")
	}
}

func (a *App) Run(ctx context.Context) {
	a.println("Welcome to pdfxcel CLI (type 'help' for commands)")

	a.checkOnline(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.in)
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.api.Ping(ctx)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// StartOnlineStatusWatcher pings the service every interval until ctx is
// done and reports mode changes.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) getStatus() string {
	s := string(a.Mode())
	u := a.entitlements.Usage(context.Background())
	if u.Plan == entitlement.PlanPro {
		s += " PRO"
	} else {
		s += fmt.Sprintf(" FREE %d/%d", u.Uploads, a.entitlements.DailyLimit())
	}
	if st := a.uploads.Snapshot().Status; st != upload.StatusIdle {
		s += " " + string(st)
	}
	return fmt.Sprintf("(%s)", s)
}

// recoverCommand keeps a panicking command from ending the session.
func (a *App) recoverCommand(ctx context.Context, cmd string) {
	if v := recover(); v != nil {
		a.crashes.ReportPanic(ctx, "command "+cmd, v)
		a.println("Internal error; a crash report was saved (see 'crashes').")
	}
}

func (a *App) onUploadChange(s upload.Snapshot) {
	a.view.render(s)

	if s.Status != upload.StatusCompleted || s.Result == nil {
		return
	}
	a.mu.Lock()
	a.lastResult = s.Result.FileID
	a.mu.Unlock()

	a.history.Invalidate(context.Background())
	kind := "basic extraction"
	if s.Result.UsedAI {
		kind = "AI analysis"
	}
	a.printf("Conversion complete (%s). Try 'preview' or 'save'.\n", kind)
}

func (a *App) resultID(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastResult == "" {
		return "", errNoResult
	}
	return a.lastResult, nil
}
