package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/pdfxcel/internal/client/client"
	"github.com/dmitrijs2005/pdfxcel/internal/client/entitlement"
	"github.com/dmitrijs2005/pdfxcel/internal/client/upload"
	"github.com/dmitrijs2005/pdfxcel/internal/client/validate"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies it.
type execIface interface {
	Pick(ctx context.Context, args []string) error
	AI(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Cancel(ctx context.Context, args []string) error
	Retry(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Preview(ctx context.Context, args []string) error
	Save(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Info(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Redownload(ctx context.Context, args []string) error
	Stats(ctx context.Context, args []string) error
	Usage(ctx context.Context, args []string) error
	WatchAd(ctx context.Context, args []string) error
	Pro(ctx context.Context, args []string) error
	NewSession(ctx context.Context, args []string) error
	Crashes(ctx context.Context, args []string) error

	recoverCommand(ctx context.Context, cmd string)
}

const helpText = `Available commands:
  pick <path>        select a PDF statement
  ai on|off          use AI analysis for the next upload
  upload             convert the selected file
  cancel             stop the running conversion
  retry              start over with the same file
  status             show the current conversion
  preview [id]       show extracted rows
  save [id]          export the Excel file
  history [refresh]  list conversions in this session
  info <id>          show one conversion
  delete <id>        remove a conversion from history
  redownload <id>    make an old conversion downloadable again
  stats              session statistics
  usage              today's plan usage
  watchad            unlock one AI conversion for today
  pro on|off         toggle the PRO plan
  newsession         start a new session
  crashes [clear]    show saved crash reports
  exit | quit        leave the program`

// runREPL reads commands from scanner until EOF, exit or quit. The prompt
// shows statusFn. Command errors are printed and the loop continues; a
// panicking command is recorded as a crash report.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("pdfxcel %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "help", "?":
			printlnFn(helpText)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		fn := lookup(a, cmd)
		if fn == nil {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err := dispatch(ctx, a, cmd, args, fn); err != nil {
			printlnFn("Error:", describeError(err))
		}
	}
}

func lookup(a execIface, cmd string) func(context.Context, []string) error {
	switch cmd {
	case "pick":
		return a.Pick
	case "ai":
		return a.AI
	case "upload", "u":
		return a.Upload
	case "cancel":
		return a.Cancel
	case "retry":
		return a.Retry
	case "status", "s":
		return a.Status
	case "preview":
		return a.Preview
	case "save":
		return a.Save
	case "history", "h":
		return a.History
	case "info":
		return a.Info
	case "delete":
		return a.Delete
	case "redownload":
		return a.Redownload
	case "stats":
		return a.Stats
	case "usage":
		return a.Usage
	case "watchad":
		return a.WatchAd
	case "pro":
		return a.Pro
	case "newsession":
		return a.NewSession
	case "crashes":
		return a.Crashes
	}
	return nil
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string, fn func(context.Context, []string) error) error {
	defer a.recoverCommand(ctx, cmd)
	return fn(ctx, args)
}

// describeError turns an error into a message for the user.
func describeError(err error) string {
	var (
		denied *upload.DeniedError
		ve     *validate.Error
		apiErr *client.APIError
	)
	switch {
	case errors.As(err, &denied):
		msg := denied.Decision.Message
		if denied.Decision.Reason == entitlement.ReasonAIGate && denied.Decision.AI.Availability == entitlement.AINeedAd {
			msg += " Type 'watchad' to unlock it, or 'ai off' for basic extraction."
		}
		return msg
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &apiErr):
		return apiErr.Title() + ". " + apiErr.NextStep()
	}
	return err.Error()
}
