package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/entitlement"
	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
	"github.com/dmitrijs2005/pdfxcel/internal/client/upload"
	"github.com/dmitrijs2005/pdfxcel/internal/client/validate"
)

var (
	errUsage    = errors.New("invalid arguments")
	errNoResult = errors.New("no finished conversion yet; pass a file id")
)

// previewLimit caps the rows printed by preview.
const previewLimit = 10

func usageErr(form string) error {
	return fmt.Errorf("%w, usage: %s", errUsage, form)
}

func onOff(args []string, form string) (bool, error) {
	if len(args) != 1 {
		return false, usageErr(form)
	}
	switch strings.ToLower(args[0]) {
	case "on", "yes", "true":
		return true, nil
	case "off", "no", "false":
		return false, nil
	}
	return false, usageErr(form)
}

func (a *App) Pick(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageErr("pick <path>")
	}
	path := strings.Join(args, " ")

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	name := filepath.Base(path)
	pre := a.validator.PreUpload(name, fi.Size())
	if !pre.CanUpload() {
		return pre.Err
	}
	if err := a.uploads.SelectFile(upload.File{Path: path, Name: name, Size: fi.Size()}); err != nil {
		return err
	}

	a.printf("Selected %s (%s)\n", name, pre.Info.FormattedSize)
	if pre.Warning != "" {
		a.println(pre.Warning)
	}
	return nil
}

func (a *App) AI(ctx context.Context, args []string) error {
	on, err := onOff(args, "ai on|off")
	if err != nil {
		return err
	}
	if err := a.uploads.SetUseAI(on); err != nil {
		return err
	}
	if !on {
		a.println("AI analysis off: basic extraction will be used.")
		return nil
	}

	d := a.entitlements.AIAvailability(ctx)
	switch d.Availability {
	case entitlement.AIProUnlimited:
		a.println("AI analysis on (PRO).")
	case entitlement.AIFreeAvailable:
		a.println("AI analysis on: today's free AI conversion is unlocked.")
	case entitlement.AINeedAd:
		a.println("AI analysis on. Type 'watchad' to unlock today's free AI conversion.")
	case entitlement.AINeedSubscription:
		a.printf("AI analysis on, but today's free AI conversion is used. Available again %s.\n",
			d.NextAvailable.Format(time.Kitchen))
	}
	return nil
}

func (a *App) Upload(ctx context.Context, args []string) error {
	err := a.uploads.Submit(ctx)
	if err == nil {
		return nil
	}

	var denied *upload.DeniedError
	switch {
	case errors.As(err, &denied),
		errors.Is(err, upload.ErrNoFile),
		errors.Is(err, upload.ErrBusy),
		errors.Is(err, upload.ErrClosed):
		return err
	}
	// Failed submissions are already shown by the progress view.
	a.log.Debug(ctx, "submit failed", "error", err)
	return nil
}

func (a *App) Cancel(ctx context.Context, args []string) error {
	if _, polling := a.uploads.Tracking(); polling {
		return fmt.Errorf("%w: live progress is unavailable", upload.ErrNotCancellable)
	}
	if !askYesNo(a.in, a.out, "Cancel the running conversion?") {
		return nil
	}
	if err := a.uploads.Cancel(); err != nil {
		return err
	}
	a.println("Cancellation requested.")
	return nil
}

func (a *App) Retry(ctx context.Context, args []string) error {
	if err := a.uploads.Retry(); err != nil {
		return err
	}
	a.println("Ready. Type 'upload' to try again.")
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	s := a.uploads.Snapshot()
	connected, polling := a.uploads.Tracking()

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	a.outMu.Lock()
	defer a.outMu.Unlock()

	fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	fmt.Fprintf(w, "Progress:\t%d%%\n", s.Progress)
	fmt.Fprintf(w, "Message:\t%s\n", s.Message)
	if s.File != nil {
		fmt.Fprintf(w, "File:\t%s (%s)\n", s.File.Name, validate.FormatFileSize(s.File.Size))
	}
	fmt.Fprintf(w, "AI:\t%t\n", s.UseAI)
	if s.FileID != "" {
		fmt.Fprintf(w, "File ID:\t%s\n", s.FileID)
	}
	switch {
	case connected:
		fmt.Fprintf(w, "Tracking:\tlive\n")
	case polling:
		fmt.Fprintf(w, "Tracking:\tpolling\n")
	}
	if s.Err != nil {
		fmt.Fprintf(w, "Error:\t%s\n", describeError(s.Err))
	}
	return w.Flush()
}

func (a *App) Preview(ctx context.Context, args []string) error {
	id, err := a.resultID(args)
	if err != nil {
		return err
	}
	p, err := a.results.Preview(ctx, id)
	if err != nil {
		return err
	}
	if len(p.Rows) == 0 {
		a.println("No transactions were extracted.")
		return nil
	}

	a.outMu.Lock()
	defer a.outMu.Unlock()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(p.Headers, "\t"))
	for i, r := range p.Rows {
		if i == previewLimit {
			break
		}
		cells := make([]string, len(p.Headers))
		for j, h := range p.Headers {
			if v, ok := r.Get(h); ok && v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(p.Rows) > previewLimit {
		fmt.Fprintf(a.out, "... %d more rows\n", len(p.Rows)-previewLimit)
	}
	return nil
}

func (a *App) Save(ctx context.Context, args []string) error {
	id, err := a.resultID(args)
	if err != nil {
		return err
	}
	loc, err := a.results.Save(ctx, id)
	if err != nil {
		return err
	}
	a.results.Cleanup(ctx, id)
	a.history.Invalidate(ctx)
	a.printf("Saved to %s\n", loc)
	return nil
}

func (a *App) History(ctx context.Context, args []string) error {
	refresh := len(args) > 0 && args[0] == "refresh"
	h, err := a.history.List(ctx, refresh)
	if err != nil {
		return err
	}
	if len(h.Files) == 0 {
		a.println("No conversions in this session.")
		return nil
	}

	a.outMu.Lock()
	defer a.outMu.Unlock()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tSTATUS\tTYPE\tUPLOADED")
	for _, it := range h.Files {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.FileID, it.OriginalFilename, it.Status,
			it.ProcessingType, formatTime(it.UploadTime))
	}
	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func (a *App) Info(ctx context.Context, args []string) error {
	id, err := a.resultID(args)
	if err != nil {
		return err
	}
	it, err := a.history.FileInfo(ctx, id)
	if err != nil {
		return err
	}
	printItem(a, it)
	return nil
}

func printItem(a *App, it *models.HistoryItem) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", it.FileID)
	fmt.Fprintf(w, "File:\t%s\n", it.OriginalFilename)
	if it.ConvertedFilename != "" {
		fmt.Fprintf(w, "Excel:\t%s\n", it.ConvertedFilename)
	}
	fmt.Fprintf(w, "Status:\t%s\n", it.Status)
	fmt.Fprintf(w, "Type:\t%s\n", it.ProcessingType)
	if it.FileSize > 0 {
		fmt.Fprintf(w, "Size:\t%s\n", validate.FormatFileSize(it.FileSize))
	}
	fmt.Fprintf(w, "Uploaded:\t%s\n", formatTime(it.UploadTime))
	_ = w.Flush()
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr("delete <id>")
	}
	if !askYesNo(a.in, a.out, fmt.Sprintf("Delete %s from history?", args[0])) {
		return nil
	}
	if err := a.history.Delete(ctx, args[0]); err != nil {
		return err
	}
	a.println("Deleted.")
	return nil
}

func (a *App) Redownload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr("redownload <id>")
	}
	u, err := a.history.PrepareRedownload(ctx, args[0])
	if err != nil {
		return err
	}
	a.printf("Download ready: %s\nType 'save %s' to export it.\n", u, args[0])
	return nil
}

func (a *App) Stats(ctx context.Context, args []string) error {
	st, err := a.history.Stats(ctx)
	if err != nil {
		return err
	}
	a.printf("Files: %d (completed %d, failed %d)\nAI: %d  Basic: %d\n",
		st.TotalFiles, st.CompletedFiles, st.FailedFiles, st.AIConversions, st.BasicConversions)
	return nil
}

func formatRemaining(n int) string {
	if n == entitlement.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func (a *App) Usage(ctx context.Context, args []string) error {
	u := a.entitlements.Usage(ctx)
	a.printf("Plan: %s\nUploads today: %d (remaining %s)\nAI uploads today: %d (remaining %s)\n",
		u.Plan, u.Uploads, formatRemaining(u.RemainingUploads), u.AIUploads, formatRemaining(u.RemainingAIUploads))
	if !u.NextReset.IsZero() {
		a.printf("Resets at %s\n", u.NextReset.Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *App) WatchAd(ctx context.Context, args []string) error {
	d := a.entitlements.AIAvailability(ctx)
	switch d.Availability {
	case entitlement.AIProUnlimited:
		a.println("PRO plan: AI is already unlimited.")
		return nil
	case entitlement.AINeedSubscription:
		a.println("Today's free AI conversion is already used.")
		return nil
	}
	if err := a.entitlements.MarkAdWatched(ctx); err != nil {
		return err
	}
	a.println("Thanks for watching! One AI conversion is unlocked for today.")
	return nil
}

func (a *App) Pro(ctx context.Context, args []string) error {
	on, err := onOff(args, "pro on|off")
	if err != nil {
		return err
	}
	if err := a.entitlements.SetProUser(ctx, on); err != nil {
		return err
	}
	if on {
		a.println("PRO plan enabled.")
	} else {
		a.println("Free plan enabled.")
	}
	return nil
}

func (a *App) NewSession(ctx context.Context, args []string) error {
	if a.uploads.Snapshot().Status.Active() {
		return upload.ErrBusy
	}
	id, err := a.session.NewSession(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.lastResult = ""
	a.mu.Unlock()
	a.printf("New session %s\n", id)
	return nil
}

func (a *App) Crashes(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "clear" {
		if err := a.crashes.Clear(ctx); err != nil {
			return err
		}
		a.println("Crash reports cleared.")
		return nil
	}

	list, err := a.crashes.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.println("No crash reports.")
		return nil
	}
	for _, r := range list {
		a.printf("%s  %s  %s: %s\n", r.OccurredAt.Local().Format(time.DateTime), r.ID, r.Context, r.Message)
	}
	return nil
}
