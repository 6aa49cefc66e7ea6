package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/pdfxcel/internal/client/upload"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(int(f.Fd()))
}

const barWidth = 30

func renderBar(p int) string {
	p = min(max(p, 0), 100)
	filled := p * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}

func formatLine(s upload.Snapshot) string {
	line := fmt.Sprintf("%s %3d%% %s", renderBar(s.Progress), s.Progress, s.Message)
	if s.Status == upload.StatusFailed && s.Err != nil {
		if d := describeError(s.Err); d != s.Message {
			line += " " + d
		}
	}
	return line
}

// progressView prints orchestrator snapshots. On a terminal the active
// states redraw one line in place; otherwise a line is printed whenever
// the status or message changes.
type progressView struct {
	a   *App
	tty bool

	mu          sync.Mutex
	inline      bool
	lastStatus  upload.Status
	lastMessage string
}

func newProgressView(a *App, tty bool) *progressView {
	return &progressView{a: a, tty: tty}
}

func (v *progressView) render(s upload.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Status == upload.StatusIdle {
		v.lastStatus, v.lastMessage = s.Status, ""
		return
	}
	line := formatLine(s)

	if v.tty {
		switch {
		case s.Status.Active():
			v.a.printf("\r%s\x1b[K", line)
			v.inline = true
		case v.inline:
			v.a.printf("\r%s\x1b[K\n", line)
			v.inline = false
		default:
			v.a.println(line)
		}
		return
	}

	if s.Status == v.lastStatus && s.Message == v.lastMessage {
		return
	}
	v.lastStatus, v.lastMessage = s.Status, s.Message
	v.a.println(line)
}
