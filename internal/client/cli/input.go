package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// askYesNo prints prompt to w and reads one answer from sc, the scanner
// the REPL itself reads from. Anything but y/yes is a no, EOF included.
func askYesNo(sc *bufio.Scanner, w io.Writer, prompt string) bool {
	if _, err := fmt.Fprint(w, prompt+" [y/N]\n> "); err != nil {
		return false
	}
	if !sc.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true
	}
	return false
}
