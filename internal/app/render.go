package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/pterm/pterm"

	"github.com/1ureka/p2pdrop/internal/journal"
	"github.com/1ureka/p2pdrop/internal/util"
)

// FormatEntry renders one session log entry as a single line.
func FormatEntry(e journal.Entry) string {
	stamp := pterm.Gray(e.Time.Format("15:04:05"))

	var who string
	switch e.Sender {
	case journal.Local:
		who = pterm.LightCyan(e.Sender.String())
	case journal.Remote:
		who = pterm.LightGreen(e.Sender.String())
	default:
		who = pterm.Yellow(e.Sender.String())
	}

	line := fmt.Sprintf("%s %s: %s", stamp, who, e.Content)
	if e.File != nil {
		line += pterm.Gray(fmt.Sprintf(" (%s, id %s)", strings.TrimSpace(util.FormatBytes(float64(e.File.Size))), e.File.ID))
	}
	return line
}

// PrintLocator shows the locator as text and as a terminal QR code.
func PrintLocator(w io.Writer, locator string) {
	fmt.Fprintln(w)
	qrterminal.GenerateHalfBlock(locator, qrterminal.L, w)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n\n", pterm.Bold.Sprint(locator))
}
