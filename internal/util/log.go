// Package util provides process-wide logging and traffic statistics.
package util

import (
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = time.TimeOnly
	pterm.DefaultLogger.MaxWidth = 1000
}

// Diagnostics go through the pterm default logger. User-visible session
// events belong in the session log, not here.

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

// LogSuccess reports a milestone, such as the relay listening, with the
// SUCCESS prefix. It is shown whenever info lines are.
func LogSuccess(format string, args ...any) {
	if lvl := pterm.DefaultLogger.Level; lvl == pterm.LogLevelDisabled || lvl > pterm.LogLevelInfo {
		return
	}
	pterm.Success.WithWriter(pterm.DefaultLogger.Writer).Printfln(format, args...)
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug lowers the log level so LogDebug lines are shown.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetOutput redirects all diagnostics, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) {
	pterm.DefaultLogger.Writer = w
}
