// Package color provides terminal color output for the lockguard CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"os"
	"sync"

	fcolor "github.com/fatih/color"

	"github.com/lockguard/lockguard/pkg/model"
)

var initOnce sync.Once

// Init decides once whether output is colored, based on the environment
// and the --no-color flag.
func Init(noColorFlag bool) {
	initOnce.Do(func() {
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			fcolor.NoColor = true
		}
		if os.Getenv("TERM") == "dumb" {
			fcolor.NoColor = true
		}
		if noColorFlag {
			fcolor.NoColor = true
		}
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	return !fcolor.NoColor
}

// Disable turns off color output.
func Disable() { fcolor.NoColor = true }

// Enable turns on color output.
func Enable() { fcolor.NoColor = false }

var (
	green  = fcolor.New(fcolor.FgGreen)
	red    = fcolor.New(fcolor.FgRed)
	yellow = fcolor.New(fcolor.FgYellow)
	cyan   = fcolor.New(fcolor.FgCyan)
	bold   = fcolor.New(fcolor.Bold)
	faint  = fcolor.New(fcolor.Faint)
)

// Success formats a success message in green.
func Success(s string) string { return green.Sprint(s) }

// Error formats an error message in red.
func Error(s string) string { return red.Sprint(s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return yellow.Sprint(s) }

// Info formats an informational message in cyan.
func Info(s string) string { return cyan.Sprint(s) }

// Header formats a header in bold.
func Header(s string) string { return bold.Sprint(s) }

// Dim formats secondary information.
func Dim(s string) string { return faint.Sprint(s) }

// State renders a locked/unlocked marker.
func State(locked bool) string {
	if locked {
		return red.Sprint("locked")
	}
	return green.Sprint("unlocked")
}

// Policy renders a policy name; time-based policies are highlighted.
func Policy(p model.Policy) string {
	switch p {
	case model.PolicyTimer:
		return yellow.Sprint(string(p))
	case model.PolicyTrust:
		return cyan.Sprint(string(p))
	default:
		return string(p)
	}
}
