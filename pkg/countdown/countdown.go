// Package countdown formats remaining lock time for display. Nothing here
// touches engine state.
package countdown

import (
	"fmt"
	"time"
)

func wholeSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// Parts splits d into whole minutes and seconds, rounding partial seconds up.
func Parts(d time.Duration) (minutes, seconds int) {
	total := wholeSeconds(d)
	return int(total / 60), int(total % 60)
}

// Format renders d as "Xh Ym" when at least an hour remains, else "Ym Zs".
func Format(d time.Duration) string {
	total := wholeSeconds(d)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// Badge renders the compact tree badge "M:SS". Empty when nothing remains.
func Badge(d time.Duration) string {
	if wholeSeconds(d) == 0 {
		return ""
	}
	m, s := Parts(d)
	return fmt.Sprintf("%d:%02d", m, s)
}
