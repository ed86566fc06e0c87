// Package dashboard formats unit, quote, and run data for terminal display.
// It is shared by the TUI and the CLI.
package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"stockmind/internal/domain"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatVolume formats a share volume with B/M/K suffixes.
func FormatVolume(v int64) string {
	f := float64(v)
	switch {
	case f >= 1e9:
		return fmt.Sprintf("%.1fB", f/1e9)
	case f >= 1e6:
		return fmt.Sprintf("%.1fM", f/1e6)
	case f >= 1e3:
		return fmt.Sprintf("%.1fK", f/1e3)
	default:
		return fmt.Sprintf("%d", v)
	}
}

// FormatMarketCap formats a market cap given in billions.
func FormatMarketCap(billions float64) string {
	if billions >= 1000 {
		return fmt.Sprintf("$%.2fT", billions/1000)
	}
	return fmt.Sprintf("$%.0fB", billions)
}

// FormatPrice formats a price value as $X.XX, or "-" for zero/max.
func FormatPrice(p float64) string {
	if p == math.MaxFloat64 || p == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", p)
}

// FormatChange formats an absolute and percent change as "+1.23 (+0.45%)".
func FormatChange(change, pct float64) string {
	return fmt.Sprintf("%+.2f (%+.2f%%)", change, pct)
}

// ProgressBar renders pct (clamped to 0-100) as a bar of width cells.
func ProgressBar(pct, width int) string {
	if width <= 0 {
		return ""
	}
	pct = max(0, min(pct, 100))
	filled := pct * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// StatusLabel returns the display label of a unit status.
func StatusLabel(s domain.Status) string {
	switch s {
	case domain.StatusIdle:
		return "Idle"
	case domain.StatusWorking:
		return "Working"
	case domain.StatusComplete, domain.StatusCompleted:
		return "Complete"
	case domain.StatusRunning:
		return "Running"
	case domain.StatusError:
		return "Error"
	default:
		return string(s)
	}
}

// FormatElapsed formats the time since start as "12.3s" or "4m05s", or "-"
// for a zero start.
func FormatElapsed(start, now time.Time) string {
	if start.IsZero() {
		return "-"
	}
	d := now.Sub(start)
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// Counts tallies units by display label.
type Counts struct {
	Idle     int
	Active   int
	Complete int
	Error    int
}

// CountUnits tallies units for a status line.
func CountUnits(units []domain.Unit) Counts {
	var c Counts
	for _, u := range units {
		switch {
		case u.Status.Active():
			c.Active++
		case u.Status == domain.StatusComplete || u.Status == domain.StatusCompleted:
			c.Complete++
		case u.Status == domain.StatusError:
			c.Error++
		default:
			c.Idle++
		}
	}
	return c
}

// String renders the counts as a one-line summary.
func (c Counts) String() string {
	return fmt.Sprintf("%d active · %d complete · %d error · %d idle", c.Active, c.Complete, c.Error, c.Idle)
}
