// Package scheduler holds the pure slot arithmetic shared by the catalog and
// the allocator: the daily grid of start times and per-slot occupancy.
package scheduler

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for slots and reservations.
const DateLayout = "2006-01-02"

// TimeLayout is the wall-clock format of a slot start time.
const TimeLayout = "15:04"

// Grid describes the bookable start times of a day as offsets from midnight.
// End is exclusive.
type Grid struct {
	Start time.Duration
	End   time.Duration
	Step  time.Duration
}

// DefaultGrid covers 08:00 to 18:00 in 30 minute steps, 20 slots per day.
var DefaultGrid = Grid{
	Start: 8 * time.Hour,
	End:   18 * time.Hour,
	Step:  30 * time.Minute,
}

// DailyGrid returns the start times of DefaultGrid.
func DailyGrid() []string {
	return DefaultGrid.StartTimes()
}

// StartTimes enumerates "HH:mm" start times in ascending order.
func (g Grid) StartTimes() []string {
	if g.Step <= 0 || g.End <= g.Start {
		return nil
	}
	out := make([]string, 0, int((g.End-g.Start)/g.Step))
	for offset := g.Start; offset < g.End; offset += g.Step {
		out = append(out, fmt.Sprintf("%02d:%02d", int(offset/time.Hour), int(offset%time.Hour/time.Minute)))
	}
	return out
}

// Contains reports whether start is one of the grid's start times.
func (g Grid) Contains(start string) bool {
	t, err := time.Parse(TimeLayout, start)
	if err != nil || t.Format(TimeLayout) != start {
		return false
	}
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	if offset < g.Start || offset >= g.End {
		return false
	}
	return (offset-g.Start)%g.Step == 0
}

// ValidDate reports whether s is a real calendar date in DateLayout.
func ValidDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}
