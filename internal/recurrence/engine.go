package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

const dateLayout = "2006-01-02"

// MaxRangeDays bounds a single expansion so bulk generation stays small.
const MaxRangeDays = 92

// Range describes an inclusive span of calendar days with an optional weekday filter.
type Range struct {
	From     time.Time
	To       time.Time
	Weekdays []time.Weekday
}

// Engine expands date ranges into calendar days.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that interprets dates in the provided location.
// If loc is nil, Asia/Tokyo (JST) is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = jst
	}
	return &Engine{location: loc}
}

// ErrInvalidWindow indicates the range ends before it starts.
var ErrInvalidWindow = errors.New("recurrence: range end precedes range start")

// ErrRangeTooLong indicates the range spans more than MaxRangeDays days.
var ErrRangeTooLong = errors.New("recurrence: range exceeds maximum length")

// ErrInvalidDate indicates a date string is not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("recurrence: invalid date")

// ErrInvalidWeekday indicates an unknown weekday name.
var ErrInvalidWeekday = errors.New("recurrence: invalid weekday")

// ParseDate parses a YYYY-MM-DD string as midnight in the engine's location.
func (e *Engine) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), e.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ExpandDates lists the days of r as YYYY-MM-DD strings in ascending order.
//
// Both bounds are inclusive and are truncated to calendar days in the engine's
// location. When Weekdays is empty every day is included.
func (e *Engine) ExpandDates(r Range) ([]string, error) {
	loc := e.loc()
	from := midnight(r.From, loc)
	to := midnight(r.To, loc)

	if to.Before(from) {
		return nil, ErrInvalidWindow
	}
	if span := daysBetween(from, to) + 1; span > MaxRangeDays {
		return nil, fmt.Errorf("%w: %d days (max %d)", ErrRangeTooLong, span, MaxRangeDays)
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(r.Weekdays))
	for _, day := range r.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	dates := make([]string, 0)
	for current := from; !current.After(to); current = current.AddDate(0, 0, 1) {
		if len(weekdaySet) > 0 {
			if _, ok := weekdaySet[current.Weekday()]; !ok {
				continue
			}
		}
		dates = append(dates, current.Format(dateLayout))
	}
	return dates, nil
}

// ParseWeekday accepts English weekday names and their three letter abbreviations.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if key == name || key == name[:3] {
			return day, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, s)
}

func (e *Engine) loc() *time.Location {
	if e == nil || e.location == nil {
		return jst
	}
	return e.location
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func daysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
