package core

import (
	"fmt"
	"time"
)

// PeriodWindow is the half-open interval [Start, End) a budget or limit is
// currently measured against. Key identifies the window for alert dedupe.
type PeriodWindow struct {
	Start time.Time
	End   time.Time
	Key   string
}

// Contains reports whether ts falls inside the window.
func (w PeriodWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// windower is the strategy interface for deriving the rolling window of a
// period type from its anchor date.
type windower interface {
	window(anchor, now time.Time) PeriodWindow
}

// weeklyWindower produces 7-day windows tiled from the anchor date.
type weeklyWindower struct{}

func (weeklyWindower) window(anchor, now time.Time) PeriodWindow {
	anchor = truncateToDay(anchor)
	start := anchor
	if now.After(anchor) {
		weeks := int(now.Sub(anchor).Hours() / 24 / 7)
		start = anchor.AddDate(0, 0, weeks*7)
	}
	return newWindow(start, start.AddDate(0, 0, 7))
}

// monthlyWindower produces calendar-month windows anchored on the start
// date's day of month, clamped to shorter months.
type monthlyWindower struct{}

func (monthlyWindower) window(anchor, now time.Time) PeriodWindow {
	anchor = truncateToDay(anchor)
	if now.Before(anchor) {
		return newWindow(anchor, addMonthClamped(anchor, anchor.Day(), 1))
	}

	months := (now.Year()-anchor.Year())*12 + int(now.Month()) - int(anchor.Month())
	start := addMonthClamped(anchor, anchor.Day(), months)
	if start.After(now) {
		months--
		start = addMonthClamped(anchor, anchor.Day(), months)
	}
	return newWindow(start, addMonthClamped(anchor, anchor.Day(), months+1))
}

func newWindow(start, end time.Time) PeriodWindow {
	return PeriodWindow{Start: start, End: end, Key: start.Format("2006-01-02")}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// addMonthClamped advances anchor by n months keeping the target day, clamped
// to the last day of shorter months (Jan 31 + 1 month = Feb 28/29).
func addMonthClamped(anchor time.Time, targetDay, n int) time.Time {
	first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := targetDay
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// periodStrategies maps period types to their window strategies.
var periodStrategies = map[Period]windower{
	Weekly:  weeklyWindower{},
	Monthly: monthlyWindower{},
}

// WindowFor returns the window containing now for the given period type and
// anchor date. now values before the anchor yield the first window.
func WindowFor(p Period, anchor, now time.Time) (PeriodWindow, error) {
	strategy, ok := periodStrategies[p]
	if !ok {
		return PeriodWindow{}, fmt.Errorf("unknown period type: %s", p)
	}
	return strategy.window(anchor.UTC(), now.UTC()), nil
}
