// Package myweek builds the per-cohort "this week" view: it bounds calendar events and
// time-sensitive newsletter items to the current week and asks the model for a summary.
package myweek

import "time"

// Window is the current week in the canonical zone: Sunday 00:00 through the following Sunday.
// Membership is by calendar date and includes both end dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow anchors the week containing now, evaluated in loc regardless of now's own zone.
func NewWindow(now time.Time, loc *time.Location) Window {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := midnight.AddDate(0, 0, -int(midnight.Weekday()))
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// StartDate is Start as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(time.DateOnly) }

// EndDate is End as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(time.DateOnly) }

// ContainsDate reports whether a YYYY-MM-DD date falls in the window.
func (w Window) ContainsDate(date string) bool {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return false
	}
	return date >= w.StartDate() && date <= w.EndDate()
}
