package calendar

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/pkg/errors"

	"github.com/vibeshift/dashboard/internal/model"
)

// occurrence is a parsed VEVENT before serialization into model.CalendarEvent.
type occurrence struct {
	start  time.Time
	end    time.Time
	allDay bool
	event  model.CalendarEvent
}

// parseFeed decodes an ICS document. Events with an unparseable DTSTART are skipped.
func parseFeed(body []byte, bucket string, loc *time.Location) ([]occurrence, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse ics")
	}

	var out []occurrence
	for _, ev := range cal.Events() {
		start, allDay, err := propTime(ev.GetProperty(ics.ComponentPropertyDtStart), loc)
		if err != nil {
			continue
		}
		end, _, err := propTime(ev.GetProperty(ics.ComponentPropertyDtEnd), loc)
		if err != nil {
			end = time.Time{}
		}

		ce := model.CalendarEvent{
			UID:         ev.Id(),
			Title:       propValue(ev, ics.ComponentPropertySummary),
			Location:    propValue(ev, ics.ComponentPropertyLocation),
			URL:         propValue(ev, ics.ComponentPropertyUrl),
			Description: propValue(ev, ics.ComponentPropertyDescription),
			AllDay:      allDay,
			Source:      bucket,
			Categories:  categories(ev),
		}
		if ce.Title == "" {
			ce.Title = "(untitled)"
		}
		ce.Cohort = cohortOf(bucket, ce)
		out = append(out, occurrence{start: start, end: end, allDay: allDay, event: ce})
	}
	return out, nil
}

func propValue(ev *ics.VEvent, p ics.ComponentProperty) string {
	if prop := ev.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func categories(ev *ics.VEvent) []string {
	var out []string
	for _, prop := range ev.Properties {
		if !strings.EqualFold(prop.IANAToken, string(ics.ComponentPropertyCategories)) {
			continue
		}
		for _, c := range strings.Split(prop.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// cohortOf tags events from a cohort's own feed, or events in shared feeds that name a cohort
// in their categories.
func cohortOf(bucket string, ev model.CalendarEvent) model.Cohort {
	switch bucket {
	case string(model.CohortBlue):
		return model.CohortBlue
	case string(model.CohortGold):
		return model.CohortGold
	}
	for _, c := range ev.Categories {
		switch strings.ToLower(c) {
		case "blue", "blue cohort":
			return model.CohortBlue
		case "gold", "gold cohort":
			return model.CohortGold
		}
	}
	return ""
}

// propTime parses DATE and DATE-TIME values, honoring TZID and the UTC suffix.
// Floating times are interpreted in loc.
func propTime(prop *ics.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	if prop == nil {
		return time.Time{}, false, errors.New("missing property")
	}
	v := strings.TrimSpace(prop.Value)
	tzLoc := loc
	if tz := prop.ICalParameters["TZID"]; len(tz) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			tzLoc = l
		}
	}
	isDate := len(v) == 8
	if vt := prop.ICalParameters["VALUE"]; len(vt) > 0 && strings.EqualFold(vt[0], "DATE") {
		isDate = true
	}

	switch {
	case isDate:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", v, tzLoc)
		return t, false, err
	}
}

// Export renders events as an ICS calendar named name.
func Export(name string, events []model.CalendarEvent, now time.Time, loc *time.Location) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//vibeshift//dashboard//EN")
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone(loc.String())

	for i, e := range events {
		uid := e.UID
		if uid == "" {
			uid = fmt.Sprintf("%s-%d-%s@dashboard", e.Start, i, e.Source)
		}
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(now.UTC())
		ev.SetSummary(e.Title)
		if e.Location != "" {
			ev.SetLocation(e.Location)
		}
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.URL != "" {
			ev.SetURL(e.URL)
		}
		for _, c := range e.Categories {
			ev.AddCategory(c)
		}

		start, err := ParseEventTime(e.Start, loc)
		if err != nil {
			continue
		}
		if e.AllDay {
			ev.SetAllDayStartAt(start)
			end := start.AddDate(0, 0, 1)
			if t, err := ParseEventTime(e.End, loc); err == nil && t.After(start) {
				end = t
			}
			ev.SetAllDayEndAt(end)
			continue
		}
		ev.SetStartAt(start)
		if t, err := ParseEventTime(e.End, loc); err == nil {
			ev.SetEndAt(t)
		}
	}
	return cal.Serialize()
}

// ParseEventTime parses a CalendarEvent Start/End: RFC 3339 or a bare date in loc.
func ParseEventTime(s string, loc *time.Location) (time.Time, error) {
	if len(s) == len(time.DateOnly) {
		return time.ParseInLocation(time.DateOnly, s, loc)
	}
	return time.Parse(time.RFC3339, s)
}

// EventDate returns the calendar date of an event start in loc as YYYY-MM-DD.
func EventDate(e model.CalendarEvent, loc *time.Location) (string, bool) {
	t, err := ParseEventTime(e.Start, loc)
	if err != nil {
		return "", false
	}
	if len(e.Start) == len(time.DateOnly) {
		return e.Start, true
	}
	return t.In(loc).Format(time.DateOnly), true
}
