// Package model holds the data shapes shared by the cache, the pipeline and the HTTP surface.
package model

// Cohort names a program track with its own calendar and weekly summary.
type Cohort string

const (
	CohortBlue Cohort = "blue"
	CohortGold Cohort = "gold"
)

// Cohorts lists the cohorts in their canonical order.
var Cohorts = []Cohort{CohortBlue, CohortGold}

// Time-sensitivity classification attached to newsletter items.
const (
	EventTypeDeadline     = "deadline"
	EventTypeEvent        = "event"
	EventTypeAnnouncement = "announcement"
	EventTypeReminder     = "reminder"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// TimeSensitive marks a newsletter item that refers to specific dates.
type TimeSensitive struct {
	Dates     []string `json:"dates"`
	Deadline  string   `json:"deadline,omitempty"`
	EventType string   `json:"eventType"`
	Priority  string   `json:"priority"`
}

// Item is one newsletter entry. HTML is sanitized markup.
type Item struct {
	Title         string         `json:"title"`
	HTML          string         `json:"html"`
	TimeSensitive *TimeSensitive `json:"timeSensitive,omitempty"`
}

// Section groups items under a heading. Order is significant.
type Section struct {
	SectionTitle string `json:"sectionTitle"`
	Items        []Item `json:"items"`
}

// RawSection is the scraper's output: a heading and the sanitized markup beneath it.
type RawSection struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// SectionDecision records how the reorganizer placed one raw section.
type SectionDecision struct {
	OriginalTitle string `json:"originalTitle"`
	Decision      string `json:"decision"`
	TargetSection string `json:"targetSection,omitempty"`
}

// OrganizerDebug is diagnostic metadata returned by the AI reorganization step.
type OrganizerDebug struct {
	Reasoning        string            `json:"reasoning,omitempty"`
	SectionDecisions []SectionDecision `json:"sectionDecisions,omitempty"`
	EdgeCasesHandled []string          `json:"edgeCasesHandled,omitempty"`
	TotalSections    int               `json:"totalSections"`
	ProcessingTime   int64             `json:"processingTime"`
	Model            string            `json:"model,omitempty"`
	ModelsTried      []string          `json:"modelsTried,omitempty"`
	Fallback         bool              `json:"fallback,omitempty"`
	FallbackReason   string            `json:"fallbackReason,omitempty"`
}

// NewsletterPayload is the organized newsletter.
type NewsletterPayload struct {
	SourceURL string          `json:"sourceUrl"`
	Title     string          `json:"title,omitempty"`
	Sections  []Section       `json:"sections"`
	Debug     *OrganizerDebug `json:"aiDebugInfo,omitempty"`
}

// CalendarEvent is one event from an ICS feed. Start and End are ISO-8601.
type CalendarEvent struct {
	UID         string   `json:"uid,omitempty"`
	Title       string   `json:"title"`
	Start       string   `json:"start"`
	End         string   `json:"end,omitempty"`
	AllDay      bool     `json:"allDay,omitempty"`
	Location    string   `json:"location,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Cohort      Cohort   `json:"cohort,omitempty"`
	Source      string   `json:"source,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// CohortEvents buckets calendar events by cohort and by source category.
// Every bucket is always a non-nil slice so it serializes as [].
type CohortEvents struct {
	Blue         []CalendarEvent `json:"blue"`
	Gold         []CalendarEvent `json:"gold"`
	Original     []CalendarEvent `json:"original"`
	Launch       []CalendarEvent `json:"launch"`
	CalBears     []CalendarEvent `json:"calBears"`
	CampusGroups []CalendarEvent `json:"campusGroups"`
}

// EmptyCohortEvents returns buckets that are all empty, never nil.
func EmptyCohortEvents() CohortEvents {
	return CohortEvents{
		Blue:         []CalendarEvent{},
		Gold:         []CalendarEvent{},
		Original:     []CalendarEvent{},
		Launch:       []CalendarEvent{},
		CalBears:     []CalendarEvent{},
		CampusGroups: []CalendarEvent{},
	}
}

// ForCohort returns the bucket belonging to c.
func (ce CohortEvents) ForCohort(c Cohort) []CalendarEvent {
	switch c {
	case CohortBlue:
		return ce.Blue
	case CohortGold:
		return ce.Gold
	default:
		return nil
	}
}

// Bucket returns a bucket by its JSON name; ok is false for unknown names.
func (ce CohortEvents) Bucket(name string) ([]CalendarEvent, bool) {
	switch name {
	case "blue":
		return ce.Blue, true
	case "gold":
		return ce.Gold, true
	case "original":
		return ce.Original, true
	case "launch":
		return ce.Launch, true
	case "calBears":
		return ce.CalBears, true
	case "campusGroups":
		return ce.CampusGroups, true
	}
	return nil, false
}

// Normalize replaces nil buckets with empty ones.
func (ce CohortEvents) Normalize() CohortEvents {
	fix := func(s []CalendarEvent) []CalendarEvent {
		if s == nil {
			return []CalendarEvent{}
		}
		return s
	}
	ce.Blue = fix(ce.Blue)
	ce.Gold = fix(ce.Gold)
	ce.Original = fix(ce.Original)
	ce.Launch = fix(ce.Launch)
	ce.CalBears = fix(ce.CalBears)
	ce.CampusGroups = fix(ce.CampusGroups)
	return ce
}

// WeekEvent types.
const (
	WeekEventAssignment     = "assignment"
	WeekEventClass          = "class"
	WeekEventExam           = "exam"
	WeekEventAdministrative = "administrative"
	WeekEventSocial         = "social"
	WeekEventNewsletter     = "newsletter"
	WeekEventOther          = "other"
)

// WeekEvent is one entry of a cohort's "this week" list. Date is YYYY-MM-DD.
type WeekEvent struct {
	Date        string `json:"date"`
	Time        string `json:"time,omitempty"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	URL         string `json:"url,omitempty"`
}

// CohortMyWeekAnalysis is the weekly synthesis for both cohorts.
type CohortMyWeekAnalysis struct {
	WeekStart      string      `json:"weekStart"`
	WeekEnd        string      `json:"weekEnd"`
	BlueEvents     []WeekEvent `json:"blueEvents"`
	GoldEvents     []WeekEvent `json:"goldEvents"`
	BlueSummary    string      `json:"blueSummary"`
	GoldSummary    string      `json:"goldSummary"`
	ProcessingTime int64       `json:"processingTime"`
}

// ProcessingInfo carries per-stage wall-clock timings in milliseconds.
type ProcessingInfo struct {
	TotalTime      int64  `json:"totalTime"`
	NewsletterTime int64  `json:"newsletterTime"`
	CalendarTime   int64  `json:"calendarTime"`
	MyWeekTime     int64  `json:"myWeekTime"`
	Timestamp      string `json:"timestamp"`
	RunID          string `json:"runId,omitempty"`
}

// UnifiedDashboardData is the aggregate served to the dashboard.
type UnifiedDashboardData struct {
	NewsletterData NewsletterPayload    `json:"newsletterData"`
	MyWeekData     CohortMyWeekAnalysis `json:"myWeekData"`
	CohortEvents   CohortEvents         `json:"cohortEvents"`
	ProcessingInfo ProcessingInfo       `json:"processingInfo"`
}
