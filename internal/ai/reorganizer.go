package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vibeshift/dashboard/internal/model"
)

// CallSiteReorganize labels the newsletter reorganization step.
const CallSiteReorganize = "reorganize"

// OtherSectionTitle collects raw sections the model did not place.
const OtherSectionTitle = "More from this issue"

const reorganizeSystemPrompt = `You organize a student newsletter into clear sections.
You receive numbered raw blocks, each with an id, a heading and an HTML body.
Group the blocks into a small number of logical sections, keeping the most time-critical content first.
Every block id must be used exactly once. Never rewrite HTML; refer to blocks only by id.
For a block that mentions specific dates, add "timeSensitive" with:
  "dates": ISO dates (YYYY-MM-DD) mentioned, resolved against the issue year,
  "deadline": ISO date of the hard deadline when there is one,
  "eventType": one of deadline, event, announcement, reminder,
  "priority": one of high, medium, low.
Respond with a single JSON object:
{"sections":[{"sectionTitle":"...","items":[{"id":"b0","title":"...","timeSensitive":{...}}]}],
 "reasoning":"...",
 "sectionDecisions":[{"originalTitle":"...","decision":"...","targetSection":"..."}],
 "edgeCasesHandled":["..."]}`

type organizedItem struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	TimeSensitive *model.TimeSensitive `json:"timeSensitive,omitempty"`
}

type organizedSection struct {
	SectionTitle string          `json:"sectionTitle"`
	Items        []organizedItem `json:"items"`
}

type organizeResponse struct {
	Sections         []organizedSection      `json:"sections"`
	Reasoning        string                  `json:"reasoning"`
	SectionDecisions []model.SectionDecision `json:"sectionDecisions"`
	EdgeCasesHandled []string                `json:"edgeCasesHandled"`
}

// Reorganizer turns scraped raw sections into an organized NewsletterPayload.
type Reorganizer struct {
	chain *Chain
	now   func() time.Time
}

// NewReorganizer wraps a chain for the reorganize call site.
func NewReorganizer(chain *Chain) *Reorganizer {
	return &Reorganizer{chain: chain, now: time.Now}
}

func blockID(i int) string { return fmt.Sprintf("b%d", i) }

// Reorganize asks the model to group raw into sections. Item HTML always comes from raw.
// On chain exhaustion it returns an *ExhaustedError; callers decide the fallback.
func (r *Reorganizer) Reorganize(ctx context.Context, raw []model.RawSection, sourceURL, title string) (model.NewsletterPayload, error) {
	start := r.now()
	if len(raw) == 0 {
		return model.NewsletterPayload{}, errors.New("reorganize: no sections to organize")
	}

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Issue title: %s\n", title)
	}
	fmt.Fprintf(&b, "Issue URL: %s\n\n", sourceURL)
	for i, s := range raw {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", blockID(i), s.Title, s.HTML)
	}
	messages := []Message{
		{Role: "system", Content: reorganizeSystemPrompt},
		{Role: "user", Content: b.String()},
	}

	var parsed organizeResponse
	outcome, err := r.chain.Run(ctx, messages, func(content string) error {
		var resp organizeResponse
		if err := decodeJSON(content, &resp); err != nil {
			return err
		}
		if len(resp.Sections) == 0 {
			return errors.New("completion has no sections")
		}
		parsed = resp
		return nil
	})
	if err != nil {
		return model.NewsletterPayload{}, err
	}

	sections, edgeCases := assemble(raw, parsed.Sections)
	return model.NewsletterPayload{
		SourceURL: sourceURL,
		Title:     title,
		Sections:  sections,
		Debug: &model.OrganizerDebug{
			Reasoning:        parsed.Reasoning,
			SectionDecisions: parsed.SectionDecisions,
			EdgeCasesHandled: append(parsed.EdgeCasesHandled, edgeCases...),
			TotalSections:    len(sections),
			ProcessingTime:   r.now().Sub(start).Milliseconds(),
			Model:            outcome.Model,
			ModelsTried:      outcome.ModelsTried(),
		},
	}, nil
}

// assemble maps the model's id references back onto raw blocks. Unknown and repeated ids are
// dropped; blocks the model left out are appended under OtherSectionTitle so nothing is lost.
func assemble(raw []model.RawSection, organized []organizedSection) ([]model.Section, []string) {
	byID := make(map[string]int, len(raw))
	for i := range raw {
		byID[blockID(i)] = i
	}
	used := make([]bool, len(raw))
	var notes []string

	var sections []model.Section
	for _, org := range organized {
		sec := model.Section{SectionTitle: strings.TrimSpace(org.SectionTitle), Items: []model.Item{}}
		for _, it := range org.Items {
			idx, ok := byID[strings.TrimSpace(it.ID)]
			if !ok {
				notes = append(notes, fmt.Sprintf("ignored unknown block id %q", it.ID))
				continue
			}
			if used[idx] {
				notes = append(notes, fmt.Sprintf("ignored repeated block id %q", it.ID))
				continue
			}
			used[idx] = true
			title := strings.TrimSpace(it.Title)
			if title == "" {
				title = raw[idx].Title
			}
			sec.Items = append(sec.Items, model.Item{
				Title:         title,
				HTML:          raw[idx].HTML,
				TimeSensitive: normalizeTimeSensitive(it.TimeSensitive),
			})
		}
		if len(sec.Items) == 0 {
			continue
		}
		if sec.SectionTitle == "" {
			sec.SectionTitle = sec.Items[0].Title
		}
		sections = append(sections, sec)
	}

	var rest []model.Item
	for i, s := range raw {
		if !used[i] {
			rest = append(rest, model.Item{Title: s.Title, HTML: s.HTML})
		}
	}
	if len(rest) > 0 {
		notes = append(notes, fmt.Sprintf("%d unplaced blocks appended to %q", len(rest), OtherSectionTitle))
		sections = append(sections, model.Section{SectionTitle: OtherSectionTitle, Items: rest})
	}
	return sections, notes
}

var (
	validEventTypes = map[string]bool{
		model.EventTypeDeadline: true, model.EventTypeEvent: true,
		model.EventTypeAnnouncement: true, model.EventTypeReminder: true,
	}
	validPriorities = map[string]bool{model.PriorityHigh: true, model.PriorityMedium: true, model.PriorityLow: true}
)

// normalizeTimeSensitive drops unparseable dates and coerces enums; nil when no date survives.
func normalizeTimeSensitive(ts *model.TimeSensitive) *model.TimeSensitive {
	if ts == nil {
		return nil
	}
	var dates []string
	for _, d := range ts.Dates {
		if _, err := time.Parse(time.DateOnly, strings.TrimSpace(d)); err == nil {
			dates = append(dates, strings.TrimSpace(d))
		}
	}
	deadline := strings.TrimSpace(ts.Deadline)
	if _, err := time.Parse(time.DateOnly, deadline); err != nil {
		deadline = ""
	}
	if deadline != "" && !contains(dates, deadline) {
		dates = append(dates, deadline)
	}
	if len(dates) == 0 {
		return nil
	}
	out := &model.TimeSensitive{Dates: dates, Deadline: deadline, EventType: ts.EventType, Priority: ts.Priority}
	if !validEventTypes[out.EventType] {
		out.EventType = model.EventTypeAnnouncement
	}
	if !validPriorities[out.Priority] {
		out.Priority = model.PriorityMedium
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Unorganized builds the degraded payload used when reorganization fails: every raw block in
// a single catch-all section, in scrape order.
func Unorganized(raw []model.RawSection, sourceURL, title string, cause error) model.NewsletterPayload {
	items := make([]model.Item, 0, len(raw))
	for _, s := range raw {
		items = append(items, model.Item{Title: s.Title, HTML: s.HTML})
	}
	sectionTitle := title
	if sectionTitle == "" {
		sectionTitle = "Newsletter"
	}
	debug := &model.OrganizerDebug{
		TotalSections: 1,
		Fallback:      true,
	}
	if cause != nil {
		debug.FallbackReason = cause.Error()
		var ex *ExhaustedError
		if errors.As(cause, &ex) {
			debug.ModelsTried = ex.ModelsTried()
		}
	}
	return model.NewsletterPayload{
		SourceURL: sourceURL,
		Title:     title,
		Sections:  []model.Section{{SectionTitle: sectionTitle, Items: items}},
		Debug:     debug,
	}
}

// encodeForPrompt is shared by the prompts that embed structured input.
func encodeForPrompt(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
