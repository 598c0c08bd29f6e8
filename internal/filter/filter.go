// Package filter narrows stored events for calendar queries.
//
// A Filter combines optional criteria; an event must satisfy all of them:
//   - Date range (inclusive, by calendar day)
//   - Sources (exact name, case-insensitive)
//   - Search terms (substring of title, description or location, case-insensitive)
//   - Review state (only flagged, or only approved)
//   - Weekends only (Saturday/Sunday)
//
// Example usage:
//
//	from, to, err := filter.ParseDateRange("Mar 1-15")
//	f := filter.NewFilter()
//	f.DateFrom, f.DateTo = from, to
//	f.Sources = []string{"trident"}
//	upcoming := f.Apply(events)
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
)

// Filter represents event query criteria
type Filter struct {
	// Date range filtering
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	// Source filtering (case-insensitive exact match)
	Sources []string `json:"sources,omitempty"`

	// Free-text search over title, description and location
	Search []string `json:"search,omitempty"`

	// NeedsReview, when set, keeps only events whose flag equals it
	NeedsReview *bool `json:"needs_review,omitempty"`

	// Weekend-only filtering (Saturday/Sunday)
	WeekendsOnly bool `json:"weekends_only,omitempty"`
}

// NewFilter creates a new empty filter with no active criteria.
// The filter will match all events until criteria are added.
func NewFilter() *Filter {
	return &Filter{
		Sources: []string{},
		Search:  []string{},
	}
}

// IsEmpty checks if the filter has any active criteria.
func (f *Filter) IsEmpty() bool {
	return f.DateFrom == nil &&
		f.DateTo == nil &&
		len(f.Sources) == 0 &&
		len(f.Search) == 0 &&
		f.NeedsReview == nil &&
		!f.WeekendsOnly
}

// Bounds returns the date range as inclusive YYYY-MM-DD strings for a
// store query. An unset end is returned as "".
func (f *Filter) Bounds() (from, to string) {
	if f.DateFrom != nil {
		from = f.DateFrom.Format(event.ISODate)
	}
	if f.DateTo != nil {
		to = f.DateTo.Format(event.ISODate)
	}
	return from, to
}

// Matches checks if an event matches all active filter criteria.
// An empty filter matches all events.
//
// Date checks compare calendar days, so an event on the last day of the
// range matches even when DateTo carries a time of day.
func (f *Filter) Matches(evt *event.StoredEvent) bool {
	if f.IsEmpty() {
		return true
	}

	day := evt.Date
	from, to := f.Bounds()
	if from != "" && day < from {
		return false
	}
	if to != "" && day > to {
		return false
	}

	if f.WeekendsOnly {
		d := evt.DateValue()
		if d.IsZero() {
			return false
		}
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			return false
		}
	}

	if f.NeedsReview != nil && evt.NeedsReview != *f.NeedsReview {
		return false
	}

	if len(f.Sources) > 0 {
		matched := false
		for _, src := range f.Sources {
			if strings.EqualFold(evt.Source, src) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Search) > 0 {
		haystack := strings.ToLower(evt.Title + "\n" + evt.Description + "\n" + evt.Location)
		matched := false
		for _, term := range f.Search {
			if strings.Contains(haystack, strings.ToLower(term)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// Apply returns the events matching the filter. If the filter is empty the
// original slice is returned unchanged.
func (f *Filter) Apply(events []*event.StoredEvent) []*event.StoredEvent {
	if f.IsEmpty() {
		return events
	}

	var filtered []*event.StoredEvent
	for _, evt := range events {
		if f.Matches(evt) {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

// String returns a human-readable description of the active filter criteria.
// Format: "From: Mar 1, 2024 | To: Mar 15, 2024 | Sources: trident | Weekends only"
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string

	if f.DateFrom != nil {
		parts = append(parts, fmt.Sprintf("From: %s", f.DateFrom.Format("Jan 2, 2006")))
	}
	if f.DateTo != nil {
		parts = append(parts, fmt.Sprintf("To: %s", f.DateTo.Format("Jan 2, 2006")))
	}
	if len(f.Sources) > 0 {
		parts = append(parts, fmt.Sprintf("Sources: %s", strings.Join(f.Sources, ", ")))
	}
	if len(f.Search) > 0 {
		parts = append(parts, fmt.Sprintf("Search: %s", strings.Join(f.Search, ", ")))
	}
	if f.NeedsReview != nil {
		if *f.NeedsReview {
			parts = append(parts, "Needs review")
		} else {
			parts = append(parts, "Approved only")
		}
	}
	if f.WeekendsOnly {
		parts = append(parts, "Weekends only")
	}

	return strings.Join(parts, " | ")
}
