package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coherentcalendar/coherent-events/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate   SortOrder = "date"
	SortBySource SortOrder = "source"
	SortByTitle  SortOrder = "title"
)

// parseSortOrder validates a --sort value.
func parseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortByDate, nil
	case SortByDate, SortBySource, SortByTitle:
		return o, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (must be 'date', 'source' or 'title')", s)
	}
}

// sortEvents sorts a slice of events based on the specified sort order
func sortEvents(events []*event.StoredEvent, sortOrder SortOrder) {
	switch sortOrder {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortBySource:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Source != events[j].Source {
				return events[i].Source < events[j].Source
			}
			// If sources are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByTitle:
		sort.SliceStable(events, func(i, j int) bool {
			ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
			if ti != tj {
				return ti < tj
			}
			// If titles are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate orders by date, then time (untimed first), then title.
// Dates are ISO strings, so string order is calendar order.
func compareByDate(i, j *event.StoredEvent) bool {
	if i.Date != j.Date {
		return i.Date < j.Date
	}
	if i.Time != j.Time {
		return i.Time < j.Time
	}
	return strings.ToLower(i.Title) < strings.ToLower(j.Title)
}
