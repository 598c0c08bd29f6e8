package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

// ICS extracts events from an iCalendar feed. Each VEVENT yields one
// candidate at its DTSTART; recurrence rules are not expanded.
type ICS struct {
	Source string
	// Location is used for events without a LOCATION property.
	Location string
	// Zone is the local time zone for dates and times. Nil means UTC.
	Zone *time.Location
}

// NewICS returns an ICS feed extractor.
func NewICS(source, location string, zone *time.Location) *ICS {
	return &ICS{Source: source, Location: location, Zone: zone}
}

// Extract implements Extractor.
func (x *ICS) Extract(ctx context.Context, doc *scraper.Document) ([]event.CandidateEvent, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(doc.Raw))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar feed: %w", err)
	}

	zone := x.Zone
	if zone == nil {
		zone = time.UTC
	}

	var out []event.CandidateEvent
	for i, ve := range cal.Events() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		title := prop(ve, ical.ComponentPropertySummary)
		if title == "" {
			skip(x.Source, "missing SUMMARY", logger.Fields{"index": i})
			continue
		}
		date, clock, err := startOf(ve, zone)
		if err != nil {
			skip(x.Source, err.Error(), logger.Fields{"index": i, "title": title})
			continue
		}

		location := prop(ve, ical.ComponentPropertyLocation)
		if location == "" {
			location = x.Location
		}

		out = append(out, event.CandidateEvent{
			Title:       title,
			DateText:    date,
			TimeText:    clock,
			Location:    location,
			Description: prop(ve, ical.ComponentPropertyDescription),
			URL:         prop(ve, ical.ComponentPropertyUrl),
			Source:      x.Source,
			SourceID:    prop(ve, ical.ComponentPropertyUniqueId),
		})
	}
	return out, nil
}

func prop(ve *ical.VEvent, p ical.ComponentProperty) string {
	if v := ve.GetProperty(p); v != nil {
		return strings.TrimSpace(v.Value)
	}
	return ""
}

// startOf renders DTSTART as a date and an optional clock time in zone.
// All-day events have no time.
func startOf(ve *ical.VEvent, zone *time.Location) (string, string, error) {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return "", "", fmt.Errorf("missing DTSTART")
	}
	val := strings.TrimSpace(p.Value)

	if !strings.Contains(val, "T") {
		t, err := time.Parse("20060102", val)
		if err != nil {
			return "", "", fmt.Errorf("invalid DTSTART %q", val)
		}
		return t.Format(event.ISODate), "", nil
	}

	var t time.Time
	_, hasZone := p.ICalParameters[string(ical.ParameterTzid)]
	if hasZone || strings.HasSuffix(val, "Z") {
		start, err := ve.GetStartAt()
		if err != nil {
			return "", "", fmt.Errorf("invalid DTSTART %q: %v", val, err)
		}
		t = start.In(zone)
	} else {
		// Floating time: wall clock in the feed's local zone.
		start, err := time.ParseInLocation("20060102T150405", val, zone)
		if err != nil {
			return "", "", fmt.Errorf("invalid DTSTART %q", val)
		}
		t = start
	}
	return t.Format(event.ISODate), t.Format(event.ClockTime), nil
}
