package calendar

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/coherentcalendar/coherent-events/internal/event"
)

const (
	// ProductID identifies the generator in exported calendars.
	ProductID = "-//Coherent Calendar//coherent-events//EN"
	// DefaultName is the calendar name shown by subscribing clients.
	DefaultName = "Boulder Community Calendar"
	// DefaultDuration is the length given to events with a start time,
	// since listings rarely state an end.
	DefaultDuration = 2 * time.Hour

	uidDomain = "coherentcalendar.com"
)

// Options tunes an export. Zero values select the defaults.
type Options struct {
	Name     string
	Zone     *time.Location
	Duration time.Duration
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Build creates a calendar with one VEVENT per event. Events with a time
// start at that wall-clock time in opts.Zone; events without one are
// all-day. Rows with a malformed date are skipped.
func Build(events []*event.StoredEvent, opts Options) *ical.Calendar {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Zone == nil {
		opts.Zone = time.UTC
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(opts.Name)
	cal.SetXWRTimezone(opts.Zone.String())

	for _, evt := range events {
		day := evt.DateValue()
		if day.IsZero() {
			continue
		}

		ve := cal.AddEvent(UID(evt))
		ve.SetDtStampTime(opts.Now)
		if !evt.CreatedAt.IsZero() {
			ve.SetCreatedTime(evt.CreatedAt)
		}
		if !evt.UpdatedAt.IsZero() {
			ve.SetModifiedAt(evt.UpdatedAt)
		}

		if start, ok := startTime(day, evt.Time, opts.Zone); ok {
			ve.SetStartAt(start)
			ve.SetEndAt(start.Add(opts.Duration))
		} else {
			ve.SetAllDayStartAt(day)
			ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		}

		ve.SetSummary(evt.Title)
		if evt.Location != "" {
			ve.SetLocation(evt.Location)
		}
		if evt.Description != "" {
			ve.SetDescription(evt.Description)
		}
		if evt.URL != "" {
			ve.SetURL(evt.URL)
		}
		if evt.NeedsReview {
			ve.SetStatus(ical.ObjectStatusTentative)
		} else {
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return cal
}

// Write serializes the calendar for events to w with CRLF line endings.
func Write(w io.Writer, events []*event.StoredEvent, opts Options) error {
	if err := Build(events, opts).SerializeTo(w, ical.WithNewLineWindows); err != nil {
		return fmt.Errorf("writing calendar: %w", err)
	}
	return nil
}

// GenerateICS returns the calendar for events as a string.
func GenerateICS(events []*event.StoredEvent, opts Options) string {
	return Build(events, opts).Serialize(ical.WithNewLineWindows)
}

// UID is the stable iCalendar identifier of a stored event.
func UID(evt *event.StoredEvent) string {
	return fmt.Sprintf("event-%d@%s", evt.ID, uidDomain)
}

func startTime(day time.Time, clock string, zone *time.Location) (time.Time, bool) {
	if clock == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(event.ClockTime, clock)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, zone), true
}
