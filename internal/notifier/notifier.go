package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
)

// Notifier defines the interface for posting event announcements
type Notifier interface {
	// Notify posts announcements for the given events
	Notify(ctx context.Context, events []event.StoredEvent) error
}

// maxTweetRunes is the Twitter post limit.
const maxTweetRunes = 280

// Announceable returns the events fit to announce: those not awaiting
// review, at most max of them (0 means no limit).
func Announceable(events []event.StoredEvent, max int) []event.StoredEvent {
	var out []event.StoredEvent
	for _, evt := range events {
		if evt.NeedsReview {
			continue
		}
		out = append(out, evt)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// formatTweet formats an event as a tweet
func formatTweet(evt *event.StoredEvent) string {
	tweet := fmt.Sprintf("📅 New in Boulder: %s\n\n", evt.Title)
	tweet += fmt.Sprintf("🗓 %s\n", when(evt))

	if evt.Location != "" {
		tweet += fmt.Sprintf("📍 %s\n", evt.Location)
	}
	if evt.URL != "" {
		tweet += fmt.Sprintf("\n🔗 %s\n", evt.URL)
	}
	tweet += "\n#Boulder #BoulderEvents"

	if r := []rune(tweet); len(r) > maxTweetRunes {
		tweet = string(r[:maxTweetRunes-3]) + "..."
	}
	return tweet
}

// when renders "Sat, Feb 10, 2024 · 7:00 PM", or just the date.
func when(evt *event.StoredEvent) string {
	day := evt.DateValue()
	if day.IsZero() {
		return evt.Date
	}
	s := day.Format("Mon, Jan 2, 2006")
	if t, err := time.Parse(event.ClockTime, evt.Time); err == nil {
		s += " · " + t.Format("3:04 PM")
	}
	return s
}
