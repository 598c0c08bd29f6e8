package extract

import (
	"context"
	"testing"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

func TestICS_Extract(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skipf("time zone data unavailable: %v", err)
	}

	doc := loadFixture(t, "feed.ics", "https://boulderlibrary.org/events.ics")
	got, err := NewICS("library", "Boulder Public Library", denver).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	want := map[string]event.CandidateEvent{
		"Toddler Storytime": {
			Title:       "Toddler Storytime",
			DateText:    "2024-03-05",
			TimeText:    "10:00",
			Location:    "North Boulder Branch",
			Description: "Songs and stories for ages 1-3.",
			URL:         "https://boulderlibrary.org/events/storytime",
			Source:      "library",
			SourceID:    "storytime-20240305@boulderlibrary.org",
		},
		"Used Book Sale": {
			Title:    "Used Book Sale",
			DateText: "2024-03-16",
			Location: "Boulder Public Library",
			Source:   "library",
			SourceID: "book-sale-2024@boulderlibrary.org",
		},
		"Evening Lecture": {
			Title:    "Evening Lecture",
			DateText: "2024-03-20",
			TimeText: "18:30",
			Location: "Boulder Public Library",
			Source:   "library",
			SourceID: "floating@boulderlibrary.org",
		},
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %+v", len(want), len(got), got)
	}
	for _, c := range got {
		w, ok := want[c.Title]
		if !ok {
			t.Errorf("unexpected candidate %+v", c)
			continue
		}
		if c != w {
			t.Errorf("candidate = %+v\nwant %+v", c, w)
		}
	}
}

func TestICS_InvalidFeed(t *testing.T) {
	doc, err := scraper.NewDocument("https://example.com/feed.ics", []byte("<html>not a calendar</html>"), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewICS("web", "", nil).Extract(context.Background(), doc); err == nil {
		t.Error("expected error for non-calendar content")
	}
}
