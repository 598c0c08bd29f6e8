package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

// Selectors locate event fields on a page. Container matches one element
// per listing; the others are evaluated inside it.
type Selectors struct {
	Container   string `yaml:"container"`
	Title       string `yaml:"title"`
	Date        string `yaml:"date"`
	Time        string `yaml:"time,omitempty"`
	Description string `yaml:"description,omitempty"`
	Location    string `yaml:"location,omitempty"`
	Link        string `yaml:"link,omitempty"`
}

// SourceIDRule chooses how a listing's source_id is derived from its link.
type SourceIDRule string

const (
	// IDNone leaves source_id empty.
	IDNone SourceIDRule = "none"
	// IDLastSegment uses the final path segment of the link.
	IDLastSegment SourceIDRule = "last_segment"
	// IDDated joins the numeric event id (or a link hash) with the date, so
	// each occurrence of a multi-date listing has its own id.
	IDDated SourceIDRule = "dated"
)

// Structural extracts events using fixed CSS selectors.
type Structural struct {
	Source    string
	Selectors Selectors
	// Location is used when the listing has no location element.
	Location string
	// BaseURL resolves relative links. Empty uses the document URL.
	BaseURL string
	// LinkFromAncestor takes the link from the closest enclosing <a> of the
	// container instead of Selectors.Link.
	LinkFromAncestor bool
	// RequireLink skips listings without a link.
	RequireLink bool
	// MultiDate expands listings naming several dates, adding the current
	// year to dates that lack one.
	MultiDate bool
	SourceID  SourceIDRule
	// DefaultSourceID is used when the rule yields nothing.
	DefaultSourceID string
	// Now is used for year inference; nil means time.Now.
	Now func() time.Time
}

// Validate checks that the required selectors are present.
func (s *Structural) Validate() error {
	if s.Source == "" {
		return fmt.Errorf("structural extractor: source name is required")
	}
	if s.Selectors.Container == "" || s.Selectors.Title == "" || s.Selectors.Date == "" {
		return fmt.Errorf("structural extractor %s: container, title and date selectors are required", s.Source)
	}
	if !s.LinkFromAncestor && s.RequireLink && s.Selectors.Link == "" {
		return fmt.Errorf("structural extractor %s: link is required but no link selector is set", s.Source)
	}
	switch s.SourceID {
	case "", IDNone, IDLastSegment, IDDated:
	default:
		return fmt.Errorf("structural extractor %s: unknown source_id rule %q", s.Source, s.SourceID)
	}
	return nil
}

// Extract implements Extractor.
func (s *Structural) Extract(ctx context.Context, doc *scraper.Document) ([]event.CandidateEvent, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	containers := doc.Doc.Find(s.Selectors.Container)
	logger.Debug("Found listing containers", logger.Fields{
		"source": s.Source,
		"count":  containers.Length(),
	})

	base := s.BaseURL
	if base == "" {
		base = doc.URL
	}
	year := s.now().Year()

	var out []event.CandidateEvent
	containers.EachWithBreak(func(i int, card *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		out = append(out, s.fromContainer(i, card, base, doc.URL, year)...)
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Structural) fromContainer(i int, card *goquery.Selection, base, pageURL string, year int) []event.CandidateEvent {
	title, ok := text(card, s.Selectors.Title)
	if !ok || title == "" {
		skip(s.Source, "missing title element", logger.Fields{"index": i})
		return nil
	}
	dateText, ok := text(card, s.Selectors.Date)
	if !ok || dateText == "" {
		skip(s.Source, "missing date element", logger.Fields{"index": i, "title": title})
		return nil
	}

	link, hasLink := s.link(card)
	if !hasLink && s.RequireLink {
		skip(s.Source, "missing link", logger.Fields{"index": i, "title": title})
		return nil
	}
	if hasLink {
		link = resolve(base, link)
	}

	timeText, _ := text(card, s.Selectors.Time)
	if timeText == "" {
		// Listings often print the time on the date line.
		timeText = dateText
	}
	description, _ := text(card, s.Selectors.Description)
	location, _ := text(card, s.Selectors.Location)
	if location == "" {
		location = s.Location
	}

	dates := []string{dateText}
	if s.MultiDate {
		dates = ExpandDates(dateText, year)
		if len(dates) == 0 {
			skip(s.Source, "no dates in date text", logger.Fields{"index": i, "title": title, "date_text": dateText})
			return nil
		}
	}

	url := link
	if url == "" && s.MultiDate {
		url = pageURL
	}

	out := make([]event.CandidateEvent, 0, len(dates))
	for _, d := range dates {
		out = append(out, event.CandidateEvent{
			Title:       title,
			DateText:    d,
			TimeText:    timeText,
			Location:    location,
			Description: description,
			URL:         url,
			Source:      s.Source,
			SourceID:    s.sourceID(link, d),
		})
	}
	return out
}

func (s *Structural) link(card *goquery.Selection) (string, bool) {
	var a *goquery.Selection
	if s.LinkFromAncestor {
		a = card.Closest("a")
	} else if s.Selectors.Link != "" {
		a = card.Find(s.Selectors.Link).First()
	}
	if a == nil || a.Length() == 0 {
		return "", false
	}
	href, ok := a.Attr("href")
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

func (s *Structural) sourceID(link, dateText string) string {
	id := ""
	switch s.SourceID {
	case IDLastSegment:
		if link != "" {
			id = lastSegment(link)
		}
	case IDDated:
		id = datedID(link, dateText)
	}
	if id == "" {
		id = s.DefaultSourceID
	}
	return id
}

func (s *Structural) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
