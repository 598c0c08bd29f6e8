package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
	"golang.org/x/net/html"
)

// MinFragmentChars is the shortest cleaned text treated as a listing.
const MinFragmentChars = 50

var (
	eventContainer = regexp.MustCompile(`(?i)event|calendar|schedule|program|listing|upcoming|what'?s-on`)
	titleClass     = regexp.MustCompile(`(?i)title|name|heading`)
	dateClass      = regexp.MustCompile(`(?i)date|when`)
	timeClass      = regexp.MustCompile(`(?i)time|hour`)
	locationClass  = regexp.MustCompile(`(?i)location|venue|place|address`)
	detailClass    = regexp.MustCompile(`(?i)description|details|summary|excerpt`)
)

// chrome is page furniture that never holds listings.
const chrome = "nav, header, footer, aside, script, style, noscript"

// Heuristic extracts events from pages with unknown markup. A fragment
// naming several dates yields one candidate per date.
type Heuristic struct {
	Source string
	// Now is used for year inference; nil means time.Now.
	Now func() time.Time
}

// NewHeuristic returns a heuristic extractor attributing events to source.
func NewHeuristic(source string) *Heuristic {
	return &Heuristic{Source: source}
}

// Extract implements Extractor.
func (h *Heuristic) Extract(ctx context.Context, doc *scraper.Document) ([]event.CandidateEvent, error) {
	fragments := Fragments(doc.Doc)
	logger.Debug("Found candidate fragments", logger.Fields{
		"source": h.Source,
		"count":  len(fragments),
	})

	year := h.now().Year()
	var out []event.CandidateEvent
	for i, frag := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, reason := h.candidates(frag, doc.URL, year)
		if reason != "" {
			skip(h.Source, reason, logger.Fields{"index": i})
			continue
		}
		out = append(out, cs...)
	}
	return out, nil
}

// Fragments locates the page regions most likely to each describe one
// event. Containers whose class or id names an event-like concept are
// preferred, keeping the innermost ones that still carry enough text. If
// there are none, article and main content is used, and failing that the
// leaf text blocks outside navigation, header and footer. Fragments with
// fewer than MinFragmentChars of cleaned text are discarded.
func Fragments(doc *goquery.Document) []*goquery.Selection {
	if frags := keywordFragments(doc); len(frags) > 0 {
		return frags
	}

	var frags []*goquery.Selection
	doc.Find("article").Each(func(_ int, s *goquery.Selection) {
		if !inChrome(s) && longEnough(s) {
			frags = append(frags, s)
		}
	})
	if len(frags) > 0 {
		return frags
	}

	doc.Find("main").Children().Each(func(_ int, s *goquery.Selection) {
		if !inChrome(s) && longEnough(s) {
			frags = append(frags, s)
		}
	})
	if len(frags) > 0 {
		return frags
	}

	doc.Find("body p, body li, body div, body section, body td").Each(func(_ int, s *goquery.Selection) {
		if inChrome(s) || s.Find("p, li, div, section, table").Length() > 0 {
			return
		}
		if longEnough(s) {
			frags = append(frags, s)
		}
	})
	return frags
}

func keywordFragments(doc *goquery.Document) []*goquery.Selection {
	matched := doc.Find("[class], [id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		return eventContainer.MatchString(class) || eventContainer.MatchString(id)
	})

	// A long description block inside a card also matches; requiring a date
	// keeps the card rather than its description.
	if kept := innermost(matched, hasDate); len(kept) > 0 {
		return kept
	}
	return innermost(matched, nil)
}

// innermost keeps the deepest matched elements that are long enough and
// satisfy accept, dropping any that enclose an element already kept.
func innermost(matched *goquery.Selection, accept func(*goquery.Selection) bool) []*goquery.Selection {
	// Document order puts descendants after ancestors, so walking backwards
	// sees inner containers first.
	var kept []*goquery.Selection
	for i := matched.Length() - 1; i >= 0; i-- {
		s := matched.Eq(i)
		if inChrome(s) || !longEnough(s) {
			continue
		}
		if accept != nil && !accept(s) {
			continue
		}
		if containsAny(s, kept) {
			continue
		}
		kept = append(kept, s)
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func hasDate(s *goquery.Selection) bool {
	return len(datetimeDates(s)) > 0 || findDate(fragmentText(s)) != ""
}

// datetimeDates returns the calendar dates carried by time elements.
// Values that are not dates, such as datetime="19:00", are ignored.
func datetimeDates(frag *goquery.Selection) []string {
	var raw []string
	frag.Find("time[datetime]").Each(func(_ int, t *goquery.Selection) {
		v := strings.TrimSpace(t.AttrOr("datetime", ""))
		if len(v) > 10 {
			// Trim an ISO timestamp to its date.
			v = v[:10]
		}
		raw = append(raw, v)
	})
	return distinctDates(raw)
}

// fragmentDates finds every date a fragment names: time elements first,
// then an element whose class names a date, then the free text.
func fragmentDates(frag *goquery.Selection, full string, year int) []string {
	if dates := datetimeDates(frag); len(dates) > 0 {
		return dates
	}
	if dateText := byClass(frag, dateClass); dateText != "" {
		if dates := ListingDates(dateText, year); len(dates) > 0 {
			return dates
		}
	}
	return distinctDates(findDates(full))
}

// distinctDates keeps the texts that parse as a date, dropping any that
// name a day already kept.
func distinctDates(texts []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, text := range texts {
		date, err := event.FormatDate(text)
		if err != nil || seen[date] {
			continue
		}
		seen[date] = true
		out = append(out, text)
	}
	return out
}

// candidates reads event fields from a fragment, one candidate per date it
// names. It returns a non-empty reason when the fragment has no recoverable
// title or date.
func (h *Heuristic) candidates(frag *goquery.Selection, pageURL string, year int) ([]event.CandidateEvent, string) {
	full := fragmentText(frag)

	title := firstText(frag, "h1, h2, h3, h4, h5, h6")
	if title == "" {
		title = byClass(frag, titleClass)
	}
	if title == "" {
		title = firstText(frag, "a, strong, b")
	}
	if title == "" {
		return nil, "no title"
	}

	dates := fragmentDates(frag, full, year)
	if len(dates) == 0 {
		return nil, "no date"
	}

	timeText := byClass(frag, timeClass)
	if timeText == "" {
		timeText = full
	}

	description := byClass(frag, detailClass)
	if description == "" {
		description = full
	}

	url := ""
	if a := frag.Find("a[href]").First(); a.Length() > 0 {
		href, _ := a.Attr("href")
		url = resolve(pageURL, href)
	}

	location := byClass(frag, locationClass)
	out := make([]event.CandidateEvent, 0, len(dates))
	for _, d := range dates {
		out = append(out, event.CandidateEvent{
			Title:       title,
			DateText:    d,
			TimeText:    timeText,
			Location:    location,
			Description: description,
			URL:         url,
			Source:      h.Source,
		})
	}
	return out, ""
}

func (h *Heuristic) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func firstText(frag *goquery.Selection, selector string) string {
	var out string
	frag.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = event.CleanText(s.Text())
		return out == ""
	})
	return out
}

// byClass returns the text of the first descendant whose class or id
// matches re.
func byClass(frag *goquery.Selection, re *regexp.Regexp) string {
	var out string
	frag.Find("[class], [id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if !re.MatchString(class) && !re.MatchString(id) {
			return true
		}
		out = event.CleanText(s.Text())
		return out == ""
	})
	return out
}
