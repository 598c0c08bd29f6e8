package extract

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

// Extractor finds candidate events in a fetched document.
type Extractor interface {
	Extract(ctx context.Context, doc *scraper.Document) ([]event.CandidateEvent, error)
}

// ExtractionError describes one fragment that was skipped.
type ExtractionError struct {
	Source string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: skipped fragment: %s", e.Source, e.Reason)
}

// skip logs a dropped fragment.
func skip(source, reason string, fields logger.Fields) {
	err := &ExtractionError{Source: source, Reason: reason}
	if fields == nil {
		fields = logger.Fields{}
	}
	fields["source"] = source
	fields["reason"] = reason
	logger.Warn(err.Error(), fields)
	logger.IncrCounter("extract.skipped")
}

// text returns the cleaned text of the first element matching selector
// within sel, and whether one was found.
func text(sel *goquery.Selection, selector string) (string, bool) {
	if selector == "" {
		return "", false
	}
	found := sel.Find(selector).First()
	if found.Length() == 0 {
		return "", false
	}
	return event.CleanText(found.Text()), true
}

// resolve makes href absolute against base. Unparseable input is returned
// trimmed but otherwise unchanged.
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// lastSegment returns the final non-empty path segment of a link.
func lastSegment(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

var eventNumber = regexp.MustCompile(`/events?/(\d+)`)

// datedID identifies one occurrence of a multi-date listing: the numeric
// event id from the link (or a hash of the link) joined with the date.
func datedID(link, dateText string) string {
	id := ""
	if m := eventNumber.FindStringSubmatch(link); m != nil {
		id = m[1]
	} else {
		h := fnv.New32a()
		_, _ = h.Write([]byte(link))
		id = fmt.Sprintf("%08x", h.Sum32())
	}

	date, err := event.FormatDate(dateText)
	if err != nil {
		date = dateText
	}
	return id + "_" + date
}
