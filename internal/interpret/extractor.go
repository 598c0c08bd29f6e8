package interpret

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/extract"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
	"github.com/go-shiori/go-readability"
)

// DefaultMaxInputChars bounds the text sent per request.
const DefaultMaxInputChars = 12000

// minArticleChars is the least readable text accepted before falling back to
// the whole page body.
const minArticleChars = 200

// Interpreter sends text with an instruction prompt to a language model.
type Interpreter interface {
	Interpret(ctx context.Context, prompt, text string) (string, error)
}

// Extractor is the AI-assisted extractor for pages with unknown markup.
type Extractor struct {
	Source        string
	Interpreter   Interpreter
	Prompt        string
	MaxInputChars int
	// Now is used for year inference; nil means time.Now.
	Now func() time.Time
}

// NewExtractor returns an Extractor using the default prompt.
func NewExtractor(source string, in Interpreter, maxInputChars int) *Extractor {
	return &Extractor{Source: source, Interpreter: in, Prompt: ExtractionPrompt, MaxInputChars: maxInputChars}
}

// Extract implements extract.Extractor.
func (x *Extractor) Extract(ctx context.Context, doc *scraper.Document) ([]event.CandidateEvent, error) {
	return x.ExtractText(ctx, MainText(doc))
}

// ExtractText interprets an already extracted block of text.
func (x *Extractor) ExtractText(ctx context.Context, text string) ([]event.CandidateEvent, error) {
	if text == "" {
		return nil, nil
	}
	limit := x.MaxInputChars
	if limit <= 0 {
		limit = DefaultMaxInputChars
	}
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit])
	}
	prompt := x.Prompt
	if prompt == "" {
		prompt = ExtractionPrompt
	}

	reply, err := x.Interpreter.Interpret(ctx, prompt, text)
	if err != nil {
		return nil, fmt.Errorf("interpreting %s: %w", x.Source, err)
	}

	cands, err := ParseEvents(reply, x.Source)
	if err != nil {
		logger.Warn("Interpretation reply unusable", logger.Fields{
			"source": x.Source,
			"reply":  truncate(reply, 200),
		})
		return nil, fmt.Errorf("interpreting %s: %w", x.Source, err)
	}
	cands = splitDates(cands, x.now().Year())
	logger.Debug("Interpreted events", logger.Fields{
		"source": x.Source,
		"count":  len(cands),
	})
	return cands, nil
}

// splitDates turns a candidate whose date text names several dates into
// one candidate per date.
func splitDates(cands []event.CandidateEvent, year int) []event.CandidateEvent {
	out := make([]event.CandidateEvent, 0, len(cands))
	for _, c := range cands {
		dates := extract.ListingDates(c.DateText, year)
		if len(dates) < 2 {
			out = append(out, c)
			continue
		}
		for _, d := range dates {
			c.DateText = d
			out = append(out, c)
		}
	}
	return out
}

func (x *Extractor) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

// MainText returns the readable text of a page: the main article content
// when readability finds enough of it, otherwise the whole body text.
func MainText(doc *scraper.Document) string {
	u, _ := url.Parse(doc.URL)
	article, err := readability.FromReader(bytes.NewReader(doc.Raw), u)
	if err == nil {
		if text := event.CleanText(article.TextContent); len([]rune(text)) >= minArticleChars {
			return text
		}
	}
	if doc.Doc == nil {
		return ""
	}
	body := doc.Doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	return event.CleanText(body.Text())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
