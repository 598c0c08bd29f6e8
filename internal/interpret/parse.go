package interpret

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coherentcalendar/coherent-events/internal/event"
)

// ExtractionPrompt instructs the model to reply with a JSON events list.
const ExtractionPrompt = `You extract community events from web page text.
Reply with a single JSON object and nothing else, in this form:
{"events": [{"title": "", "date": "", "time": "", "location": "", "description": "", "url": ""}]}
Rules:
- Include only events with a specific calendar date.
- "date" is the date as written, including the year when the text gives one.
- An event held on several dates is one object per date, repeating the other fields.
- "time" is the start time as written, or "" if none is given.
- Use "" for any other field the text does not give.
- Do not invent events, dates or details.
If the text contains no events, reply {"events": []}.`

// eventObject is one event as the model writes it. Alternate key names seen
// in practice are accepted.
type eventObject map[string]any

func (o eventObject) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := o[k].(string); ok {
			if s := event.CleanText(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func (o eventObject) candidate(source string) (event.CandidateEvent, bool) {
	c := event.CandidateEvent{
		Title:       o.str("title", "name"),
		DateText:    o.str("date", "date_text", "start_date"),
		TimeText:    o.str("time", "time_text", "start_time"),
		Location:    o.str("location", "venue"),
		Description: o.str("description", "summary"),
		URL:         o.str("url", "link"),
		Source:      source,
	}
	return c, c.Title != "" && c.DateText != ""
}

// ParseEvents reads candidate events from a model reply. A reply that is a
// valid {"events": [...]} document is used directly, skipping entries
// without a title or date. Anything else is scanned for standalone event
// objects. ErrMalformedResponse is returned only when nothing usable is
// found in a reply that is not a valid events document.
func ParseEvents(raw, source string) ([]event.CandidateEvent, error) {
	body := stripFences(raw)

	var doc struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err == nil && doc.Events != nil {
		out := make([]event.CandidateEvent, 0, len(doc.Events))
		for _, msg := range doc.Events {
			var obj eventObject
			if json.Unmarshal(msg, &obj) != nil {
				continue
			}
			if c, ok := obj.candidate(source); ok {
				out = append(out, c)
			}
		}
		return out, nil
	}

	out := salvage(body, source)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no event objects found", ErrMalformedResponse)
	}
	return out, nil
}

// salvage decodes every balanced {...} region that forms a complete event
// object. Regions that do not are descended into, so events inside a
// truncated wrapper are still found.
func salvage(s, source string) []event.CandidateEvent {
	var out []event.CandidateEvent
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := objectEnd(s, i)
		if end < 0 {
			continue
		}
		var obj eventObject
		if json.Unmarshal([]byte(s[i:end+1]), &obj) != nil {
			continue
		}
		if c, ok := obj.candidate(source); ok {
			out = append(out, c)
			i = end
		}
	}
	return out
}

// objectEnd returns the index of the brace closing the object opened at
// start, or -1 if it is never closed. Braces inside JSON strings are
// ignored.
func objectEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
