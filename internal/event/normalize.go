package event

import (
	"strings"
)

// DefaultConfidenceThreshold marks events scoring below it for manual review.
const DefaultConfidenceThreshold = 0.7

// Confidence weights in hundredths, so a complete event scores exactly 1.0.
const (
	requiredFieldPoints = 40
	optionalFieldPoints = 5
	maxPoints           = 100
)

// Confidence scores field completeness: 0.4 for each of title and date,
// 0.05 for each of time, location, description and url, capped at 1.0.
func Confidence(title, date, timeOfDay, location, description, url string) float64 {
	points := 0
	for _, f := range []string{title, date} {
		if strings.TrimSpace(f) != "" {
			points += requiredFieldPoints
		}
	}
	for _, f := range []string{timeOfDay, location, description, url} {
		if strings.TrimSpace(f) != "" {
			points += optionalFieldPoints
		}
	}
	if points > maxPoints {
		points = maxPoints
	}
	return float64(points) / maxPoints
}

// CleanText collapses every whitespace run, newlines included, into a single
// space and trims both ends.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalizer converts candidates into normalized events. It holds no state
// beyond its threshold and performs no I/O.
type Normalizer struct {
	threshold float64
}

// NewNormalizer returns a Normalizer flagging events whose confidence is
// strictly below threshold. A threshold outside (0,1] falls back to
// DefaultConfidenceThreshold.
func NewNormalizer(threshold float64) *Normalizer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	return &Normalizer{threshold: threshold}
}

// Threshold returns the review threshold in use.
func (n *Normalizer) Threshold() float64 {
	return n.threshold
}

// Normalize validates and canonicalizes a candidate. A candidate without a
// recoverable date is rejected with a *DateParseError and must be dropped.
func (n *Normalizer) Normalize(c CandidateEvent) (*NormalizedEvent, error) {
	date, err := FormatDate(c.DateText)
	if err != nil {
		return nil, err
	}

	clock, ok := ParseTime(c.TimeText)
	if !ok && strings.TrimSpace(c.TimeText) == "" {
		// Listings often fold the time into the date line.
		clock, _ = ParseTime(c.DateText)
	}

	ev := &NormalizedEvent{
		Title:       CleanText(c.Title),
		Date:        date,
		Time:        clock,
		Location:    CleanText(c.Location),
		Description: CleanText(c.Description),
		URL:         strings.TrimSpace(c.URL),
		Source:      strings.TrimSpace(c.Source),
		SourceID:    strings.TrimSpace(c.SourceID),
	}
	ev.NeedsReview = ev.Confidence() < n.threshold

	return ev, nil
}

// NormalizeAll normalizes a batch, returning the survivors and the drop
// reason for each rejected candidate, index-aligned with the input.
func (n *Normalizer) NormalizeAll(candidates []CandidateEvent) ([]*NormalizedEvent, map[int]error) {
	out := make([]*NormalizedEvent, 0, len(candidates))
	var dropped map[int]error
	for i, c := range candidates {
		ev, err := n.Normalize(c)
		if err != nil {
			if dropped == nil {
				dropped = make(map[int]error)
			}
			dropped[i] = err
			continue
		}
		out = append(out, ev)
	}
	return out, dropped
}
