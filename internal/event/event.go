package event

import "time"

// CandidateEvent is what an extractor believes one listing says. Every field
// except Title and DateText may be empty, and DateText is not yet validated.
type CandidateEvent struct {
	Title       string `json:"title"`
	DateText    string `json:"date_text"`
	TimeText    string `json:"time_text,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id,omitempty"`
}

// NormalizedEvent is a candidate that survived normalization. Date is always
// a valid YYYY-MM-DD calendar date; Time is "HH:MM" or empty.
type NormalizedEvent struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Description string `json:"description"`
	URL         string `json:"url"`
	NeedsReview bool   `json:"needs_review"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
}

// Confidence returns the completeness score of the event in [0,1].
func (e *NormalizedEvent) Confidence() float64 {
	return Confidence(e.Title, e.Date, e.Time, e.Location, e.Description, e.URL)
}

// Mutable returns the fields a merge is allowed to rewrite on an existing row.
func (e *NormalizedEvent) Mutable() MutableFields {
	return MutableFields{
		Time:        e.Time,
		Location:    e.Location,
		Description: e.Description,
		URL:         e.URL,
		NeedsReview: e.NeedsReview,
		SourceID:    e.SourceID,
	}
}

// MutableFields are the non-identity columns of a stored event. Title, date
// and source identify a row and are never rewritten by a merge.
type MutableFields struct {
	Time        string
	Location    string
	Description string
	URL         string
	NeedsReview bool
	SourceID    string
}

// StoredEvent is a persisted event. Its JSON encoding is flat:
// id, title, date, time, location, description, url, needs_review, source,
// source_id.
type StoredEvent struct {
	ID int64 `json:"id"`
	NormalizedEvent
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// DateValue parses the stored ISO date. The zero time is returned for a
// malformed value, which the store never writes.
func (e *StoredEvent) DateValue() time.Time {
	t, err := time.Parse(ISODate, e.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}
