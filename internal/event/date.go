package event

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// ISODate is the canonical stored date layout.
	ISODate = "2006-01-02"
	// ClockTime is the canonical stored 24-hour time layout.
	ClockTime = "15:04"
)

// dateLayouts are tried in order. Ambiguous numeric dates resolve as
// month/day because 1/2/2006 precedes 2/1/2006.
var dateLayouts = []string{
	"2006-1-2",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/1/2",
	"1/2/2006",
	"2/1/2006",
	"2006.1.2",
	"Monday, January 2, 2006",
	"Monday, Jan 2, 2006",
}

// monthDayYear catches free text such as "Monday, December 9th, 2024" or
// "Sat Mar 2nd 2024" that none of the layouts accept.
var monthDayYear = regexp.MustCompile(`(?i)(?:.*,\s*)?([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,\s*|\s+)(\d{4})`)

// DateParseError reports candidate date text that yields no calendar date.
type DateParseError struct {
	Text string
}

func (e *DateParseError) Error() string {
	if strings.TrimSpace(e.Text) == "" {
		return "missing date"
	}
	return fmt.Sprintf("unparseable date %q", e.Text)
}

// ParseDate converts loose date text into a calendar date (UTC midnight).
// It returns a *DateParseError when nothing valid can be recovered.
func ParseDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, &DateParseError{Text: text}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	m := monthDayYear.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &DateParseError{Text: text}
	}

	month, ok := lookupMonth(m[1])
	if !ok {
		return time.Time{}, &DateParseError{Text: text}
	}
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject instead.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, &DateParseError{Text: text}
	}
	return t, nil
}

// FormatDate parses text and renders it as YYYY-MM-DD.
func FormatDate(text string) (string, error) {
	t, err := ParseDate(text)
	if err != nil {
		return "", err
	}
	return t.Format(ISODate), nil
}

// lookupMonth accepts a full month name, or anything whose first three
// letters name a month ("Sept", "Dec").
func lookupMonth(name string) (time.Month, bool) {
	if t, err := time.Parse("January", name); err == nil {
		return t.Month(), true
	}
	if len(name) >= 3 {
		if t, err := time.Parse("Jan", name[:3]); err == nil {
			return t.Month(), true
		}
	}
	return 0, false
}

var (
	meridiemTime = regexp.MustCompile(`(?i)\b(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\b\.?`)
	clockTime    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonTime     = regexp.MustCompile(`(?i)\bnoon\b`)
)

// ParseTime finds the first time of day in text ("7:30 PM", "7pm", "19:30",
// "noon") and renders it as HH:MM. It reports false when there is none.
func ParseTime(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", false
	}

	if m := meridiemTime.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 1 && hour <= 12 && minute < 60 {
			hour %= 12
			if strings.EqualFold(m[3], "p") {
				hour += 12
			}
			return fmt.Sprintf("%02d:%02d", hour, minute), true
		}
	}

	if m := clockTime.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	if noonTime.MatchString(s) {
		return "12:00", true
	}

	return "", false
}

// IsOlderThan reports whether the ISO date is more than days before now.
func IsOlderThan(date string, days int, now time.Time) bool {
	t, err := time.Parse(ISODate, date)
	if err != nil {
		return false
	}
	return t.Before(Cutoff(days, now))
}

// Cutoff returns the first calendar day kept by a retention window of days.
func Cutoff(days int, now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}
