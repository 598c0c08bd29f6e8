package extract

import (
	"regexp"
	"strconv"
)

// Listing date patterns, most specific first. Only the first pattern with
// any match is used.
var (
	datedWithYear = regexp.MustCompile(`(\w+ \d{1,2}(?:st|nd|rd|th)?,? \d{4})`)
	numericDate   = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`)
	datedNoYear   = regexp.MustCompile(`(\w+ \d{1,2}(?:st|nd|rd|th)?)`)
	hasYear       = regexp.MustCompile(`\d{4}`)
)

// ExpandDates splits the date text of a listing that names several dates
// ("March 15th, 2024 & March 22nd, 2024") into one date text per date.
// Dates without a year are given year. Text naming no recognisable date
// yields nil.
func ExpandDates(text string, year int) []string {
	for _, re := range []*regexp.Regexp{datedWithYear, numericDate, datedNoYear} {
		matches := re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		dates := make([]string, 0, len(matches))
		for _, m := range matches {
			if !hasYear.MatchString(m) {
				m = m + ", " + strconv.Itoa(year)
			}
			dates = append(dates, m)
		}
		return dates
	}
	return nil
}

// ListingDates is ExpandDates restricted to texts that parse as a calendar
// date, with repeats of the same day removed.
func ListingDates(text string, year int) []string {
	return distinctDates(ExpandDates(text, year))
}

// datePhrase finds a single full date inside free text.
var datePhrase = regexp.MustCompile(`(?i)\b(?:(?:mon|tues|wednes|thurs|fri|satur|sun)day,?\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b|\b\d{4}-\d{1,2}-\d{1,2}\b|\b\d{1,2}/\d{1,2}/\d{4}\b`)

// findDate returns the first date phrase in text, or "".
func findDate(text string) string {
	return datePhrase.FindString(text)
}

// findDates returns every date phrase in text, in order.
func findDates(text string) []string {
	return datePhrase.FindAllString(text, -1)
}
