// Package extract turns fetched pages into candidate events.
//
// Every source kind implements Extractor. Structural extractors read a fixed
// set of CSS selectors (built-in presets exist for Trident Café, the Dairy
// Arts Center and Eventbrite, and any other site can be described in the
// config file). Heuristic handles arbitrary pages by looking for event-like
// containers. ICS reads iCalendar feeds.
//
// A fragment that lacks a title or date is skipped and logged with an
// *ExtractionError; it never fails the page. Candidates are returned in no
// guaranteed order.
package extract
