// Package cli implements the command-line interface for coherent-events.
//
// The cli package provides the Cobra-based CLI: running the scraping pipeline
// over configured sources, scraping a single URL, pruning past events,
// listing and exporting the calendar, and running everything on a schedule.
// Output is text or JSON; JSON output follows the event wire format consumed
// by the web front end.
package cli
