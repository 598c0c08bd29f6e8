// Package event defines the event records that flow through the scraping
// pipeline and the pure normalization stage between extraction and storage.
//
// Extractors produce CandidateEvents with loose text fields. The Normalizer
// turns each candidate into a NormalizedEvent with an ISO-8601 date, an
// optional 24-hour time, cleaned text and a confidence-derived needs_review
// flag, or drops it when no calendar date can be recovered. StoredEvent is the
// persisted form and doubles as the JSON wire shape consumed by the front end.
package event
