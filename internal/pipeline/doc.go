// Package pipeline runs event sources end to end.
//
// For each source the Orchestrator fetches the page, extracts candidates,
// normalizes them and merges the survivors into the store. Sources run
// concurrently up to a limit and fail independently: a source that cannot
// be fetched or parsed is reported in the run result while the others
// proceed. Only an unreachable store aborts the whole run.
//
// Prune is the separate retention action; runs never delete events.
package pipeline
