// Package storage persists events in SQLite.
//
// Events live in a single table keyed by an integer id. Two unique indexes
// back the dedup rules: (title, date, source) always, and (source,
// source_id) when source_id is set. Transactions begin IMMEDIATE, so a
// lookup followed by a write inside WithTx cannot interleave with another
// writer, including one in a different process.
//
// The default database location is ~/.local/share/coherent-events/events.db.
package storage
