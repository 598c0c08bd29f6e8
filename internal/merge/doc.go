// Package merge folds normalized events into the store.
//
// Each Merge is one transaction: look the event up by its dedup keys, then
// insert it or rewrite the mutable fields of the row it matched. A
// (source, source_id) match wins over a (title, date, source) match. Title,
// date and source of an existing row are never rewritten.
package merge
