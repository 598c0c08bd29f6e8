package event

import "strconv"

// FieldChange records one mutable field rewritten by a merge.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// DetectChanges compares the mutable fields of a stored row with an incoming
// event. Identity fields (title, date, source) are never compared because a
// merge never rewrites them. An empty result means the update is a no-op.
func DetectChanges(stored *StoredEvent, incoming *NormalizedEvent) []FieldChange {
	if stored == nil || incoming == nil {
		return nil
	}

	var changes []FieldChange
	add := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			changes = append(changes, FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
		}
	}

	add("time", stored.Time, incoming.Time)
	add("location", stored.Location, incoming.Location)
	add("description", stored.Description, incoming.Description)
	add("url", stored.URL, incoming.URL)
	add("needs_review", strconv.FormatBool(stored.NeedsReview), strconv.FormatBool(incoming.NeedsReview))
	add("source_id", stored.SourceID, incoming.SourceID)

	return changes
}
