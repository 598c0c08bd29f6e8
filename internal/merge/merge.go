package merge

import (
	"context"
	"fmt"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/storage"
)

// Action is what a merge did to the store.
type Action string

const (
	Inserted  Action = "inserted"
	Updated   Action = "updated"
	Unchanged Action = "unchanged"
)

// Outcome describes a single merge.
type Outcome struct {
	Action  Action              `json:"action"`
	ID      int64               `json:"id"`
	Match   storage.Match       `json:"-"`
	Changes []event.FieldChange `json:"changes,omitempty"`
}

// Merger is safe for concurrent use; concurrency control is left to the
// store's transactions.
type Merger struct {
	store *storage.Store
}

// New returns a Merger writing to store.
func New(store *storage.Store) *Merger {
	return &Merger{store: store}
}

// Merge inserts ev, or updates the row it duplicates. Merging the same event
// twice leaves one row and reports Unchanged the second time.
func (m *Merger) Merge(ctx context.Context, ev *event.NormalizedEvent) (Outcome, error) {
	if ev == nil {
		return Outcome{}, fmt.Errorf("merging: nil event")
	}

	var out Outcome
	err := m.store.WithTx(ctx, func(tx *storage.Tx) error {
		existing, match, err := tx.FindByDedupKey(ctx, ev.Title, ev.Date, ev.Source, ev.SourceID)
		if err != nil {
			return err
		}

		if existing == nil {
			id, err := tx.Insert(ctx, ev)
			if err != nil {
				return err
			}
			out = Outcome{Action: Inserted, ID: id}
			return nil
		}

		incoming := *ev
		if incoming.SourceID == "" {
			// A listing that stops publishing its id keeps the stored one.
			incoming.SourceID = existing.SourceID
		}

		out = Outcome{ID: existing.ID, Match: match}
		out.Changes = event.DetectChanges(existing, &incoming)
		if len(out.Changes) == 0 {
			out.Action = Unchanged
			return nil
		}
		if err := tx.Update(ctx, existing.ID, incoming.Mutable()); err != nil {
			return err
		}
		out.Action = Updated
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("merging %q (%s, %s): %w", ev.Title, ev.Date, ev.Source, err)
	}

	if out.Action == Updated {
		logger.Debug("Event updated", logger.Fields{
			"id":      out.ID,
			"source":  ev.Source,
			"match":   out.Match.String(),
			"changes": len(out.Changes),
		})
	}
	return out, nil
}

// MergeAll merges events in order and stops at the first failure, returning
// the outcomes of the merges that completed.
func (m *Merger) MergeAll(ctx context.Context, events []*event.NormalizedEvent) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(events))
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		o, err := m.Merge(ctx, ev)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
