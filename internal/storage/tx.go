package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
)

const columns = `id, title, date, time, location, description, url, needs_review, source, source_id, created_at, updated_at`

// Match says which dedup key found an existing row.
type Match int

const (
	NoMatch Match = iota
	// MatchSourceID is a (source, source_id) match.
	MatchSourceID
	// MatchIdentity is a (title, date, source) match.
	MatchIdentity
)

func (m Match) String() string {
	switch m {
	case MatchSourceID:
		return "source_id"
	case MatchIdentity:
		return "identity"
	default:
		return "none"
	}
}

// Tx is a write transaction. It is only valid inside WithTx.
type Tx struct {
	tx  *sql.Tx
	now func() time.Time
}

// FindByDedupKey looks up the row an incoming event should merge into. A
// (source, source_id) match is preferred when sourceID is non-empty; only
// if none exists is (title, date, source) consulted. It returns nil and
// NoMatch when neither key matches.
func (t *Tx) FindByDedupKey(ctx context.Context, title, date, source, sourceID string) (*event.StoredEvent, Match, error) {
	if sourceID != "" {
		row := t.tx.QueryRowContext(ctx,
			`SELECT `+columns+` FROM events WHERE source = ? AND source_id = ?`, source, sourceID)
		ev, err := scanEvent(row)
		if err == nil {
			return ev, MatchSourceID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, NoMatch, storeErr("find by source id", err)
		}
	}

	row := t.tx.QueryRowContext(ctx,
		`SELECT `+columns+` FROM events WHERE title = ? AND date = ? AND source = ?`, title, date, source)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NoMatch, nil
	}
	if err != nil {
		return nil, NoMatch, storeErr("find by identity", err)
	}
	return ev, MatchIdentity, nil
}

// Insert stores a new event and returns its id.
func (t *Tx) Insert(ctx context.Context, ev *event.NormalizedEvent) (int64, error) {
	now := t.now().UTC().Format(time.RFC3339)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (title, date, time, location, description, url, needs_review, source, source_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Title, ev.Date, ev.Time, ev.Location, ev.Description, ev.URL, ev.NeedsReview, ev.Source, ev.SourceID, now, now)
	if err != nil {
		return 0, storeErr("insert event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("insert event", err)
	}
	return id, nil
}

// Update rewrites the mutable fields of the event with id. Title, date and
// source are never changed.
func (t *Tx) Update(ctx context.Context, id int64, f event.MutableFields) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE events
		SET time = ?, location = ?, description = ?, url = ?, needs_review = ?, source_id = ?, updated_at = ?
		WHERE id = ?`,
		f.Time, f.Location, f.Description, f.URL, f.NeedsReview, f.SourceID, t.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return storeErr("update event", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update event", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*event.StoredEvent, error) {
	var (
		ev               event.StoredEvent
		created, updated string
	)
	err := row.Scan(&ev.ID, &ev.Title, &ev.Date, &ev.Time, &ev.Location, &ev.Description, &ev.URL,
		&ev.NeedsReview, &ev.Source, &ev.SourceID, &created, &updated)
	if err != nil {
		return nil, err
	}
	ev.CreatedAt, _ = time.Parse(time.RFC3339, created)
	ev.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &ev, nil
}
