package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultPath is where the database lives unless configured otherwise.
const DefaultPath = "~/.local/share/coherent-events/events.db"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no event has the requested id.
var ErrNotFound = errors.New("event not found")

// StoreError wraps a failed database operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Store is the SQLite event store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema. A leading ~/ expands to the home directory.
func Open(path string) (*Store, error) {
	dsn, memory, err := dataSource(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storeErr("open", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dataSource(path string) (string, bool, error) {
	if path == "" {
		path = DefaultPath
	}
	if path == MemoryPath {
		return "file::memory:?_txlock=immediate", true, nil
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", false, fmt.Errorf("creating data directory: %w", err)
	}
	return "file:" + path + "?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL", false, nil
}

func (s *Store) migrate() error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return storeErr("migrate", err)
		}
	}
	return nil
}

// SetClock replaces the clock used for created_at and updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// WithTx runs fn inside a write transaction, committing when fn returns nil
// and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}

	if err := fn(&Tx{tx: sqlTx, now: s.now}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// DeleteOlderThan removes events dated more than days before now and
// returns how many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, days int, now time.Time) (int64, error) {
	cutoff := event.Cutoff(days, now).Format(event.ISODate)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE date < ?`, cutoff)
	if err != nil {
		return 0, storeErr("delete old events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("delete old events", err)
	}
	return n, nil
}

// Get returns the event with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*event.StoredEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get event", err)
	}
	return ev, nil
}

// ListRange returns events dated within [from, to], both YYYY-MM-DD and
// inclusive. An empty bound is open. Results are ordered by date, time and
// title.
func (s *Store) ListRange(ctx context.Context, from, to string) ([]*event.StoredEvent, error) {
	query := `SELECT ` + columns + ` FROM events WHERE 1=1`
	var args []any
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date, time, title, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list events", err)
	}
	defer rows.Close()

	var out []*event.StoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, storeErr("list events", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list events", err)
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, storeErr("count events", err)
	}
	return n, nil
}

// SourceCount is the number of stored events for one source.
type SourceCount struct {
	Source      string `json:"source"`
	Events      int64  `json:"events"`
	NeedsReview int64  `json:"needs_review"`
}

// CountBySource summarizes stored events per source, ordered by name.
func (s *Store) CountBySource(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*), COALESCE(SUM(needs_review), 0)
		FROM events GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, storeErr("count by source", err)
	}
	defer rows.Close()

	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Events, &sc.NeedsReview); err != nil {
			return nil, storeErr("count by source", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("count by source", err)
	}
	return out, nil
}
