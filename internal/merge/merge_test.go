package merge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/storage"
)

func newMerger(t *testing.T) (*Merger, *storage.Store) {
	t.Helper()
	s, err := storage.Open(storage.MemoryPath)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func jazz() *event.NormalizedEvent {
	return &event.NormalizedEvent{
		Title:       "Jazz Night",
		Date:        "2024-03-01",
		Time:        "19:30",
		Location:    "Dairy Arts Center",
		Description: "Live jazz.",
		URL:         "https://thedairy.org/event/4521",
		Source:      "dairy",
		SourceID:    "4521_2024-03-01",
	}
}

func TestMerge_Idempotent(t *testing.T) {
	m, s := newMerger(t)
	ctx := context.Background()

	first, err := m.Merge(ctx, jazz())
	if err != nil {
		t.Fatalf("first Merge() error: %v", err)
	}
	if first.Action != Inserted {
		t.Errorf("first action = %s, want inserted", first.Action)
	}

	second, err := m.Merge(ctx, jazz())
	if err != nil {
		t.Fatalf("second Merge() error: %v", err)
	}
	if second.Action != Unchanged || second.ID != first.ID {
		t.Errorf("second outcome = %+v, want unchanged id %d", second, first.ID)
	}
	if second.Match != storage.MatchSourceID {
		t.Errorf("match = %v, want source_id", second.Match)
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMerge_UpdateNotDuplicate(t *testing.T) {
	m, s := newMerger(t)
	ctx := context.Background()

	base := jazz()
	base.SourceID = ""
	first, err := m.Merge(ctx, base)
	if err != nil {
		t.Fatal(err)
	}

	changed := jazz()
	changed.SourceID = ""
	changed.Description = "Live jazz with a new headliner."
	out, err := m.Merge(ctx, changed)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if out.Action != Updated || out.ID != first.ID || out.Match != storage.MatchIdentity {
		t.Fatalf("outcome = %+v", out)
	}
	if len(out.Changes) != 1 || out.Changes[0].Field != "description" {
		t.Errorf("changes = %+v, want description only", out.Changes)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != changed.Description {
		t.Errorf("description = %q", got.Description)
	}
	if got.Title != base.Title || got.Date != base.Date || got.Source != base.Source {
		t.Errorf("identity changed: %+v", got)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMerge_SourceIDPrecedence(t *testing.T) {
	m, s := newMerger(t)
	ctx := context.Background()

	byID, err := m.Merge(ctx, jazz())
	if err != nil {
		t.Fatal(err)
	}
	other := jazz()
	other.Title = "Jazz Night (Late Show)"
	other.SourceID = ""
	if _, err := m.Merge(ctx, other); err != nil {
		t.Fatal(err)
	}

	// Matches the second row by identity and the first by source id.
	incoming := jazz()
	incoming.Title = "Jazz Night (Late Show)"
	incoming.Time = "22:00"
	out, err := m.Merge(ctx, incoming)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	if out.ID != byID.ID || out.Match != storage.MatchSourceID {
		t.Errorf("outcome = %+v, want update of id %d by source_id", out, byID.ID)
	}

	got, _ := s.Get(ctx, byID.ID)
	if got.Title != "Jazz Night" || got.Time != "22:00" {
		t.Errorf("row = %+v, want original title and new time", got)
	}
}

func TestMerge_NewSourceIDAttachesToIdentityRow(t *testing.T) {
	m, s := newMerger(t)
	ctx := context.Background()

	base := jazz()
	base.SourceID = ""
	first, _ := m.Merge(ctx, base)

	out, err := m.Merge(ctx, jazz())
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != Updated || out.ID != first.ID {
		t.Fatalf("outcome = %+v", out)
	}
	got, _ := s.Get(ctx, first.ID)
	if got.SourceID != "4521_2024-03-01" {
		t.Errorf("source_id = %q", got.SourceID)
	}
}

func TestMerge_MissingSourceIDKeepsStored(t *testing.T) {
	m, s := newMerger(t)
	ctx := context.Background()

	first, _ := m.Merge(ctx, jazz())

	incoming := jazz()
	incoming.SourceID = ""
	out, err := m.Merge(ctx, incoming)
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != Unchanged || out.Match != storage.MatchIdentity {
		t.Errorf("outcome = %+v, want unchanged identity match", out)
	}
	got, _ := s.Get(ctx, first.ID)
	if got.SourceID != "4521_2024-03-01" {
		t.Errorf("source_id = %q, want stored id kept", got.SourceID)
	}
}

func TestMerge_Concurrent(t *testing.T) {
	m, s := newMerger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Merge(ctx, jazz()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Merge() error: %v", err)
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMergeAll(t *testing.T) {
	m, _ := newMerger(t)
	ctx := context.Background()

	second := jazz()
	second.Title = "Folk Night"
	second.SourceID = "4522_2024-03-01"

	outcomes, err := m.MergeAll(ctx, []*event.NormalizedEvent{jazz(), second, jazz()})
	if err != nil {
		t.Fatalf("MergeAll() error: %v", err)
	}
	want := []Action{Inserted, Inserted, Unchanged}
	for i, o := range outcomes {
		if o.Action != want[i] {
			t.Errorf("outcome %d = %s, want %s", i, o.Action, want[i])
		}
	}
}

func TestMerge_ClosedStore(t *testing.T) {
	m, s := newMerger(t)
	s.Close()

	var se *storage.StoreError
	_, err := m.Merge(context.Background(), jazz())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.As(err, &se) {
		t.Errorf("error = %v, want *storage.StoreError in chain", err)
	}
}
