package filter

import (
	"testing"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
)

func stored(title, date, source, location string, review bool) *event.StoredEvent {
	return &event.StoredEvent{NormalizedEvent: event.NormalizedEvent{
		Title:       title,
		Date:        date,
		Source:      source,
		Location:    location,
		Description: title + " details",
		NeedsReview: review,
	}}
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrBool(b bool) *bool           { return &b }

func TestFilter_IsEmpty(t *testing.T) {
	f := NewFilter()
	if !f.IsEmpty() {
		t.Error("new filter should be empty")
	}
	if f.String() != "No active filters" {
		t.Errorf("String() = %q", f.String())
	}
	f.WeekendsOnly = true
	if f.IsEmpty() {
		t.Error("filter with WeekendsOnly should not be empty")
	}
}

func TestFilter_Matches(t *testing.T) {
	// 2024-03-09 is a Saturday.
	poetry := stored("Poetry Open Mic", "2024-03-09", "trident", "Trident Café, Boulder", false)
	ballet := stored("Ballet Gala", "2024-03-12", "dairy", "Dairy Arts Center", true)

	tests := []struct {
		name   string
		filter *Filter
		evt    *event.StoredEvent
		want   bool
	}{
		{name: "empty matches", filter: NewFilter(), evt: poetry, want: true},
		{
			name:   "inside range",
			filter: &Filter{DateFrom: ptrTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), DateTo: ptrTime(time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC))},
			evt:    poetry,
			want:   true,
		},
		{
			name:   "after range",
			filter: &Filter{DateTo: ptrTime(time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC))},
			evt:    ballet,
			want:   false,
		},
		{
			name:   "before range",
			filter: &Filter{DateFrom: ptrTime(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))},
			evt:    poetry,
			want:   false,
		},
		{name: "source match ignores case", filter: &Filter{Sources: []string{"Trident"}}, evt: poetry, want: true},
		{name: "source mismatch", filter: &Filter{Sources: []string{"eventbrite"}}, evt: poetry, want: false},
		{name: "search title", filter: &Filter{Search: []string{"open mic"}}, evt: poetry, want: true},
		{name: "search location", filter: &Filter{Search: []string{"arts center"}}, evt: ballet, want: true},
		{name: "search miss", filter: &Filter{Search: []string{"chess"}}, evt: ballet, want: false},
		{name: "needs review only", filter: &Filter{NeedsReview: ptrBool(true)}, evt: poetry, want: false},
		{name: "approved only", filter: &Filter{NeedsReview: ptrBool(false)}, evt: poetry, want: true},
		{name: "weekend", filter: &Filter{WeekendsOnly: true}, evt: poetry, want: true},
		{name: "weekday", filter: &Filter{WeekendsOnly: true}, evt: ballet, want: false},
		{
			name:   "all criteria",
			filter: &Filter{Sources: []string{"dairy"}, Search: []string{"gala"}, NeedsReview: ptrBool(true)},
			evt:    ballet,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.evt); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Apply(t *testing.T) {
	events := []*event.StoredEvent{
		stored("Poetry Open Mic", "2024-03-09", "trident", "", false),
		stored("Ballet Gala", "2024-03-12", "dairy", "", true),
		stored("Jazz Trio", "2024-03-16", "trident", "", false),
	}

	if got := NewFilter().Apply(events); len(got) != 3 {
		t.Errorf("empty filter returned %d events", len(got))
	}

	f := &Filter{Sources: []string{"trident"}}
	got := f.Apply(events)
	if len(got) != 2 || got[0].Title != "Poetry Open Mic" || got[1].Title != "Jazz Trio" {
		t.Errorf("Apply() = %+v", got)
	}
}

func TestFilter_Bounds(t *testing.T) {
	f := &Filter{DateFrom: ptrTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))}
	from, to := f.Bounds()
	if from != "2024-03-01" || to != "" {
		t.Errorf("Bounds() = %q, %q", from, to)
	}
}

func TestFilter_String(t *testing.T) {
	f := &Filter{
		DateFrom:     ptrTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		Sources:      []string{"trident", "dairy"},
		NeedsReview:  ptrBool(true),
		WeekendsOnly: true,
	}
	want := "From: Mar 1, 2024 | Sources: trident, dairy | Needs review | Weekends only"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
