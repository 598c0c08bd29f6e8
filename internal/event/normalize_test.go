package event

import (
	"errors"
	"testing"
)

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		ev   NormalizedEvent
		want float64
	}{
		{
			name: "title and date only",
			ev:   NormalizedEvent{Title: "Open Mic", Date: "2024-02-10"},
			want: 0.8,
		},
		{
			name: "every field",
			ev: NormalizedEvent{
				Title:       "Open Mic",
				Date:        "2024-02-10",
				Time:        "19:00",
				Location:    "Trident Café, Boulder",
				Description: "Bring a song.",
				URL:         "https://tridentcafe.com/events/open-mic",
			},
			want: 1.0,
		},
		{
			name: "one optional field",
			ev:   NormalizedEvent{Title: "Open Mic", Date: "2024-02-10", Location: "Boulder"},
			want: 0.85,
		},
		{
			name: "missing title",
			ev:   NormalizedEvent{Date: "2024-02-10", Time: "19:00"},
			want: 0.45,
		},
		{
			name: "blank strings count as missing",
			ev:   NormalizedEvent{Title: "Open Mic", Date: "2024-02-10", Location: "   "},
			want: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Confidence(); got != tt.want {
				t.Errorf("Confidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Jazz   Night  ", "Jazz Night"},
		{"Line one\n\n  line two\t", "Line one line two"},
		{"", ""},
		{"\n\t ", ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewNormalizer_Threshold(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.7, 0.7},
		{0.9, 0.9},
		{1, 1},
		{0, DefaultConfidenceThreshold},
		{-1, DefaultConfidenceThreshold},
		{1.5, DefaultConfidenceThreshold},
	}
	for _, tt := range tests {
		if got := NewNormalizer(tt.in).Threshold(); got != tt.want {
			t.Errorf("NewNormalizer(%v).Threshold() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(DefaultConfidenceThreshold)

	tests := []struct {
		name    string
		in      CandidateEvent
		want    NormalizedEvent
		wantErr bool
	}{
		{
			name: "minimal candidate is not flagged",
			in:   CandidateEvent{Title: "Open Mic", DateText: "February 10, 2024", Source: "trident"},
			want: NormalizedEvent{Title: "Open Mic", Date: "2024-02-10", Source: "trident"},
		},
		{
			name: "whitespace is collapsed",
			in: CandidateEvent{
				Title:       "  Open\n  Mic ",
				DateText:    "Feb 10, 2024",
				TimeText:    " 7:30 pm ",
				Location:    "Trident  Café,\nBoulder",
				Description: "Bring\n\na song.",
				URL:         " https://tridentcafe.com/events/open-mic ",
				Source:      "trident",
				SourceID:    " open-mic ",
			},
			want: NormalizedEvent{
				Title:       "Open Mic",
				Date:        "2024-02-10",
				Time:        "19:30",
				Location:    "Trident Café, Boulder",
				Description: "Bring a song.",
				URL:         "https://tridentcafe.com/events/open-mic",
				Source:      "trident",
				SourceID:    "open-mic",
			},
		},
		{
			name: "time folded into date line",
			in:   CandidateEvent{Title: "Gallery Walk", DateText: "Sat, Feb 10, 2024 6:00 PM", Source: "dairy"},
			want: NormalizedEvent{Title: "Gallery Walk", Date: "2024-02-10", Time: "18:00", Source: "dairy"},
		},
		{
			name:    "numeric date with trailing text is rejected",
			in:      CandidateEvent{Title: "Gallery Walk", DateText: "2024-02-10 7pm", Source: "dairy"},
			wantErr: true,
		},
		{
			name: "unparseable time with valid date",
			in:   CandidateEvent{Title: "Gallery Walk", DateText: "2024-02-10", TimeText: "evening", Source: "dairy"},
			want: NormalizedEvent{Title: "Gallery Walk", Date: "2024-02-10", Source: "dairy"},
		},
		{
			name:    "unparseable date is rejected",
			in:      CandidateEvent{Title: "Someday", DateText: "TBA", Source: "web"},
			wantErr: true,
		},
		{
			name:    "missing date is rejected",
			in:      CandidateEvent{Title: "Someday", Source: "web"},
			wantErr: true,
		},
		{
			name:    "impossible date is rejected",
			in:      CandidateEvent{Title: "Leap", DateText: "February 30th, 2024", Source: "web"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.in)
			if tt.wantErr {
				var dpe *DateParseError
				if !errors.As(err, &dpe) {
					t.Fatalf("Normalize() error = %v, want *DateParseError", err)
				}
				if got != nil {
					t.Errorf("Normalize() returned event %+v alongside error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("Normalize() = %+v\nwant %+v", *got, tt.want)
			}
		})
	}
}

func TestNormalize_NeedsReview(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		in        CandidateEvent
		want      bool
	}{
		{
			name:      "0.8 passes default threshold",
			threshold: 0.7,
			in:        CandidateEvent{Title: "Open Mic", DateText: "2024-02-10"},
			want:      false,
		},
		{
			name:      "missing title is flagged",
			threshold: 0.7,
			in:        CandidateEvent{DateText: "2024-02-10", TimeText: "7pm", Location: "Boulder", Description: "x", URL: "u"},
			want:      true,
		},
		{
			name:      "score equal to threshold is not flagged",
			threshold: 0.8,
			in:        CandidateEvent{Title: "Open Mic", DateText: "2024-02-10"},
			want:      false,
		},
		{
			name:      "stricter threshold flags sparse event",
			threshold: 0.9,
			in:        CandidateEvent{Title: "Open Mic", DateText: "2024-02-10", Location: "Boulder"},
			want:      true,
		},
		{
			name:      "complete event passes strict threshold",
			threshold: 1,
			in: CandidateEvent{
				Title: "Open Mic", DateText: "2024-02-10", TimeText: "7pm",
				Location: "Boulder", Description: "Songs", URL: "https://example.com/e/1",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewNormalizer(tt.threshold).Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if ev.NeedsReview != tt.want {
				t.Errorf("NeedsReview = %v (confidence %v), want %v", ev.NeedsReview, ev.Confidence(), tt.want)
			}
		})
	}
}

func TestNormalizeAll(t *testing.T) {
	n := NewNormalizer(0)
	in := []CandidateEvent{
		{Title: "A", DateText: "2024-02-10"},
		{Title: "B", DateText: "whenever"},
		{Title: "C", DateText: "March 3, 2024"},
		{Title: "D"},
	}

	got, dropped := n.NormalizeAll(in)
	if len(got) != 2 {
		t.Fatalf("NormalizeAll() kept %d events, want 2", len(got))
	}
	if got[0].Title != "A" || got[1].Title != "C" {
		t.Errorf("kept titles = %q, %q; want A, C", got[0].Title, got[1].Title)
	}
	if len(dropped) != 2 {
		t.Fatalf("dropped = %v, want indexes 1 and 3", dropped)
	}
	for _, i := range []int{1, 3} {
		if _, ok := dropped[i]; !ok {
			t.Errorf("index %d not reported as dropped", i)
		}
	}
}

func TestNormalizeAll_NothingDropped(t *testing.T) {
	got, dropped := NewNormalizer(0).NormalizeAll([]CandidateEvent{{Title: "A", DateText: "2024-02-10"}})
	if len(got) != 1 || dropped != nil {
		t.Errorf("NormalizeAll() = %d events, dropped %v", len(got), dropped)
	}
}
