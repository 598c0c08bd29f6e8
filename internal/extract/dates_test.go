package extract

import (
	"reflect"
	"testing"
)

func TestExpandDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "single full date", text: "March 15th, 2024", want: []string{"March 15th, 2024"}},
		{name: "several full dates", text: "March 15th, 2024 & March 22nd, 2024", want: []string{"March 15th, 2024", "March 22nd, 2024"}},
		{name: "numeric dates", text: "4/12/2024, 4/13/2024", want: []string{"4/12/2024", "4/13/2024"}},
		{name: "year added when missing", text: "April 3 and April 10", want: []string{"April 3, 2024", "April 10, 2024"}},
		{name: "first matching pattern wins", text: "May 1, 2024 (doors May 1)", want: []string{"May 1, 2024"}},
		{name: "weekday and time around a year-less date", text: "Sat, Feb 10, 7:00 PM", want: []string{"Feb 10, 2024"}},
		{name: "nothing date-like", text: "TBA", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandDates(tt.text, 2024); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandDates(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestFindDate(t *testing.T) {
	tests := []struct {
		text, want string
	}{
		{"Join us Thursday, March 14, 2024 at 6:30 PM", "Thursday, March 14, 2024"},
		{"Opens Sept. 5th, 2024 downtown", "Sept. 5th, 2024"},
		{"Posted 2024-03-01 by staff", "2024-03-01"},
		{"Deadline 3/15/2024", "3/15/2024"},
		{"Sometime in spring", ""},
	}
	for _, tt := range tests {
		if got := findDate(tt.text); got != tt.want {
			t.Errorf("findDate(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
