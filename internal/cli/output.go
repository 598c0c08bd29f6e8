package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/pipeline"
	"github.com/coherentcalendar/coherent-events/internal/storage"
	"github.com/mattn/go-runewidth"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// maxCellWidth truncates long table cells such as error messages.
const maxCellWidth = 60

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

// ListResult is the JSON shape of the list command.
type ListResult struct {
	Filter     string               `json:"filter"`
	EventCount int                  `json:"event_count"`
	Events     []*event.StoredEvent `json:"events"`
}

// PruneResult is the JSON shape of the prune command.
type PruneResult struct {
	RetentionDays int   `json:"retention_days"`
	Deleted       int64 `json:"deleted"`
}

// SourceInfo describes a configured source for the sources command.
type SourceInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	URL         string `json:"url"`
	Render      string `json:"render"`
	Enabled     bool   `json:"enabled"`
	Events      int64  `json:"events"`
	NeedsReview int64  `json:"needs_review"`
	Error       string `json:"error,omitempty"`
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteRunResult writes a pipeline run summary.
func WriteRunResult(w io.Writer, res *pipeline.Result, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, res)
	}

	rows := make([][]string, 0, len(res.Sources))
	for _, s := range res.Sources {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Candidates),
			strconv.Itoa(s.Dropped),
			strconv.Itoa(s.Inserted),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Unchanged),
			s.Error,
		})
	}
	writeTable(w, []string{"SOURCE", "FOUND", "DROPPED", "NEW", "UPDATED", "UNCHANGED", "ERROR"}, rows)

	fmt.Fprintf(w, "\nTotal: %d events stored (%d new, %d updated, %d unchanged), %d dropped",
		res.EventCount, res.Inserted, res.Updated, res.Unchanged, res.Dropped)
	if n := len(res.Errors); n > 0 {
		fmt.Fprintf(w, ", %d of %d sources failed", n, len(res.Sources))
	}
	fmt.Fprintln(w)
	return nil
}

// WriteEvents writes a list of events.
func WriteEvents(w io.Writer, result *ListResult, format OutputFormat, verbose bool) error {
	if format == FormatJSON {
		if result.Events == nil {
			result.Events = []*event.StoredEvent{}
		}
		return writeJSON(w, result)
	}

	if result.EventCount == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	header := []string{"DATE", "TIME", "TITLE", "LOCATION", "SOURCE", ""}
	if verbose {
		header = append([]string{"ID"}, header...)
	}
	rows := make([][]string, 0, len(result.Events))
	for _, evt := range result.Events {
		review := ""
		if evt.NeedsReview {
			review = "needs review"
		}
		row := []string{evt.Date, evt.Time, evt.Title, evt.Location, evt.Source, review}
		if verbose {
			row = append([]string{strconv.FormatInt(evt.ID, 10)}, row...)
		}
		rows = append(rows, row)
	}
	writeTable(w, header, rows)

	if verbose {
		for _, evt := range result.Events {
			if evt.URL == "" && evt.Description == "" {
				continue
			}
			fmt.Fprintf(w, "\n#%d %s\n", evt.ID, evt.Title)
			if evt.URL != "" {
				fmt.Fprintf(w, "     URL: %s\n", evt.URL)
			}
			if evt.Description != "" {
				fmt.Fprintf(w, "     %s\n", runewidth.Truncate(evt.Description, 2*maxCellWidth, "..."))
			}
		}
	}

	fmt.Fprintf(w, "\nTotal: %d events (%s)\n", result.EventCount, result.Filter)
	return nil
}

// WriteCandidates writes normalized events that were not stored.
func WriteCandidates(w io.Writer, events []*event.NormalizedEvent, format OutputFormat) error {
	if format == FormatJSON {
		if events == nil {
			events = []*event.NormalizedEvent{}
		}
		return writeJSON(w, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.Date, ev.Time, ev.Title, ev.Location,
			strconv.FormatFloat(ev.Confidence(), 'f', 2, 64),
		})
	}
	writeTable(w, []string{"DATE", "TIME", "TITLE", "LOCATION", "CONFIDENCE"}, rows)
	fmt.Fprintf(w, "\nTotal: %d events (not stored)\n", len(events))
	return nil
}

// WriteSources writes the configured sources with their stored counts.
func WriteSources(w io.Writer, sources []SourceInfo, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, sources)
	}
	rows := make([][]string, 0, len(sources))
	for _, s := range sources {
		enabled := "yes"
		if !s.Enabled {
			enabled = "no"
		}
		rows = append(rows, []string{
			s.Name, s.Kind, s.Render, enabled,
			strconv.FormatInt(s.Events, 10), strconv.FormatInt(s.NeedsReview, 10), s.URL,
		})
	}
	writeTable(w, []string{"NAME", "KIND", "RENDER", "ENABLED", "EVENTS", "REVIEW", "URL"}, rows)
	return nil
}

// WritePrune writes the outcome of a retention pass.
func WritePrune(w io.Writer, res PruneResult, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Deleted %d events older than %d days.\n", res.Deleted, res.RetentionDays)
	return nil
}

// sourceCounts indexes per-source store counts by name.
func sourceCounts(counts []storage.SourceCount) map[string]storage.SourceCount {
	m := make(map[string]storage.SourceCount, len(counts))
	for _, c := range counts {
		m[c.Source] = c
	}
	return m
}

// writeTable writes left-aligned columns padded by display width, so
// accented and wide characters line up.
func writeTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, header)
	for _, row := range rows {
		clipped := make([]string, len(header))
		for i := range header {
			if i < len(row) {
				clipped[i] = runewidth.Truncate(row[i], maxCellWidth, "...")
			}
		}
		cells = append(cells, clipped)
	}

	for _, row := range cells {
		for i, c := range row {
			if width := runewidth.StringWidth(c); width > widths[i] {
				widths[i] = width
			}
		}
	}

	for _, row := range cells {
		var sb strings.Builder
		for i, c := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(c)
			if i < len(row)-1 {
				if pad := widths[i] - runewidth.StringWidth(c); pad > 0 {
					sb.WriteString(strings.Repeat(" ", pad))
				}
			}
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
}
