package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ConfidenceThreshold != event.DefaultConfidenceThreshold {
		t.Errorf("ConfidenceThreshold = %v", cfg.ConfidenceThreshold)
	}
	if len(cfg.Sources) != 3 {
		t.Errorf("got %d default sources, want 3", len(cfg.Sources))
	}
	if !cfg.Render.IsEnabled() {
		t.Error("rendering should be enabled by default")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if again.HTTPTimeout != scraper.Timeout || len(again.Sources) != 3 {
		t.Errorf("reloaded config = %+v", again)
	}
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/events.db
confidence_threshold: 0.9
http_timeout: 5s
render:
  enabled: false
sources:
  - name: boulder-library
    url: https://boulderlibrary.org/events/
  - name: venue-feed
    kind: ICS
    url: https://example.com/feed.ics
  - preset: trident
    multi_date: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database != "/tmp/events.db" {
		t.Errorf("Database = %q", cfg.Database)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("ConfidenceThreshold = %v", cfg.ConfidenceThreshold)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.Render.IsEnabled() {
		t.Error("rendering should be disabled")
	}
	if cfg.Concurrency != DefaultConcurrency || cfg.RetentionDays != DefaultRetentionDays {
		t.Errorf("defaults not applied: concurrency=%d retention=%d", cfg.Concurrency, cfg.RetentionDays)
	}
	if cfg.FetchRetries != 0 {
		t.Errorf("FetchRetries = %d, want 0", cfg.FetchRetries)
	}
	if cfg.Interpreter.APIKeyEnv != DefaultAPIKeyEnv {
		t.Errorf("APIKeyEnv = %q", cfg.Interpreter.APIKeyEnv)
	}
	if cfg.Announce.Channel != ChannelTwitter {
		t.Errorf("Announce.Channel = %q, want %q", cfg.Announce.Channel, ChannelTwitter)
	}

	wantKinds := []string{KindHeuristic, KindICS, KindStructural}
	for i, want := range wantKinds {
		if cfg.Sources[i].Kind != want {
			t.Errorf("source %d kind = %q, want %q", i, cfg.Sources[i].Kind, want)
		}
	}
	if cfg.Sources[2].Name != "trident" {
		t.Errorf("preset source name = %q, want trident", cfg.Sources[2].Name)
	}
	if md := cfg.Sources[2].MultiDate; md == nil || !*md {
		t.Errorf("trident multi_date = %v, want true", md)
	}
	if cfg.Sources[0].MultiDate != nil {
		t.Error("multi_date should stay unset when not given")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad yaml", content: "sources: [", wantErr: "parsing config"},
		{
			name:    "unknown kind",
			content: "sources:\n  - name: x\n    kind: rss\n    url: https://example.com\n",
			wantErr: `unknown kind "rss"`,
		},
		{
			name:    "unknown preset",
			content: "sources:\n  - name: x\n    preset: nowhere\n",
			wantErr: `unknown preset "nowhere"`,
		},
		{
			name:    "missing url",
			content: "sources:\n  - name: x\n    kind: ai\n",
			wantErr: "url is required",
		},
		{
			name:    "structural without selectors",
			content: "sources:\n  - name: x\n    kind: structural\n    url: https://example.com\n",
			wantErr: "needs a preset or selectors",
		},
		{
			name:    "duplicate names",
			content: "sources:\n  - preset: trident\n  - preset: trident\n",
			wantErr: "duplicate name",
		},
		{
			name:    "bad render mode",
			content: "sources:\n  - name: x\n    url: https://example.com\n    render: sometimes\n",
			wantErr: "invalid render mode",
		},
		{
			name:    "unknown announce channel",
			content: "announce:\n  channel: fax\n",
			wantErr: `unknown channel "fax"`,
		},
		{
			name:    "bad timezone",
			content: "timezone: Mars/Olympus\n",
			wantErr: "timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	disabled := false

	cfg := DefaultConfig()
	cfg.FetchRetries = 2
	cfg.Sources = append(cfg.Sources, SourceConfig{
		Name:    "library",
		URL:     "https://boulderlibrary.org/events/",
		Kind:    KindAI,
		Enabled: &disabled,
	})

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.FetchRetries != 2 {
		t.Errorf("FetchRetries = %d", got.FetchRetries)
	}
	last := got.Sources[len(got.Sources)-1]
	if last.Name != "library" || last.IsEnabled() {
		t.Errorf("last source = %+v", last)
	}
	if got.Render.Timeout != scraper.RenderTimeout {
		t.Errorf("Render.Timeout = %v", got.Render.Timeout)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestSave_Errors(t *testing.T) {
	if err := Save("", DefaultConfig()); err == nil {
		t.Error("expected error for empty path")
	}
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Location().String(); got != DefaultTimezone {
		t.Errorf("Location() = %s", got)
	}
	cfg.Timezone = "Nowhere/Special"
	if cfg.Location() != time.UTC {
		t.Error("unknown timezone should fall back to UTC")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/x/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x", "config.yaml") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got, _ := ExpandPath("/etc/config.yaml"); got != "/etc/config.yaml" {
		t.Errorf("absolute path changed: %q", got)
	}
}
