package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/extract"
	"github.com/coherentcalendar/coherent-events/internal/interpret"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
	"github.com/coherentcalendar/coherent-events/internal/storage"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "~/.config/coherent-events/config.yaml"

// Source kinds.
const (
	KindStructural = "structural"
	KindHeuristic  = "heuristic"
	KindAI         = "ai"
	KindICS        = "ics"
)

// Announcement channels.
const (
	ChannelTwitter  = "twitter"
	ChannelTelegram = "telegram"
)

const (
	DefaultConcurrency   = 4
	DefaultRetentionDays = 30
	DefaultTimezone      = "America/Denver"
	DefaultAPIKeyEnv     = "OPENAI_API_KEY"
	DefaultRunSchedule   = "0 */6 * * *"
	DefaultPruneSchedule = "30 3 * * *"
)

// RenderConfig controls headless browser rendering.
type RenderConfig struct {
	// Enabled defaults to true when unset.
	Enabled  *bool         `yaml:"enabled,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
	ExecPath string        `yaml:"exec_path,omitempty"`
}

// IsEnabled reports whether pages may be rendered in a browser.
func (r RenderConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// InterpreterConfig configures the AI-assisted extractor. The API key is
// read from the environment variable named by APIKeyEnv, never from the file.
type InterpreterConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxInputChars int           `yaml:"max_input_chars"`
	Retries       int           `yaml:"retries"`
}

// APIKey returns the key from the configured environment variable.
func (c InterpreterConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// ScheduleConfig holds cron specs for the schedule command.
type ScheduleConfig struct {
	Run   string `yaml:"run"`
	Prune string `yaml:"prune"`
}

// AnnounceConfig controls announcements of newly inserted events.
// Credentials come from the TWITTER_* or TELEGRAM_* environment variables.
type AnnounceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Channel is twitter (one post per event) or telegram (one digest).
	Channel string `yaml:"channel"`
	// MaxPerRun caps announcements per run; 0 means no limit.
	MaxPerRun int `yaml:"max_per_run"`
}

// SourceConfig describes one event source.
type SourceConfig struct {
	Name string `yaml:"name"`
	// Kind is structural, heuristic, ai or ics. Empty means structural when
	// a preset or selectors are given, heuristic otherwise.
	Kind   string `yaml:"kind,omitempty"`
	URL    string `yaml:"url,omitempty"`
	Render string `yaml:"render,omitempty"`
	Preset string `yaml:"preset,omitempty"`
	// Location fills events whose listing names none.
	Location  string             `yaml:"location,omitempty"`
	Selectors *extract.Selectors `yaml:"selectors,omitempty"`
	BaseURL   string             `yaml:"base_url,omitempty"`
	SourceID  string             `yaml:"source_id,omitempty"`
	// MultiDate splits listings naming several dates into one event per
	// date. Unset keeps the preset's behaviour, off for plain selectors.
	MultiDate *bool `yaml:"multi_date,omitempty"`
	Enabled   *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the source takes part in runs.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Config is the top-level application configuration.
type Config struct {
	Database            string            `yaml:"database"`
	LogLevel            string            `yaml:"log_level"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold"`
	UserAgent           string            `yaml:"user_agent"`
	HTTPTimeout         time.Duration     `yaml:"http_timeout"`
	FetchRetries        int               `yaml:"fetch_retries"`
	Concurrency         int               `yaml:"concurrency"`
	RetentionDays       int               `yaml:"retention_days"`
	Timezone            string            `yaml:"timezone"`
	Render              RenderConfig      `yaml:"render"`
	Interpreter         InterpreterConfig `yaml:"interpreter"`
	Schedule            ScheduleConfig    `yaml:"schedule"`
	Announce            AnnounceConfig    `yaml:"announce"`
	Sources             []SourceConfig    `yaml:"sources"`
}

// DefaultConfig returns the built-in configuration with the three preset
// venues enabled.
func DefaultConfig() *Config {
	cfg := &Config{
		Database:            storage.DefaultPath,
		LogLevel:            "info",
		ConfidenceThreshold: event.DefaultConfidenceThreshold,
		UserAgent:           scraper.UserAgent,
		HTTPTimeout:         scraper.Timeout,
		Concurrency:         DefaultConcurrency,
		RetentionDays:       DefaultRetentionDays,
		Timezone:            DefaultTimezone,
		Render:              RenderConfig{Timeout: scraper.RenderTimeout},
		Schedule:            ScheduleConfig{Run: DefaultRunSchedule, Prune: DefaultPruneSchedule},
	}
	for _, name := range extract.PresetNames() {
		cfg.Sources = append(cfg.Sources, SourceConfig{Name: name, Kind: KindStructural, Preset: name})
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Database == "" {
		c.Database = storage.DefaultPath
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = event.DefaultConfidenceThreshold
	}
	if c.UserAgent == "" {
		c.UserAgent = scraper.UserAgent
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = scraper.Timeout
	}
	if c.FetchRetries < 0 {
		c.FetchRetries = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Render.Timeout <= 0 {
		c.Render.Timeout = scraper.RenderTimeout
	}

	in := &c.Interpreter
	if in.BaseURL == "" {
		in.BaseURL = interpret.DefaultBaseURL
	}
	if in.Model == "" {
		in.Model = interpret.DefaultModel
	}
	if in.APIKeyEnv == "" {
		in.APIKeyEnv = DefaultAPIKeyEnv
	}
	if in.Timeout <= 0 {
		in.Timeout = interpret.DefaultTimeout
	}
	if in.MaxInputChars <= 0 {
		in.MaxInputChars = interpret.DefaultMaxInputChars
	}
	if in.Retries < 0 {
		in.Retries = 0
	}

	if c.Schedule.Run == "" {
		c.Schedule.Run = DefaultRunSchedule
	}
	if c.Schedule.Prune == "" {
		c.Schedule.Prune = DefaultPruneSchedule
	}
	c.Announce.Channel = strings.ToLower(strings.TrimSpace(c.Announce.Channel))
	if c.Announce.Channel == "" {
		c.Announce.Channel = ChannelTwitter
	}
	if c.Announce.MaxPerRun < 0 {
		c.Announce.MaxPerRun = 0
	}

	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Name = strings.TrimSpace(s.Name)
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			if s.Preset != "" || s.Selectors != nil {
				s.Kind = KindStructural
			} else {
				s.Kind = KindHeuristic
			}
		}
		if s.Name == "" && s.Preset != "" {
			s.Name = s.Preset
		}
	}
}

// Location returns the configured timezone, or UTC if it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports configuration mistakes that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if ch := c.Announce.Channel; ch != ChannelTwitter && ch != ChannelTelegram {
		errs = append(errs, fmt.Errorf("announce: unknown channel %q", ch))
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("source %d: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("source %s: duplicate name", s.Name))
		}
		seen[s.Name] = true

		if _, err := scraper.ParseRenderMode(s.Render); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", s.Name, err))
		}

		switch s.Kind {
		case KindStructural:
			if s.Preset != "" {
				if _, ok := extract.LookupPreset(s.Preset, s.Name); !ok {
					errs = append(errs, fmt.Errorf("source %s: unknown preset %q", s.Name, s.Preset))
				}
				continue
			}
			if s.Selectors == nil {
				errs = append(errs, fmt.Errorf("source %s: structural source needs a preset or selectors", s.Name))
			}
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("source %s: url is required", s.Name))
			}
		case KindHeuristic, KindAI, KindICS:
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("source %s: url is required", s.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("source %s: unknown kind %q", s.Name, s.Kind))
		}
	}
	return errors.Join(errs...)
}

// ExpandPath replaces a leading ~/ with the home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// Load reads the configuration at path. A missing file is created with the
// defaults, which are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	path, err := ExpandPath(path)
	if err != nil {
		return err
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".coherent-events-config-*.tmp")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
