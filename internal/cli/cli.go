package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coherentcalendar/coherent-events/internal/config"
	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/interpret"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/pipeline"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
	"github.com/coherentcalendar/coherent-events/internal/storage"
	"github.com/spf13/cobra"
)

const (
	ExitSuccess      = 0
	ExitError        = 1
	ExitSourceErrors = 2
)

// Version is reported by --version. It is set by main.
var Version = "dev"

// exitCodeError ends the command with a specific exit code and no message.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	format     string
	verbose    bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "coherent-events",
		Short: "Scrape, normalize and store community events",
		Long: `A CLI tool that collects community events from venue websites,
normalizes them, and keeps a deduplicated calendar in SQLite.

Sources are configured in a YAML file. Run "coherent-events run" to scrape
them all, or "coherent-events schedule" to keep scraping periodically.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to the YAML configuration file")
	pf.StringVar(&opts.dbPath, "db", "", "Database path (overrides the config file)")
	pf.StringVar(&opts.format, "format", "text", "Output format: text or json")
	pf.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(
		newRunCmd(opts),
		newScrapeURLCmd(opts),
		newPruneCmd(opts),
		newListCmd(opts),
		newExportCmd(opts),
		newSourcesCmd(opts),
		newScheduleCmd(opts),
	)
	return cmd
}

// app holds everything a command needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	format  OutputFormat
	verbose bool
	store   *storage.Store
	fetcher *scraper.Fetcher
	// interp is nil when no interpretation service is configured.
	interp interpret.Interpreter
	orch   *pipeline.Orchestrator
}

// open loads configuration, sets up logging and opens the store.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	format, err := parseFormat(o.format)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		if cfg == nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		// Defaults are usable even if they could not be written.
		logger.Warn("Could not write default config", logger.Fields{"path": o.configPath, "error": err.Error()})
	}
	if o.dbPath != "" {
		cfg.Database = o.dbPath
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if o.verbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.New(level, cmd.ErrOrStderr()))

	store, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var renderer scraper.Renderer
	if cfg.Render.IsEnabled() {
		renderer = scraper.NewChromeRenderer(cfg.UserAgent, cfg.Render.Timeout, cfg.Render.ExecPath)
	}

	a := &app{
		cfg:     cfg,
		format:  format,
		verbose: o.verbose,
		store:   store,
		fetcher: scraper.New(scraper.Options{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.HTTPTimeout,
			Retries:   cfg.FetchRetries,
			Renderer:  renderer,
		}),
		interp: newInterpreter(cfg.Interpreter),
	}
	a.orch = a.newOrchestrator()

	logger.Debug("Configuration loaded", logger.Fields{
		"config":   o.configPath,
		"database": cfg.Database,
		"sources":  len(cfg.Sources),
	})
	return a, nil
}

// newInterpreter returns the interpretation client, or nil when the hosted
// service is selected but no API key is set. A custom base_url may be a
// local server that needs no key.
func newInterpreter(ic config.InterpreterConfig) interpret.Interpreter {
	key := ic.APIKey()
	base := strings.TrimRight(ic.BaseURL, "/")
	if key == "" && (base == "" || base == interpret.DefaultBaseURL) {
		return nil
	}
	return interpret.New(interpret.Options{
		BaseURL: ic.BaseURL,
		APIKey:  key,
		Model:   ic.Model,
		Timeout: ic.Timeout,
		Retries: ic.Retries,
	})
}

func (a *app) newOrchestrator() *pipeline.Orchestrator {
	return pipeline.New(a.fetcher, event.NewNormalizer(a.cfg.ConfidenceThreshold), a.store, pipeline.Options{
		Concurrency:   a.cfg.Concurrency,
		RetentionDays: a.cfg.RetentionDays,
	})
}

func (a *app) Close() error {
	return a.store.Close()
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewRootCmd())
	stop()
	os.Exit(code)
}

// run executes cmd and maps its error to an exit code.
func run(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return ExitError
}
