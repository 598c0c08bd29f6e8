package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/coherentcalendar/coherent-events/internal/config"
	"github.com/coherentcalendar/coherent-events/internal/extract"
	"github.com/coherentcalendar/coherent-events/internal/interpret"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/notifier"
	"github.com/coherentcalendar/coherent-events/internal/pipeline"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		sources  []string
		announce bool
		dryRun   bool
		prune    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scrape the configured sources and store their events",
		Long: `Fetch every enabled source, extract and normalize its events, and merge
them into the database. A failing source does not stop the others; the exit
status is 2 when any source failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, runErr := a.runPipeline(cmd.Context(), sources)
			if res != nil {
				if err := WriteRunResult(cmd.OutOrStdout(), res, a.format); err != nil {
					return fmt.Errorf("writing output: %w", err)
				}
			}
			if runErr != nil {
				return runErr
			}

			if announce || a.cfg.Announce.Enabled {
				out := cmd.OutOrStdout()
				if a.format == FormatJSON {
					out = cmd.ErrOrStderr()
				}
				a.announce(cmd.Context(), res, dryRun, out)
			}
			if prune {
				if _, err := a.orch.Prune(cmd.Context()); err != nil {
					return err
				}
			}
			if a.verbose {
				writeJSON(cmd.ErrOrStderr(), logger.GetMetricsSnapshot())
			}

			if len(res.Errors) > 0 {
				return &exitCodeError{code: ExitSourceErrors}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "Only run the named sources (repeatable)")
	cmd.Flags().BoolVar(&announce, "announce", false, "Announce newly added events")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print announcements instead of posting them")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete past events after the run")

	return cmd
}

// runPipeline runs the named sources, or every enabled one.
func (a *app) runPipeline(ctx context.Context, names []string) (*pipeline.Result, error) {
	selected, err := pipeline.Select(pipeline.BuildSources(a.cfg, a.interp), names)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, errors.New("no enabled sources to run")
	}
	return a.orch.Run(ctx, selected)
}

// announce posts newly inserted events, or prints them to out on a dry run.
// Failures are logged; the events are already stored.
func (a *app) announce(ctx context.Context, res *pipeline.Result, dryRun bool, out io.Writer) {
	events := notifier.Announceable(res.NewEvents(), a.cfg.Announce.MaxPerRun)
	if len(events) == 0 {
		logger.Info("Nothing to announce", nil)
		return
	}

	var n notifier.Notifier
	if dryRun {
		n = notifier.NewDryRunNotifier(out)
	} else {
		var err error
		n, err = a.newNotifier()
		if err != nil {
			logger.Error("Announcements disabled", logger.Fields{"channel": a.cfg.Announce.Channel}, err)
			return
		}
	}

	if err := n.Notify(ctx, events); err != nil {
		logger.Error("Announcing events failed", logger.Fields{"events": len(events)}, err)
		return
	}
	logger.Info("Announced events", logger.Fields{"events": len(events), "dry_run": dryRun})
}

// newNotifier returns the notifier for the configured channel.
func (a *app) newNotifier() (notifier.Notifier, error) {
	if a.cfg.Announce.Channel == config.ChannelTelegram {
		return notifier.NewTelegramNotifier()
	}
	return notifier.NewTwitterNotifier()
}

func newScrapeURLCmd(opts *rootOptions) *cobra.Command {
	var (
		useAI  bool
		source string
		render string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "scrape-url <url>",
		Short: "Scrape events from a single page",
		Long: `Scrape one page with the generic extractor, or with the AI-assisted
extractor when --ai is given, and store the events it finds. With --dry-run the
events are printed and nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(strings.TrimSpace(args[0]))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("invalid URL: %s (must be http or https)", args[0])
			}
			mode, err := scraper.ParseRenderMode(render)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			name := source
			if name == "" {
				name = u.Hostname()
			}
			src := pipeline.Source{Name: name, URL: u.String(), Render: mode}
			if useAI {
				if a.interp == nil {
					return fmt.Errorf("--ai: %w (set %s)", pipeline.ErrNoInterpreter, a.cfg.Interpreter.APIKeyEnv)
				}
				src.Extractor = interpret.NewExtractor(name, a.interp, a.cfg.Interpreter.MaxInputChars)
			} else {
				src.Extractor = extract.NewHeuristic(name)
			}

			if dryRun {
				events, _, err := a.orch.Collect(cmd.Context(), src)
				if err != nil {
					return err
				}
				return WriteCandidates(cmd.OutOrStdout(), events, a.format)
			}

			res, err := a.orch.Run(cmd.Context(), []pipeline.Source{src})
			if res != nil {
				if err := WriteRunResult(cmd.OutOrStdout(), res, a.format); err != nil {
					return fmt.Errorf("writing output: %w", err)
				}
			}
			if err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return &exitCodeError{code: ExitSourceErrors}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useAI, "ai", false, "Use the AI-assisted extractor")
	cmd.Flags().StringVar(&source, "source", "", "Source name to store events under (default: the host name)")
	cmd.Flags().StringVar(&render, "render", string(scraper.RenderFallback), "Browser rendering: never, fallback or always")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the events without storing them")

	return cmd
}
