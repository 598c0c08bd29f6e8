package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/calendar"
	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/filter"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/pipeline"
	"github.com/coherentcalendar/coherent-events/internal/schedule"
	"github.com/spf13/cobra"
)

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if days > 0 {
				a.cfg.RetentionDays = days
				a.orch = a.newOrchestrator()
			}
			n, err := a.orch.Prune(cmd.Context())
			if err != nil {
				return err
			}
			return WritePrune(cmd.OutOrStdout(), PruneResult{RetentionDays: a.cfg.RetentionDays, Deleted: n}, a.format)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (default: from config)")
	return cmd
}

// listFlags are the filtering flags shared by list and export.
type listFlags struct {
	month    string
	dateRng  string
	sources  []string
	search   []string
	review   bool
	approved bool
	weekends bool
}

func (lf *listFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&lf.month, "month", "", "Only events in this month (e.g. 'March' or '2024-03')")
	f.StringVar(&lf.dateRng, "range", "", "Only events in this date range (e.g. 'Mar 1-15')")
	f.StringSliceVar(&lf.sources, "source", nil, "Only events from these sources (repeatable)")
	f.StringSliceVar(&lf.search, "search", nil, "Only events mentioning any of these terms")
	f.BoolVar(&lf.review, "needs-review", false, "Only events flagged for review")
	f.BoolVar(&lf.approved, "approved", false, "Only events not flagged for review")
	f.BoolVar(&lf.weekends, "weekends", false, "Only weekend events")
	cmd.MarkFlagsMutuallyExclusive("month", "range")
	cmd.MarkFlagsMutuallyExclusive("needs-review", "approved")
}

func (lf *listFlags) filter() (*filter.Filter, error) {
	f := filter.NewFilter()
	for _, rng := range []string{lf.month, lf.dateRng} {
		if rng == "" {
			continue
		}
		from, to, err := filter.ParseDateRange(rng)
		if err != nil {
			return nil, err
		}
		f.DateFrom, f.DateTo = from, to
	}
	f.Sources = append(f.Sources, lf.sources...)
	f.Search = append(f.Search, lf.search...)
	switch {
	case lf.review:
		v := true
		f.NeedsReview = &v
	case lf.approved:
		v := false
		f.NeedsReview = &v
	}
	f.WeekendsOnly = lf.weekends
	return f, nil
}

// query loads the events matching f, ordered by date.
func (a *app) query(ctx context.Context, f *filter.Filter) ([]*event.StoredEvent, error) {
	from, to := f.Bounds()
	events, err := a.store.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return f.Apply(events), nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		lf        listFlags
		sortOrder string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored events",
		Example: `  coherent-events list --month March
  coherent-events list --range "Mar 1-15" --source trident
  coherent-events list --needs-review --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := parseSortOrder(sortOrder)
			if err != nil {
				return err
			}
			f, err := lf.filter()
			if err != nil {
				return err
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.query(cmd.Context(), f)
			if err != nil {
				return err
			}
			sortEvents(events, order)

			return WriteEvents(cmd.OutOrStdout(), &ListResult{
				Filter:     f.String(),
				EventCount: len(events),
				Events:     events,
			}, a.format, a.verbose)
		},
	}

	lf.register(cmd)
	cmd.Flags().StringVar(&sortOrder, "sort", string(SortByDate), "Sort by: date, source or title")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		lf            listFlags
		out           string
		name          string
		includeReview bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored events as an iCalendar feed",
		Long: `Write the stored events as an iCalendar (.ics) feed. Events flagged for
review are left out unless --include-review is given, in which case they are
marked tentative.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := lf.filter()
			if err != nil {
				return err
			}
			if !includeReview && f.NeedsReview == nil {
				v := false
				f.NeedsReview = &v
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.query(cmd.Context(), f)
			if err != nil {
				return err
			}
			sortEvents(events, SortByDate)

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}

			if err := calendar.Write(w, events, calendar.Options{Name: name, Zone: a.cfg.Location()}); err != nil {
				return fmt.Errorf("writing calendar: %w", err)
			}
			logger.Info("Exported events", logger.Fields{"events": len(events), "out": out})
			return nil
		},
	}

	lf.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&name, "name", calendar.DefaultName, "Calendar name")
	cmd.Flags().BoolVar(&includeReview, "include-review", false, "Include events flagged for review")
	return cmd
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Show configured sources and their stored events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.store.CountBySource(cmd.Context())
			if err != nil {
				return err
			}
			byName := sourceCounts(counts)

			infos := make([]SourceInfo, 0, len(a.cfg.Sources))
			for _, sc := range a.cfg.Sources {
				info := SourceInfo{Name: sc.Name, Kind: sc.Kind, URL: sc.URL, Render: sc.Render, Enabled: sc.IsEnabled()}
				if src, err := pipeline.BuildSource(a.cfg, sc, a.interp); err == nil {
					info.URL = src.URL
					info.Render = string(src.Render)
				} else {
					info.Error = err.Error()
				}
				if c, ok := byName[sc.Name]; ok {
					info.Events = c.Events
					info.NeedsReview = c.NeedsReview
				}
				infos = append(infos, info)
			}
			sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

			return WriteSources(cmd.OutOrStdout(), infos, a.format)
		},
	}
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run and prune on the configured cron schedules",
		Long: `Stay in the foreground, running every enabled source and pruning old
events on the cron schedules from the config file. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := schedule.New(a.cfg.Location())
			runJob := func(ctx context.Context) error {
				res, err := a.runPipeline(ctx, nil)
				if err != nil {
					return err
				}
				if a.cfg.Announce.Enabled {
					a.announce(ctx, res, false, cmd.OutOrStdout())
				}
				if len(res.Errors) > 0 {
					return fmt.Errorf("%d sources failed", len(res.Errors))
				}
				return nil
			}
			pruneJob := func(ctx context.Context) error {
				_, err := a.orch.Prune(ctx)
				return err
			}
			if err := s.Add("run", a.cfg.Schedule.Run, runJob); err != nil {
				return err
			}
			if err := s.Add("prune", a.cfg.Schedule.Prune, pruneJob); err != nil {
				return err
			}

			next := s.Next(time.Now())
			logger.Info("Scheduler started", logger.Fields{
				"run":   next["run"].Format(time.RFC3339),
				"prune": next["prune"].Format(time.RFC3339),
			})

			if runNow {
				if err := runJob(cmd.Context()); err != nil {
					logger.Error("Initial run failed", nil, err)
				}
			}
			return s.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "Run all sources once before waiting for the schedule")
	return cmd
}
