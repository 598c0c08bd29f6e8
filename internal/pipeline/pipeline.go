package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coherentcalendar/coherent-events/internal/event"
	"github.com/coherentcalendar/coherent-events/internal/extract"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/merge"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
	"github.com/coherentcalendar/coherent-events/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultRetentionDays is how long past events are kept by Prune.
const DefaultRetentionDays = 30

// ErrStoreUnavailable aborts a run when the store stops answering.
var ErrStoreUnavailable = errors.New("event store unavailable")

// Fetcher retrieves source pages. *scraper.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, mode scraper.RenderMode) (*scraper.Document, error)
}

// Source is one configured origin of events.
type Source struct {
	Name      string
	URL       string
	Render    scraper.RenderMode
	Extractor extract.Extractor
	// Err is set when the configured source could not be built. Running it
	// records Err as the source's error without fetching.
	Err error
}

// SourceResult summarizes one source's part of a run.
type SourceResult struct {
	Name       string `json:"name"`
	Candidates int    `json:"candidates"`
	Dropped    int    `json:"dropped"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Unchanged  int    `json:"unchanged"`
	NeedReview int    `json:"needs_review"`
	Rendered   bool   `json:"rendered"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	// New holds the events this source inserted.
	New []event.StoredEvent `json:"-"`
}

// Stored is the number of events merged into the store.
func (r *SourceResult) Stored() int {
	return r.Inserted + r.Updated + r.Unchanged
}

// Result is the outcome of a run. Errors maps source name to message for
// every source that failed.
type Result struct {
	EventCount int               `json:"event_count"`
	Inserted   int               `json:"inserted"`
	Updated    int               `json:"updated"`
	Unchanged  int               `json:"unchanged"`
	Dropped    int               `json:"dropped"`
	Errors     map[string]string `json:"errors"`
	Sources    []SourceResult    `json:"sources"`
}

// NewEvents returns every event inserted during the run, in source order.
func (r *Result) NewEvents() []event.StoredEvent {
	var out []event.StoredEvent
	for _, s := range r.Sources {
		out = append(out, s.New...)
	}
	return out
}

// Options tunes an Orchestrator.
type Options struct {
	// Concurrency is the number of sources processed at once. Zero means 1.
	Concurrency   int
	RetentionDays int
	Now           func() time.Time
}

// Orchestrator drives sources through fetch, extract, normalize and merge.
type Orchestrator struct {
	fetcher       Fetcher
	normalizer    *event.Normalizer
	merger        *merge.Merger
	store         *storage.Store
	concurrency   int
	retentionDays int
	now           func() time.Time
}

// New creates an Orchestrator writing to store.
func New(fetcher Fetcher, normalizer *event.Normalizer, store *storage.Store, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if normalizer == nil {
		normalizer = event.NewNormalizer(event.DefaultConfidenceThreshold)
	}
	return &Orchestrator{
		fetcher:       fetcher,
		normalizer:    normalizer,
		merger:        merge.New(store),
		store:         store,
		concurrency:   opts.Concurrency,
		retentionDays: opts.RetentionDays,
		now:           opts.Now,
	}
}

// Run processes every source and aggregates the results. The returned error
// is non-nil only when the run was aborted; per-source failures are in
// Result.Errors. An aborted run still returns the partial result.
func (o *Orchestrator) Run(ctx context.Context, sources []Source) (*Result, error) {
	start := time.Now()
	results := make([]SourceResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, src := range sources {
		g.Go(func() error {
			results[i] = o.runSource(gctx, src)
			if results[i].Error == "" || gctx.Err() != nil {
				return nil
			}
			// A failing source is normal; a dead store is not.
			if err := o.store.Ping(gctx); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	res := &Result{Errors: make(map[string]string), Sources: results}
	for i := range results {
		r := &results[i]
		res.Inserted += r.Inserted
		res.Updated += r.Updated
		res.Unchanged += r.Unchanged
		res.Dropped += r.Dropped
		res.EventCount += r.Stored()
		if r.Error != "" {
			res.Errors[r.Name] = r.Error
		}
	}

	logger.AddCounter("pipeline.source_errors", int64(len(res.Errors)))
	logger.SetGauge("pipeline.sources", float64(len(sources)))
	logger.SetGauge("pipeline.last_event_count", float64(res.EventCount))
	logger.RecordTiming("pipeline.run", time.Since(start))

	if runErr != nil {
		logger.Error("Pipeline run aborted", logger.Fields{
			"sources":     len(sources),
			"event_count": res.EventCount,
		}, runErr)
		return res, runErr
	}

	logger.Info("Pipeline run finished", logger.Fields{
		"sources":     len(sources),
		"event_count": res.EventCount,
		"inserted":    res.Inserted,
		"updated":     res.Updated,
		"dropped":     res.Dropped,
		"errors":      len(res.Errors),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return res, nil
}

func (o *Orchestrator) runSource(ctx context.Context, src Source) SourceResult {
	start := time.Now()
	res := SourceResult{Name: src.Name}
	defer func() {
		elapsed := time.Since(start)
		res.DurationMS = elapsed.Milliseconds()
		logger.RecordTiming("source."+src.Name, elapsed)
	}()

	events, batch, err := o.Collect(ctx, src)
	res.Candidates = batch.Candidates
	res.Dropped = batch.Dropped
	res.Rendered = batch.Rendered
	if err != nil {
		res.Error = err.Error()
		logger.Error("Source failed", logger.Fields{"source": src.Name, "url": src.URL}, err)
		return res
	}

	for _, ev := range events {
		out, err := o.merger.Merge(ctx, ev)
		if err != nil {
			res.Error = err.Error()
			logger.Error("Storing events failed", logger.Fields{"source": src.Name}, err)
			break
		}
		switch out.Action {
		case merge.Inserted:
			res.Inserted++
			res.New = append(res.New, event.StoredEvent{ID: out.ID, NormalizedEvent: *ev})
		case merge.Updated:
			res.Updated++
		case merge.Unchanged:
			res.Unchanged++
		}
		if ev.NeedsReview {
			res.NeedReview++
		}
	}

	logger.AddCounter("pipeline.inserted", int64(res.Inserted))
	logger.AddCounter("pipeline.updated", int64(res.Updated))

	if res.Error == "" {
		logger.Info("Source finished", logger.Fields{
			"source":     src.Name,
			"candidates": res.Candidates,
			"dropped":    res.Dropped,
			"inserted":   res.Inserted,
			"updated":    res.Updated,
			"unchanged":  res.Unchanged,
		})
	}
	return res
}

// Batch counts what Collect saw.
type Batch struct {
	Candidates int
	Dropped    int
	Rendered   bool
}

// Collect fetches, extracts and normalizes one source without touching the
// store. Candidates without a usable date are dropped and logged.
func (o *Orchestrator) Collect(ctx context.Context, src Source) ([]*event.NormalizedEvent, Batch, error) {
	var batch Batch
	if src.Err != nil {
		return nil, batch, fmt.Errorf("source %s misconfigured: %w", src.Name, src.Err)
	}
	if src.Extractor == nil {
		return nil, batch, fmt.Errorf("source %s has no extractor", src.Name)
	}

	doc, err := o.fetcher.Fetch(ctx, src.URL, src.Render)
	if err != nil {
		return nil, batch, err
	}
	batch.Rendered = doc.Rendered

	candidates, err := src.Extractor.Extract(ctx, doc)
	if err != nil {
		return nil, batch, fmt.Errorf("extracting %s: %w", src.Name, err)
	}
	batch.Candidates = len(candidates)
	logger.AddCounter("pipeline.candidates", int64(len(candidates)))

	events, dropped := o.normalizer.NormalizeAll(candidates)
	batch.Dropped = len(dropped)
	for i, reason := range dropped {
		logger.Warn("Dropping candidate", logger.Fields{
			"source": src.Name,
			"title":  candidates[i].Title,
			"reason": reason.Error(),
		})
	}
	logger.AddCounter("pipeline.dropped", int64(len(dropped)))

	return events, batch, nil
}

// Prune deletes events dated more than the retention window before today.
func (o *Orchestrator) Prune(ctx context.Context) (int64, error) {
	n, err := o.store.DeleteOlderThan(ctx, o.retentionDays, o.now())
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}
	logger.Info("Pruned old events", logger.Fields{
		"deleted":        n,
		"retention_days": o.retentionDays,
	})
	return n, nil
}
