package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/coherentcalendar/coherent-events/internal/config"
	"github.com/coherentcalendar/coherent-events/internal/extract"
	"github.com/coherentcalendar/coherent-events/internal/interpret"
	"github.com/coherentcalendar/coherent-events/internal/logger"
	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

// ErrNoInterpreter is returned for an ai source when no interpretation
// service is configured.
var ErrNoInterpreter = errors.New("no interpretation service configured")

// BuildSources turns the enabled configured sources into runnable ones.
// interp may be nil when no interpretation service is configured. A source
// that cannot be built is logged and returned with Err set, so a run
// reports it as that source's failure and the others still run.
func BuildSources(cfg *config.Config, interp interpret.Interpreter) []Source {
	var out []Source
	for _, sc := range cfg.Sources {
		if !sc.IsEnabled() {
			continue
		}
		src, err := BuildSource(cfg, sc, interp)
		if err != nil {
			logger.Warn("Source misconfigured", logger.Fields{
				"source": sc.Name,
				"error":  err.Error(),
			})
			src = Source{Name: sc.Name, URL: sc.URL, Err: err}
		}
		out = append(out, src)
	}
	return out
}

// BuildSource turns one configured source into a runnable one, whether or
// not it is enabled.
func BuildSource(cfg *config.Config, sc config.SourceConfig, interp interpret.Interpreter) (Source, error) {
	src := Source{Name: sc.Name, URL: sc.URL}

	if sc.Render != "" {
		mode, err := scraper.ParseRenderMode(sc.Render)
		if err != nil {
			return Source{}, err
		}
		src.Render = mode
	}

	switch sc.Kind {
	case config.KindStructural:
		x, mode, url, err := structural(sc)
		if err != nil {
			return Source{}, err
		}
		src.Extractor = x
		if src.URL == "" {
			src.URL = url
		}
		if src.Render == "" {
			src.Render = mode
		}

	case config.KindHeuristic:
		src.Extractor = extract.NewHeuristic(sc.Name)

	case config.KindAI:
		if interp == nil {
			return Source{}, ErrNoInterpreter
		}
		src.Extractor = interpret.NewExtractor(sc.Name, interp, cfg.Interpreter.MaxInputChars)

	case config.KindICS:
		src.Extractor = extract.NewICS(sc.Name, sc.Location, cfg.Location())
		if src.Render == "" {
			// Feeds are never scripted pages.
			src.Render = scraper.RenderNever
		}

	default:
		return Source{}, fmt.Errorf("unknown kind %q", sc.Kind)
	}

	if src.URL == "" {
		return Source{}, errors.New("url is required")
	}
	if src.Render == "" {
		src.Render = scraper.RenderFallback
	}
	return src, nil
}

func structural(sc config.SourceConfig) (*extract.Structural, scraper.RenderMode, string, error) {
	if sc.Preset != "" {
		p, ok := extract.LookupPreset(sc.Preset, sc.Name)
		if !ok {
			return nil, "", "", fmt.Errorf("unknown preset %q", sc.Preset)
		}
		x := p.Extractor
		if sc.Location != "" {
			x.Location = sc.Location
		}
		if sc.Selectors != nil {
			x.Selectors = *sc.Selectors
		}
		if sc.MultiDate != nil {
			x.MultiDate = *sc.MultiDate
		}
		return &x, p.RenderMode, p.URL, x.Validate()
	}

	if sc.Selectors == nil {
		return nil, "", "", errors.New("structural source needs a preset or selectors")
	}
	x := &extract.Structural{
		Source:    sc.Name,
		Selectors: *sc.Selectors,
		Location:  sc.Location,
		BaseURL:   sc.BaseURL,
		SourceID:  extract.SourceIDRule(sc.SourceID),
		MultiDate: sc.MultiDate != nil && *sc.MultiDate,
	}
	return x, "", "", x.Validate()
}

// Select returns the sources named in names, in the given order. An empty
// names list selects everything.
func Select(sources []Source, names []string) ([]Source, error) {
	if len(names) == 0 {
		return sources, nil
	}
	byName := make(map[string]Source, len(sources))
	for _, s := range sources {
		byName[s.Name] = s
	}

	var out []Source
	var unknown []string
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, s)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown sources: %v", unknown)
	}
	return out, nil
}
