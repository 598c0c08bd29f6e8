package extract

import (
	"sort"

	"github.com/coherentcalendar/coherent-events/internal/scraper"
)

// Preset is a built-in description of a known venue's listing page.
type Preset struct {
	URL        string
	RenderMode scraper.RenderMode
	Extractor  Structural
}

var presets = map[string]Preset{
	"trident": {
		URL:        "https://tridentcafe.com/events/",
		RenderMode: scraper.RenderFallback,
		Extractor: Structural{
			Selectors: Selectors{
				Container:   "article.eventlist-event",
				Title:       "h1.eventlist-title",
				Date:        "time.event-date",
				Description: "div.eventlist-description",
				Link:        "a.eventlist-title-link",
			},
			Location:        "Trident Café, Boulder",
			BaseURL:         "https://tridentcafe.com",
			SourceID:        IDLastSegment,
			DefaultSourceID: "events",
		},
	},
	"dairy": {
		URL:        "https://thedairy.org/events/",
		RenderMode: scraper.RenderAlways,
		Extractor: Structural{
			Selectors: Selectors{
				Container:   "div.eventCard",
				Title:       "h2.event-title",
				Date:        "span.event-date",
				Time:        "span.event-time",
				Description: "div.event-description",
				Link:        "a.event-link",
			},
			Location:  "Dairy Arts Center, 2590 Walnut Street, Boulder, CO 80302",
			MultiDate: true,
			SourceID:  IDDated,
		},
	},
	"eventbrite": {
		URL:        "https://www.eventbrite.com/d/co--boulder/all-events/",
		RenderMode: scraper.RenderFallback,
		Extractor: Structural{
			Selectors: Selectors{
				Container: "div.eds-event-card-content",
				Title:     "div.eds-event-card__formatted-name--is-clamped",
				Date:      "div.eds-event-card-content__sub-title",
				Location:  `div[data-subcategory="location"]`,
			},
			Location:         "Boulder, CO",
			LinkFromAncestor: true,
			RequireLink:      true,
			MultiDate:        true,
			SourceID:         IDLastSegment,
		},
	},
}

// LookupPreset returns the named preset with its extractor bound to source.
func LookupPreset(name, source string) (Preset, bool) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, false
	}
	if source == "" {
		source = name
	}
	p.Extractor.Source = source
	return p, true
}

// PresetNames lists the built-in presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
