package sitemap

import (
	"fmt"
	"sort"
	"strings"
)

// Source is one crawlable site section: a set of sitemap indices plus the
// path patterns its documents are expected to live under.
type Source struct {
	Name            string
	Category        string
	SitemapURLs     []string
	IncludePatterns []string
}

// Category-tiered registry for tokyocheapo.com, highest-value first.
var defaultSources = []Source{
	{
		Name:     "Tokyo Cheapo",
		Category: "attractions",
		SitemapURLs: []string{
			"https://tokyocheapo.com/place-sitemap1.xml",
			"https://tokyocheapo.com/place-sitemap2.xml",
			"https://tokyocheapo.com/place-sitemap3.xml",
		},
		IncludePatterns: []string{"/place/"},
	},
	{
		Name:     "Tokyo Cheapo",
		Category: "restaurants",
		SitemapURLs: []string{
			"https://tokyocheapo.com/restaurant-sitemap1.xml",
			"https://tokyocheapo.com/restaurant-sitemap2.xml",
		},
		IncludePatterns: []string{"/restaurant/"},
	},
	{
		Name:     "Tokyo Cheapo",
		Category: "hotels",
		SitemapURLs: []string{
			"https://tokyocheapo.com/accommodation-sitemap.xml",
		},
		IncludePatterns: []string{"/accommodation/"},
	},
	{
		Name:     "Tokyo Cheapo",
		Category: "events",
		SitemapURLs: []string{
			"https://tokyocheapo.com/event-sitemap1.xml",
			"https://tokyocheapo.com/event-sitemap2.xml",
		},
		IncludePatterns: []string{"/event/"},
	},
}

// SourcesForTarget resolves a --target value to its registry entries.
// "all" selects every category.
func SourcesForTarget(target string) ([]Source, error) {
	normalized := strings.ToLower(strings.TrimSpace(target))
	if normalized == "" || normalized == "all" {
		sources := make([]Source, len(defaultSources))
		copy(sources, defaultSources)
		return sources, nil
	}

	var matched []Source
	for _, source := range defaultSources {
		if source.Category == normalized {
			matched = append(matched, source)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("unknown target %q (known: %s)", target, strings.Join(KnownTargets(), ", "))
	}
	return matched, nil
}

// KnownTargets lists valid --target values in registry order.
func KnownTargets() []string {
	seen := make(map[string]struct{}, len(defaultSources))
	targets := make([]string, 0, len(defaultSources)+1)
	for _, source := range defaultSources {
		if _, ok := seen[source.Category]; ok {
			continue
		}
		seen[source.Category] = struct{}{}
		targets = append(targets, source.Category)
	}
	sort.Strings(targets)
	return append(targets, "all")
}
