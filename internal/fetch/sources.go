package fetch

import "github.com/abelbrown/sentix/internal/config"

// SourcesFromConfig converts configured feeds into fetch sources, skipping
// entries without a URL.
func SourcesFromConfig(feeds []config.FeedConfig) []Source {
	sources := make([]Source, 0, len(feeds))
	for _, f := range feeds {
		if f.URL == "" {
			continue
		}
		name := f.Name
		if name == "" {
			name = f.URL
		}
		sources = append(sources, Source{Name: name, URL: f.URL, Limit: f.Limit})
	}
	return sources
}

// DefaultSources returns the built-in crypto news feeds.
func DefaultSources() []Source {
	return SourcesFromConfig(config.DefaultFeeds())
}
