// Package filter provides pure filter functions for raw items.
// All functions are simple: []RawItem in, []RawItem out. No side effects.
package filter

import (
	"strings"
	"time"

	"github.com/abelbrown/sentix/internal/model"
)

// commonPrefixes are prefixes commonly used in news titles that should be
// ignored when comparing titles for deduplication.
var commonPrefixes = []string{
	"breaking:",
	"update:",
	"updated:",
	"exclusive:",
	"just in:",
	"developing:",
	"watch:",
	"live:",
	"opinion:",
	"analysis:",
}

// ByAge removes items published before now-maxAge. Undated items are kept.
// A non-positive maxAge keeps everything.
func ByAge(items []model.RawItem, maxAge time.Duration, now time.Time) []model.RawItem {
	if len(items) == 0 {
		return []model.RawItem{}
	}

	cutoff := now.Add(-maxAge)
	result := make([]model.RawItem, 0, len(items))

	for _, item := range items {
		if maxAge <= 0 || item.PublishedAt.IsZero() || item.PublishedAt.After(cutoff) {
			result = append(result, item)
		}
	}

	return result
}

// normalizeTitle normalizes a title for comparison by lowercasing and
// removing common news prefixes.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(strings.TrimSpace(title))

	for _, prefix := range commonPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
			break // Only remove one prefix
		}
	}

	return normalized
}

// Dedup removes reposts: items with a link already seen, and items whose
// normalized title repeats within the same source. First occurrence wins.
// Equal titles from different sources are kept because they corroborate
// each other.
func Dedup(items []model.RawItem) []model.RawItem {
	if len(items) == 0 {
		return []model.RawItem{}
	}

	seenLinks := make(map[string]bool)
	seenTitles := make(map[string]bool) // source + "\x00" + title
	result := make([]model.RawItem, 0, len(items))

	for _, item := range items {
		if item.Link != "" && seenLinks[item.Link] {
			continue
		}

		titleKey := ""
		if t := normalizeTitle(item.Title); t != "" {
			titleKey = item.Source + "\x00" + t
			if seenTitles[titleKey] {
				continue
			}
		}

		if item.Link != "" {
			seenLinks[item.Link] = true
		}
		if titleKey != "" {
			seenTitles[titleKey] = true
		}

		result = append(result, item)
	}

	return result
}
