// Package model defines the records that flow through one synthesis cycle:
// raw news items in, verified events and generation drafts out.
package model

import "time"

// RawItem is a single news snippet as delivered by an ingestion source.
// Immutable once ingested into a cycle.
type RawItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Text        string    `json:"text,omitempty"`
	Source      string    `json:"source"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// Key returns the item's identity: ID, falling back to Link.
func (r RawItem) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Link
}

// AnonymizedItem is a RawItem with the source stripped. It exists only for
// the duration of one event resolution call and is never persisted.
type AnonymizedItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Text      string    `json:"text,omitempty"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
}

// Anonymize drops the source so clustering cannot be biased by outlet.
func Anonymize(r RawItem) AnonymizedItem {
	return AnonymizedItem{
		ID:        r.Key(),
		Title:     r.Title,
		Summary:   r.Summary,
		Text:      r.Text,
		Link:      r.Link,
		Published: r.PublishedAt,
	}
}

// DistinctSources returns the distinct non-empty sources across items in
// first-seen order.
func DistinctSources(items []RawItem) []string {
	seen := make(map[string]bool, len(items))
	var sources []string
	for _, item := range items {
		if item.Source == "" || seen[item.Source] {
			continue
		}
		seen[item.Source] = true
		sources = append(sources, item.Source)
	}
	return sources
}
