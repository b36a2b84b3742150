// Package fetch retrieves news items from RSS and Atom feeds and converts
// them to model.RawItem for a synthesis cycle.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/abelbrown/sentix/internal/model"
)

// DefaultLimit is the number of items taken from each feed.
const DefaultLimit = 5

// summaryMaxRunes caps summaries built from full content.
const summaryMaxRunes = 500

// Source represents a feed source configuration.
type Source struct {
	Name  string // Outlet name; becomes RawItem.Source
	URL   string // Feed URL
	Limit int    // Items taken per fetch, newest first as the feed orders them
}

// Fetcher retrieves items from feed sources.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a Fetcher with the given HTTP client timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: "Sentix/1.0 (+https://github.com/abelbrown/sentix)",
	}
}

// Fetch retrieves up to src.Limit items from a source.
// Does NOT store items - caller decides what to do with them.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]model.RawItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parser := gofeed.NewParser()
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	limit := src.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	items := make([]model.RawItem, 0, min(limit, len(feed.Items)))
	for _, feedItem := range feed.Items {
		if len(items) == limit {
			break
		}
		if strings.TrimSpace(feedItem.Title) == "" {
			continue
		}
		items = append(items, convertFeedItem(feedItem, src))
	}

	return items, nil
}

// convertFeedItem converts a gofeed.Item to a model.RawItem.
// Undated items keep a zero PublishedAt so the time window does not
// exclude them.
func convertFeedItem(feedItem *gofeed.Item, src Source) model.RawItem {
	var published time.Time
	if feedItem.PublishedParsed != nil {
		published = feedItem.PublishedParsed.UTC()
	} else if feedItem.UpdatedParsed != nil {
		published = feedItem.UpdatedParsed.UTC()
	}

	// Prefer Description, fallback to content
	summary := cleanText(feedItem.Description)
	if summary == "" && feedItem.Content != "" {
		summary = truncate(cleanText(feedItem.Content), summaryMaxRunes)
	}

	return model.RawItem{
		ID:          generateID(feedItem),
		Title:       strings.TrimSpace(html.UnescapeString(feedItem.Title)),
		Summary:     summary,
		Text:        cleanText(feedItem.Content),
		Source:      src.Name,
		Link:        strings.TrimSpace(feedItem.Link),
		PublishedAt: published,
	}
}

// generateID creates a deterministic ID for a feed item.
// The link is the identity when present, so the same article keeps its
// id across cycles and the processed ledger can skip it.
func generateID(feedItem *gofeed.Item) string {
	if link := strings.TrimSpace(feedItem.Link); link != "" {
		return link
	}
	if feedItem.GUID != "" {
		return feedItem.GUID
	}

	// Last resort: hash title + published time
	key := feedItem.Title
	if feedItem.PublishedParsed != nil {
		key += feedItem.PublishedParsed.String()
	}
	return hashString(key)
}

// hashString creates a short hash of a string for use as an ID.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8]) // 16 character hex string
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanText strips HTML tags, unescapes entities and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
// Uses rune-aware slicing to avoid breaking UTF-8 characters.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
