package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/sentix/internal/config"
)

func serveRSS(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchConvertsItems(t *testing.T) {
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>SEC approves spot ETF</title>
      <link>https://example.com/etf</link>
      <description>&lt;p&gt;The SEC   approved &lt;b&gt;the&lt;/b&gt; ETF.&lt;/p&gt;</description>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Content only</title>
      <guid isPermaLink="false">guid-42</guid>
      <content:encoded><![CDATA[<div>Full <i>body</i> text</div>]]></content:encoded>
    </item>
  </channel>
</rss>`
	server := serveRSS(t, rss)

	f := NewFetcher(5 * time.Second)
	items, err := f.Fetch(context.Background(), Source{Name: "CoinDesk", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "https://example.com/etf" || first.Link != "https://example.com/etf" {
		t.Errorf("expected link identity, got id=%q link=%q", first.ID, first.Link)
	}
	if first.Source != "CoinDesk" {
		t.Errorf("expected source CoinDesk, got %q", first.Source)
	}
	if first.Summary != "The SEC approved the ETF." {
		t.Errorf("unexpected summary %q", first.Summary)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Errorf("published=%v, want %v", first.PublishedAt, want)
	}

	second := items[1]
	if second.ID != "guid-42" {
		t.Errorf("expected guid id, got %q", second.ID)
	}
	if second.Summary != "Full body text" {
		t.Errorf("expected summary from content, got %q", second.Summary)
	}
	if !second.PublishedAt.IsZero() {
		t.Errorf("expected zero time for undated item, got %v", second.PublishedAt)
	}
}

func TestFetchHonorsLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>`)
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, `<item><title>Item %d</title><link>https://example.com/%d</link></item>`, i, i)
	}
	sb.WriteString(`</channel></rss>`)
	server := serveRSS(t, sb.String())

	f := NewFetcher(5 * time.Second)

	items, err := f.Fetch(context.Background(), Source{Name: "T", URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != DefaultLimit {
		t.Errorf("expected %d items with default limit, got %d", DefaultLimit, len(items))
	}

	items, _ = f.Fetch(context.Background(), Source{Name: "T", URL: server.URL, Limit: 3})
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
	if items[0].Title != "Item 0" {
		t.Errorf("expected feed order preserved, got %q", items[0].Title)
	}
}

func TestFetchIDsAreDeterministic(t *testing.T) {
	rss := `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>
    <item><title>Untitled link</title><pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate></item>
  </channel></rss>`
	server := serveRSS(t, rss)

	f := NewFetcher(5 * time.Second)
	items1, _ := f.Fetch(context.Background(), Source{Name: "T", URL: server.URL})
	items2, _ := f.Fetch(context.Background(), Source{Name: "T", URL: server.URL})

	if len(items1) != 1 || len(items2) != 1 {
		t.Fatalf("expected one item per fetch, got %d and %d", len(items1), len(items2))
	}
	if items1[0].ID == "" || items1[0].ID != items2[0].ID {
		t.Errorf("IDs should be deterministic, got %q and %q", items1[0].ID, items2[0].ID)
	}
	if len(items1[0].ID) != 16 {
		t.Errorf("expected 16-char hash id, got %q", items1[0].ID)
	}
}

func TestFetchErrors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()
	invalid := serveRSS(t, "not valid xml")

	f := NewFetcher(5 * time.Second)
	tests := []struct {
		name string
		url  string
	}{
		{"404", notFound.URL},
		{"invalid xml", invalid.URL},
		{"unreachable", "http://localhost:99999/nonexistent"},
	}
	for _, tt := range tests {
		if _, err := f.Fetch(context.Background(), Source{Name: "X", URL: tt.url}); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(time.Second)
	if _, err := f.Fetch(ctx, Source{Name: "X", URL: "http://example.com"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSourcesFromConfig(t *testing.T) {
	sources := SourcesFromConfig([]config.FeedConfig{
		{Name: "A", URL: "https://a/rss", Limit: 2},
		{Name: "B"},
		{URL: "https://c/rss"},
	})
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Limit != 2 {
		t.Errorf("limit=%d, want 2", sources[0].Limit)
	}
	if sources[1].Name != "https://c/rss" {
		t.Errorf("expected URL as name, got %q", sources[1].Name)
	}
}

func TestDefaultSources(t *testing.T) {
	sources := DefaultSources()
	if len(sources) != 5 {
		t.Fatalf("expected 5 default sources, got %d", len(sources))
	}
	for _, src := range sources {
		if src.Name == "" || src.URL == "" {
			t.Errorf("incomplete source %+v", src)
		}
		if src.Limit != 5 {
			t.Errorf("source %s limit=%d, want 5", src.Name, src.Limit)
		}
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"plain", "plain"},
		{"<p>a</p>\n\n<p>b</p>", "a b"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
	}
	for _, tc := range tests {
		if got := cleanText(tc.input); got != tc.expected {
			t.Errorf("cleanText(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hi", 2, "hi"},
		{"hi", 1, "h"},
		{"", 5, ""},
		{"ราคาบิตคอยน์", 5, "รา..."},
	}

	for _, tc := range tests {
		result := truncate(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}
