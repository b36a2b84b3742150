package filter

import (
	"testing"
	"time"

	"github.com/abelbrown/sentix/internal/model"
)

func TestByAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	items := []model.RawItem{
		{ID: "1", Title: "Recent", PublishedAt: now.Add(-1 * time.Hour)},
		{ID: "2", Title: "Old", PublishedAt: now.Add(-72 * time.Hour)},
		{ID: "3", Title: "Undated"},
	}

	result := ByAge(items, 48*time.Hour, now)

	if len(result) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result))
	}
	if result[0].ID != "1" || result[1].ID != "3" {
		t.Errorf("expected items 1 and 3 in order, got %+v", result)
	}

	if got := ByAge(items, 0, now); len(got) != 3 {
		t.Errorf("expected no cutoff for zero maxAge, got %d items", len(got))
	}
}

func TestByAgeEmpty(t *testing.T) {
	result := ByAge(nil, 24*time.Hour, time.Now())
	if result == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(result) != 0 {
		t.Errorf("expected 0 items, got %d", len(result))
	}
}

func TestDedup(t *testing.T) {
	items := []model.RawItem{
		{ID: "1", Title: "SEC approves ETF", Source: "CoinDesk", Link: "https://a/1"},
		{ID: "2", Title: "BREAKING: SEC approves ETF", Source: "CoinDesk", Link: "https://a/2"},
		{ID: "3", Title: "SEC approves ETF", Source: "Decrypt", Link: "https://b/1"},
		{ID: "4", Title: "Different headline", Source: "Decrypt", Link: "https://a/1"},
		{ID: "5", Title: "", Source: "Decrypt"},
		{ID: "6", Title: "", Source: "Decrypt"},
	}

	result := Dedup(items)

	ids := make([]string, len(result))
	for i, item := range result {
		ids[i] = item.ID
	}
	want := []string{"1", "3", "5", "6"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Hello World  ", "hello world"},
		{"Breaking: Big News", "big news"},
		{"JUST IN: Bitcoin tops 100k", "bitcoin tops 100k"},
		{"Update: Breaking: twice", "breaking: twice"},
	}
	for _, tc := range tests {
		if got := normalizeTitle(tc.input); got != tc.expected {
			t.Errorf("normalizeTitle(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
