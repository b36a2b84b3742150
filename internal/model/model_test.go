package model

import (
	"encoding/json"
	"testing"
)

func TestRawItemKeyFallsBackToLink(t *testing.T) {
	withID := RawItem{ID: "a1", Link: "https://x/1"}
	if withID.Key() != "a1" {
		t.Errorf("Expected a1, got %s", withID.Key())
	}
	noID := RawItem{Link: "https://x/2"}
	if noID.Key() != "https://x/2" {
		t.Errorf("Expected link fallback, got %s", noID.Key())
	}
}

func TestAnonymizeDropsSource(t *testing.T) {
	item := RawItem{Title: "ETF approved", Source: "CoinDesk", Link: "l1"}
	anon := Anonymize(item)
	if anon.ID != "l1" {
		t.Errorf("Expected id from link, got %q", anon.ID)
	}
	data, err := json.Marshal(anon)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["source"]; ok {
		t.Error("anonymized item must not carry a source field")
	}
}

func TestNewVerifiedEventCountsDistinctSources(t *testing.T) {
	items := []RawItem{
		{ID: "1", Source: "CoinDesk"},
		{ID: "2", Source: "CoinDesk"},
		{ID: "3", Source: "Decrypt"},
	}
	ev := NewVerifiedEvent(CandidateEvent{EventID: "e1"}, items)
	if ev.SourceCount != 2 {
		t.Errorf("Expected 2 sources, got %d", ev.SourceCount)
	}
	if ev.SourceCount != len(ev.Sources) {
		t.Errorf("SourceCount %d != len(Sources) %d", ev.SourceCount, len(ev.Sources))
	}
	if ev.Sources[0] != "CoinDesk" || ev.Sources[1] != "Decrypt" {
		t.Errorf("Expected first-seen order, got %v", ev.Sources)
	}
}

func TestValidatedFactSet(t *testing.T) {
	f := NewValidatedFact("  SEC approves ETF ", []string{"B", "A", "B", " "})
	if f.Statement != "SEC approves ETF" {
		t.Errorf("Expected trimmed statement, got %q", f.Statement)
	}
	if len(f.Sources) != 2 || f.Sources[0] != "A" || f.Sources[1] != "B" {
		t.Errorf("Expected sorted set [A B], got %v", f.Sources)
	}
	if !f.Admissible() {
		t.Error("Expected fact to be admissible")
	}
	if NewValidatedFact("x", nil).Admissible() {
		t.Error("Fact without sources must not be admissible")
	}
}

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		input    string
		expected Sentiment
	}{
		{"BULLISH", Bullish},
		{"bearish", Bearish},
		{" Neutral ", Neutral},
		{"BULLISH/BEARISH", Neutral},
		{"", Neutral},
	}
	for _, tt := range tests {
		if got := ParseSentiment(tt.input); got != tt.expected {
			t.Errorf("ParseSentiment(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestClaimsAcceptsStringsAndObjects(t *testing.T) {
	var d GenerationDraft
	raw := `{"tweet":"t","hallucination_check":["a",{"claim":"b"},{"fact":"c"}]}`
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(d.ClaimedFacts) != 3 || d.ClaimedFacts[1] != "b" || d.ClaimedFacts[2] != "c" {
		t.Errorf("Expected [a b c], got %v", d.ClaimedFacts)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("Expected valid draft, got %v", err)
	}
	if (GenerationDraft{}).Validate() == nil {
		t.Error("Expected empty narrative to fail validation")
	}
}
