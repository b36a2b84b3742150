package facts

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/model"
)

type fakeInvoker struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, call brain.Call) (string, error) {
	f.prompts = append(f.prompts, call.Prompt)
	return f.response, f.err
}

func etfInput() Input {
	return Input{
		EventID: "A",
		Title:   "SEC approves ETF",
		Articles: []model.RawItem{
			{ID: "1", Source: "CoinDesk", Title: "SEC approves ETF", Summary: strings.Repeat("x", 300)},
			{ID: "2", Source: "Decrypt", Title: "ETF approved"},
			{ID: "3", Source: "TheBlock", Title: "Approval day"},
		},
	}
}

func hackInput() Input {
	return Input{
		EventID:  "B",
		Title:    "Exchange hacked",
		Articles: []model.RawItem{{ID: "4", Source: "CoinTelegraph", Title: "Hack"}},
	}
}

const batchResponse = `{
  "A": {"facts": [
      {"fact": "SEC approved the ETF", "sources": ["coindesk", "Decrypt"]},
      {"fact": "Trading starts Friday", "sources": ["TheBlock"]}
    ], "confidence": 0.9},
  "B": {"facts": [{"fact": "Exchange lost funds", "sources": ["CoinTelegraph"]}], "confidence": 1.0}
}`

func TestExtractBatchSanitizesAndScores(t *testing.T) {
	v := NewValidator(&fakeInvoker{response: batchResponse}, 0)
	got, err := v.ExtractBatch(context.Background(), []Input{etfInput(), hackInput()})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}

	a := got["A"]
	if len(a.Facts) != 2 {
		t.Fatalf("Expected 2 facts for A, got %+v", a.Facts)
	}
	if !reflect.DeepEqual(a.Facts[0].Sources, []string{"CoinDesk", "Decrypt"}) {
		t.Errorf("Expected canonical sources, got %v", a.Facts[0].Sources)
	}
	// best fact has 2 of 3 sources
	if want := 2.0 / 3.0; a.Confidence != want {
		t.Errorf("confidence=%v, want %v", a.Confidence, want)
	}
	if b := got["B"]; b.Confidence != 1 || len(b.Facts) != 1 {
		t.Errorf("B = %+v, want one fact at confidence 1", b)
	}
}

func TestExtractMatchesBatch(t *testing.T) {
	inv := &fakeInvoker{response: batchResponse}
	v := NewValidator(inv, 0)

	batch, err := v.ExtractBatch(context.Background(), []Input{etfInput(), hackInput()})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	single := v.Extract(context.Background(), etfInput())

	if !reflect.DeepEqual(batch["A"], single) {
		t.Errorf("batched %+v != single %+v", batch["A"], single)
	}
}

func TestMissingKeyIsEmpty(t *testing.T) {
	v := NewValidator(&fakeInvoker{response: `{"A": {"facts": [], "confidence": 0.2}}`}, 0)
	got, err := v.ExtractBatch(context.Background(), []Input{etfInput(), hackInput()})
	if err != nil {
		t.Fatalf("ExtractBatch: %v", err)
	}
	b, ok := got["B"]
	if !ok {
		t.Fatal("Expected entry for B")
	}
	if b.Facts == nil || len(b.Facts) != 0 || b.Confidence != 0 {
		t.Errorf("Expected {[], 0}, got %+v", b)
	}
	if got["A"].Confidence != 0 {
		t.Errorf("A has no facts, expected confidence 0, got %v", got["A"].Confidence)
	}
}

func TestMalformedResponseIsEmptyForAll(t *testing.T) {
	for _, resp := range []string{"nope", "[]", `{"A": "garbage"}`} {
		v := NewValidator(&fakeInvoker{response: resp}, 0)
		got, err := v.ExtractBatch(context.Background(), []Input{etfInput()})
		if err != nil {
			t.Fatalf("%q: unexpected error %v", resp, err)
		}
		if r := got["A"]; len(r.Facts) != 0 || r.Confidence != 0 {
			t.Errorf("%q: expected empty result, got %+v", resp, r)
		}
	}
}

func TestInvokeErrorReturned(t *testing.T) {
	v := NewValidator(&fakeInvoker{err: brain.ErrUnavailable}, 0)
	if _, err := v.ExtractBatch(context.Background(), []Input{etfInput()}); !errors.Is(err, brain.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
	if r := v.Extract(context.Background(), etfInput()); len(r.Facts) != 0 || r.Confidence != 0 {
		t.Errorf("Extract should degrade to empty, got %+v", r)
	}
}

func TestUnknownSourcesAreDropped(t *testing.T) {
	resp := `{"A": {"facts": [
		{"fact": "Made up", "sources": ["Bloomberg"]},
		{"fact": "  ", "sources": ["CoinDesk"]},
		{"fact": "Real", "sources": "CoinDesk"}
	]}}`
	v := NewValidator(&fakeInvoker{response: resp}, 0)
	got := v.Extract(context.Background(), etfInput())
	if len(got.Facts) != 1 || got.Facts[0].Statement != "Real" {
		t.Fatalf("Expected only the attributable fact, got %+v", got.Facts)
	}
	if want := 1.0 / 3.0; got.Confidence != want {
		t.Errorf("confidence=%v, want %v", got.Confidence, want)
	}
}

func TestDuplicateStatementsMerge(t *testing.T) {
	resp := `{"A": {"facts": [
		{"fact": "SEC approved", "sources": ["CoinDesk"]},
		{"fact": "SEC approved", "sources": ["TheBlock", "Decrypt"]}
	]}}`
	got := NewValidator(&fakeInvoker{response: resp}, 0).Extract(context.Background(), etfInput())
	if len(got.Facts) != 1 || len(got.Facts[0].Sources) != 3 {
		t.Fatalf("Expected one merged fact with 3 sources, got %+v", got.Facts)
	}
	if got.Confidence != 1 {
		t.Errorf("confidence=%v, want 1", got.Confidence)
	}
}

func TestPayloadIsMinimized(t *testing.T) {
	inv := &fakeInvoker{response: "{}"}
	NewValidator(inv, 0).Extract(context.Background(), etfInput())

	prompt := inv.prompts[0]
	start := strings.Index(prompt, "[")
	end := strings.LastIndex(prompt, "]\n\nReturn")
	if start < 0 || end < 0 {
		t.Fatalf("payload not found in prompt")
	}
	var payload []map[string]any
	if err := json.Unmarshal([]byte(prompt[start:end+1]), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	arts := payload[0]["articles"].([]any)
	first := arts[0].(map[string]any)
	if len([]rune(first["d"].(string))) != DefaultSummaryLimit {
		t.Errorf("summary not truncated to %d runes", DefaultSummaryLimit)
	}
	if first["s"] != "CoinDesk" || payload[0]["id"] != "A" {
		t.Errorf("unexpected payload %v", payload[0])
	}
	for k := range first {
		if k != "s" && k != "t" && k != "d" {
			t.Errorf("unexpected field %q in article payload", k)
		}
	}
}

func TestConfidenceBounds(t *testing.T) {
	tests := []struct {
		name  string
		facts []model.ValidatedFact
		total int
		want  float64
	}{
		{"no sources", nil, 0, 0},
		{"no facts", nil, 3, 0},
		{"single source event", []model.ValidatedFact{model.NewValidatedFact("f", []string{"A"})}, 1, 1},
		{"k of m", []model.ValidatedFact{model.NewValidatedFact("f", []string{"A", "B"})}, 4, 0.5},
		{"over count clamps", []model.ValidatedFact{model.NewValidatedFact("f", []string{"A", "B", "C"})}, 2, 1},
	}
	for _, tt := range tests {
		if got := Confidence(tt.facts, tt.total); got != tt.want {
			t.Errorf("%s: Confidence=%v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEmptyBatchSkipsBackend(t *testing.T) {
	inv := &fakeInvoker{}
	got, err := NewValidator(inv, 0).ExtractBatch(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("Expected empty map, got %v %v", got, err)
	}
	if len(inv.prompts) != 0 {
		t.Error("empty batch must not call the backend")
	}
}
