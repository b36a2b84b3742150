package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/critic"
	"github.com/abelbrown/sentix/internal/model"
)

type fakeInvoker struct {
	responses []string
	err       error
	offline   bool
	prompts   []string
}

func (f *fakeInvoker) Available() bool { return !f.offline }

func (f *fakeInvoker) Invoke(ctx context.Context, call brain.Call) (string, error) {
	f.prompts = append(f.prompts, call.Prompt)
	if f.err != nil {
		return "", f.err
	}
	i := len(f.prompts) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func verifiedEvent() *model.VerifiedEvent {
	return &model.VerifiedEvent{
		EventID:     "sec-etf",
		Title:       "SEC approves spot ETH ETF",
		Sources:     []string{"CoinDesk", "Decrypt"},
		SourceCount: 2,
		Facts:       []model.ValidatedFact{model.NewValidatedFact("SEC approved the ETF", []string{"CoinDesk", "Decrypt"})},
		Confidence:  1,
		Items: []model.RawItem{
			{ID: "1", Title: "SEC approves $ETH ETF", Source: "CoinDesk"},
			{ID: "2", Title: "Ether ETF cleared", Source: "Decrypt"},
		},
	}
}

const goodDraft = `{"sentiment":"bullish","reasoning":"two sources","tweet":"SEC approves ETH ETF #Sentix","knowledge_base_entry":"ETF approved"}`

func TestAnalyzeWithCriticPass(t *testing.T) {
	inv := &fakeInvoker{responses: []string{"```json\n" + goodDraft + "\n```", "PASS"}}
	a := NewAnalyst(inv, critic.New(inv), "en")

	out := a.Analyze(context.Background(), verifiedEvent(), Context{Market: "2,000 BTC left Binance"})
	if out.FallbackReason != "" {
		t.Fatalf("unexpected fallback %q", out.FallbackReason)
	}
	if out.Draft.Sentiment != model.Bullish {
		t.Errorf("Expected normalized BULLISH, got %q", out.Draft.Sentiment)
	}
	if out.Rewritten {
		t.Error("approved draft must not be marked rewritten")
	}
	if len(inv.prompts) != 2 {
		t.Fatalf("Expected generation + critic calls, got %d", len(inv.prompts))
	}
	gen := inv.prompts[0]
	for _, want := range []string{"SEC approved the ETF", "Source count: 2", "CoinDesk, Decrypt", "Tickers: ETH", "2,000 BTC left Binance"} {
		if !strings.Contains(gen, want) {
			t.Errorf("generation prompt missing %q", want)
		}
	}

	var decoded model.GenerationDraft
	if err := json.Unmarshal([]byte(out.Text), &decoded); err != nil {
		t.Fatalf("Text not JSON: %v", err)
	}
	if decoded.KnowledgeBaseEntry != "ETF approved" {
		t.Errorf("knowledge entry lost: %+v", decoded)
	}
}

func TestAnalyzeCriticRewrite(t *testing.T) {
	inv := &fakeInvoker{responses: []string{goodDraft, "SEC approved a spot ETH ETF. #Sentix"}}
	out := NewAnalyst(inv, critic.New(inv), "en").Analyze(context.Background(), verifiedEvent(), Context{})

	if !out.Rewritten {
		t.Fatal("Expected rewritten draft")
	}
	if out.Draft.Narrative != "SEC approved a spot ETH ETF. #Sentix" {
		t.Errorf("narrative=%q", out.Draft.Narrative)
	}
	if !strings.Contains(out.Draft.Reasoning, critic.CorrectionNote) {
		t.Errorf("reasoning not annotated: %q", out.Draft.Reasoning)
	}
}

func TestAnalyzeFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		inv    *fakeInvoker
		ev     *model.VerifiedEvent
		reason string
	}{
		{"no event", &fakeInvoker{responses: []string{goodDraft}}, nil, ReasonNoVerifiedEvent},
		{"offline", &fakeInvoker{offline: true}, verifiedEvent(), ReasonNoBackend},
		{"backend error", &fakeInvoker{err: brain.ErrUnavailable}, verifiedEvent(), ReasonBackendUnavailable},
		{"malformed", &fakeInvoker{responses: []string{"I think it's bullish"}}, verifiedEvent(), ReasonMalformedDraft},
		{"empty tweet", &fakeInvoker{responses: []string{`{"sentiment":"BULLISH","tweet":""}`}}, verifiedEvent(), ReasonMalformedDraft},
	}
	for _, tt := range tests {
		out := NewAnalyst(tt.inv, nil, "en").Analyze(context.Background(), tt.ev, Context{})
		if out.FallbackReason != tt.reason {
			t.Errorf("%s: reason=%q, want %q", tt.name, out.FallbackReason, tt.reason)
		}
		if out.Draft.Sentiment != model.Neutral {
			t.Errorf("%s: fallback must be NEUTRAL, got %s", tt.name, out.Draft.Sentiment)
		}
		if out.Draft.Narrative != Localize("en").Fallback {
			t.Errorf("%s: unexpected fallback narrative %q", tt.name, out.Draft.Narrative)
		}
		if out.Text == "" {
			t.Errorf("%s: fallback must still produce text", tt.name)
		}
	}
}

func TestThaiFallback(t *testing.T) {
	out := NewAnalyst(&fakeInvoker{offline: true}, nil, "th").Analyze(context.Background(), verifiedEvent(), Context{})
	if !strings.Contains(out.Draft.Narrative, "สรุป") {
		t.Errorf("Expected Thai fallback, got %q", out.Draft.Narrative)
	}
}

func TestUnsupportedLanguageDefaultsToEnglish(t *testing.T) {
	a := NewAnalyst(&fakeInvoker{offline: true}, nil, "fr")
	if a.lang != "en" {
		t.Errorf("lang=%q, want en", a.lang)
	}
	if Localize("fr").Fallback != Localize("en").Fallback {
		t.Error("Localize should default to English")
	}
}
