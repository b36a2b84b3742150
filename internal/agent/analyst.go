// Package agent turns the top verified event into a publishable draft and
// always produces something usable, falling back to a neutral template.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/critic"
	"github.com/abelbrown/sentix/internal/decode"
	"github.com/abelbrown/sentix/internal/events"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
	"github.com/abelbrown/sentix/internal/otel"
)

// Machine-readable fallback reasons.
const (
	ReasonNoBackend          = "no_backend"
	ReasonBackendUnavailable = "backend_unavailable"
	ReasonMalformedDraft     = "malformed_draft"
	ReasonNoVerifiedEvent    = "no_verified_event"
)

// Invoker is the backend the analyst generates with.
type Invoker interface {
	Invoke(ctx context.Context, call brain.Call) (string, error)
	Available() bool
}

// Reviewer checks a draft against facts.
type Reviewer interface {
	Review(ctx context.Context, draftText, factsText string) critic.Verdict
}

// Context is the non-news input to generation.
type Context struct {
	Market  string // on-chain or market flow summary
	History string // related knowledge-base entries
}

// Outcome is the result of one generation. FallbackReason is empty when the
// draft came from the backend.
type Outcome struct {
	Draft          model.GenerationDraft
	Text           string
	FallbackReason string
	Rewritten      bool
}

// Analyst generates drafts for verified events.
type Analyst struct {
	inv      Invoker
	reviewer Reviewer
	lang     string
	events   *otel.Logger
}

// NewAnalyst creates an analyst. reviewer may be nil to skip critique.
func NewAnalyst(inv Invoker, reviewer Reviewer, lang string) *Analyst {
	if !Supported(lang) {
		logging.Warn("Language not supported, defaulting to en", "language", lang)
		lang = "en"
	}
	return &Analyst{inv: inv, reviewer: reviewer, lang: lang}
}

// SetEventLogger attaches the audit log.
func (a *Analyst) SetEventLogger(l *otel.Logger) {
	a.events = l
}

// Analyze generates, critiques and normalizes a draft for ev. It never
// fails: every problem yields the localized neutral fallback with a reason.
func (a *Analyst) Analyze(ctx context.Context, ev *model.VerifiedEvent, extra Context) Outcome {
	if ev == nil {
		return a.fallback(ctx, ReasonNoVerifiedEvent, "no verified event this cycle")
	}
	if a.inv == nil || !a.inv.Available() {
		return a.fallback(ctx, ReasonNoBackend, "missing API key or client")
	}

	raw, err := a.inv.Invoke(ctx, brain.Call{
		System: "You are 'Sentix', an elite crypto sentiment analyst AI.",
		Prompt: a.prompt(ev, extra),
		JSON:   true,
	})
	if err != nil {
		return a.fallback(ctx, ReasonBackendUnavailable, err.Error())
	}

	parsed := decode.Into[model.GenerationDraft](raw)
	if !parsed.OK {
		return a.fallback(ctx, ReasonMalformedDraft, parsed.Reason)
	}
	draft := parsed.Value
	text, err := encode(draft)
	if err != nil {
		return a.fallback(ctx, ReasonMalformedDraft, err.Error())
	}

	out := Outcome{}
	if a.reviewer != nil {
		v := a.reviewer.Review(ctx, text, ev.FactsText())
		if v.Rewritten {
			if reviewed := decode.Into[model.GenerationDraft](v.Text); reviewed.OK {
				draft = reviewed.Value
				out.Rewritten = true
			}
		}
	}

	draft.Sentiment = model.ParseSentiment(string(draft.Sentiment))
	out.Draft = draft
	out.Text, _ = encode(draft)

	logging.Info("Draft generated", "event", ev.EventID, "sentiment", draft.Sentiment, "rewritten", out.Rewritten)
	a.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindGenerateDraft, EventID: ev.EventID, Msg: string(draft.Sentiment)})
	return out
}

func (a *Analyst) fallback(ctx context.Context, reason, detail string) Outcome {
	loc := Localize(a.lang)
	draft := model.GenerationDraft{
		Sentiment: model.Neutral,
		Reasoning: fmt.Sprintf("AI model unavailable (%s). Defaulting to neutral.", detail),
		Narrative: loc.Fallback,
	}
	text, _ := encode(draft)

	logging.Warn("Using fallback draft", "reason", reason, "detail", detail)
	a.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindGenerateFallbk, Msg: reason, Err: detail})
	return Outcome{Draft: draft, Text: text, FallbackReason: reason}
}

func (a *Analyst) prompt(ev *model.VerifiedEvent, extra Context) string {
	loc := Localize(a.lang)

	var titles []string
	for _, item := range ev.Items {
		titles = append(titles, item.Title)
	}
	tickers := events.ExtractTickers(strings.Join(titles, " "))

	market := extra.Market
	if market == "" {
		market = "No on-chain data available."
	}
	history := extra.History
	if history == "" {
		history = "No historical context."
	}

	return fmt.Sprintf(generationPrompt,
		ev.Title, ev.SourceCount, strings.Join(ev.Sources, ", "), strings.Join(tickers, ", "),
		ev.FactsText(), market, history, loc.Instruction,
		loc.Summary, loc.FundFlow, loc.Sentiment)
}

func (a *Analyst) emit(ctx context.Context, e otel.Event) {
	if a.events == nil {
		return
	}
	e.Comp = "agent"
	e.RunID = otel.RunID(ctx)
	a.events.Emit(e)
}

func encode(d model.GenerationDraft) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const generationPrompt = `TASK: Generate a SINGLE high-quality trading signal and tweet for this verified event.

1. VERIFIED EVENT:
Topic: %s
Source count: %d
Sources: %s
Tickers: %s
Facts:
%s

2. ON-CHAIN DATA:
"%s"

3. HISTORICAL CONTEXT:
"%s"

INSTRUCTIONS:
- Use ONLY the verified facts above. Do not add claims they do not support.
- Determine the sentiment (BULLISH, BEARISH or NEUTRAL).
- Cross-reference with the on-chain data and the historical context.
- %s

TWEET FORMAT (under 280 characters, hashtags like #BTC #Crypto #Sentix at the end):

%s: [summary of the verified event]

%s: [on-chain flows]

%s: [BULLISH/BEARISH/NEUTRAL]

OUTPUT FORMAT (JSON only, no markdown):
{
  "sentiment": "BULLISH/BEARISH/NEUTRAL",
  "reasoning": "which facts and sources support the signal",
  "tweet": "the formatted tweet",
  "knowledge_base_entry": "one-line summary worth remembering",
  "hallucination_check": ["each fact the tweet relies on"]
}`
