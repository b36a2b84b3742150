// Package facts extracts cross-source facts for candidate events and scores
// how well each event is corroborated.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/decode"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
	"github.com/abelbrown/sentix/internal/otel"
)

// DefaultSummaryLimit is how many runes of each summary are sent.
const DefaultSummaryLimit = 200

// Invoker is the backend call the validator needs.
type Invoker interface {
	Invoke(ctx context.Context, call brain.Call) (string, error)
}

// Input is one event to validate.
type Input struct {
	EventID  string
	Title    string
	Articles []model.RawItem
}

// Result is the validated facts for one event.
type Result struct {
	Facts      []model.ValidatedFact `json:"facts"`
	Confidence float64               `json:"confidence"`
}

// Empty is the result for events the backend said nothing usable about.
func Empty() Result {
	return Result{Facts: []model.ValidatedFact{}, Confidence: 0}
}

// Validator runs fact extraction through the backend.
type Validator struct {
	inv          Invoker
	summaryLimit int
	events       *otel.Logger
}

// NewValidator creates a validator. summaryLimit <= 0 uses the default.
func NewValidator(inv Invoker, summaryLimit int) *Validator {
	if summaryLimit <= 0 {
		summaryLimit = DefaultSummaryLimit
	}
	return &Validator{inv: inv, summaryLimit: summaryLimit}
}

// SetEventLogger attaches the audit log.
func (v *Validator) SetEventLogger(l *otel.Logger) {
	v.events = l
}

// Extract validates a single event. It is exactly the batch result for a
// batch of one; failures yield Empty.
func (v *Validator) Extract(ctx context.Context, in Input) Result {
	results, err := v.ExtractBatch(ctx, []Input{in})
	if err != nil {
		return Empty()
	}
	if r, ok := results[in.EventID]; ok {
		return r
	}
	return Empty()
}

// ExtractBatch validates all inputs with one backend call. Every input id is
// present in the returned map; ids the backend skipped or garbled map to
// Empty. An error is returned only when the backend call itself failed.
func (v *Validator) ExtractBatch(ctx context.Context, inputs []Input) (map[string]Result, error) {
	results := make(map[string]Result, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	payload, err := json.MarshalIndent(v.minimize(inputs), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode fact batch: %w", err)
	}

	start := time.Now()
	raw, err := v.inv.Invoke(ctx, brain.Call{
		System: "You are a cross-source fact validation engine. Return ONLY valid JSON.",
		Prompt: fmt.Sprintf(factsPrompt, payload),
		JSON:   true,
	})
	if err != nil {
		logging.Warn("Fact extraction failed", "events", len(inputs), "error", err)
		v.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindFactsError, Count: len(inputs), Err: err.Error()})
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	entries := decode.Into[map[string]json.RawMessage](raw)
	if !entries.OK {
		logging.Warn("Fact response malformed", "reason", entries.Reason)
	}

	for _, in := range inputs {
		entry, ok := entries.Value[in.EventID]
		if !ok {
			logging.Debug("No facts returned for event", "event", in.EventID)
			results[in.EventID] = Empty()
			continue
		}
		results[in.EventID] = v.sanitize(in, entry)
	}

	logging.Info("Facts extracted", "events", len(inputs), "returned", len(entries.Value))
	v.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindFactsComplete, Count: len(inputs), Dur: time.Since(start)})
	return results, nil
}

type minimizedArticle struct {
	Source  string `json:"s"`
	Title   string `json:"t"`
	Summary string `json:"d"`
}

type minimizedEvent struct {
	ID       string             `json:"id"`
	Event    string             `json:"event"`
	Articles []minimizedArticle `json:"articles"`
}

func (v *Validator) minimize(inputs []Input) []minimizedEvent {
	out := make([]minimizedEvent, 0, len(inputs))
	for _, in := range inputs {
		ev := minimizedEvent{ID: in.EventID, Event: in.Title, Articles: make([]minimizedArticle, 0, len(in.Articles))}
		for _, a := range in.Articles {
			summary := a.Summary
			if summary == "" {
				summary = a.Text
			}
			ev.Articles = append(ev.Articles, minimizedArticle{
				Source:  a.Source,
				Title:   a.Title,
				Summary: truncate(summary, v.summaryLimit),
			})
		}
		out = append(out, ev)
	}
	return out
}

type factEntry struct {
	Facts []struct {
		Fact    string     `json:"fact"`
		Sources sourceList `json:"sources"`
	} `json:"facts"`
	Confidence *float64 `json:"confidence"`
}

// sourceList accepts either a JSON array of names or a single name.
type sourceList []string

func (s *sourceList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = sourceList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// sanitize keeps only facts attributed to sources that actually reported on
// the event and recomputes confidence from them.
func (v *Validator) sanitize(in Input, raw json.RawMessage) Result {
	var entry factEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logging.Debug("Fact entry malformed", "event", in.EventID, "error", err)
		return Empty()
	}

	sources := model.DistinctSources(in.Articles)
	canonical := make(map[string]string, len(sources))
	for _, s := range sources {
		canonical[strings.ToLower(strings.TrimSpace(s))] = s
	}

	res := Empty()
	index := make(map[string]int)
	for _, f := range entry.Facts {
		var known []string
		for _, s := range f.Sources {
			if c, ok := canonical[strings.ToLower(strings.TrimSpace(s))]; ok {
				known = append(known, c)
			}
		}
		fact := model.NewValidatedFact(f.Fact, known)
		if !fact.Admissible() {
			continue
		}
		if i, dup := index[fact.Statement]; dup {
			res.Facts[i] = model.NewValidatedFact(fact.Statement, append(res.Facts[i].Sources, fact.Sources...))
			continue
		}
		index[fact.Statement] = len(res.Facts)
		res.Facts = append(res.Facts, fact)
	}

	res.Confidence = Confidence(res.Facts, len(sources))
	if entry.Confidence != nil && math.Abs(*entry.Confidence-res.Confidence) > 0.01 {
		logging.Debug("Backend confidence disagrees", "event", in.EventID,
			"reported", *entry.Confidence, "computed", res.Confidence)
	}
	return res
}

// Confidence is k/m: k is the number of sources behind the best-corroborated
// fact, m the number of distinct sources on the event. Clamped to [0,1].
func Confidence(facts []model.ValidatedFact, total int) float64 {
	if total <= 0 {
		return 0
	}
	k := 0
	for _, f := range facts {
		if len(f.Sources) > k {
			k = len(f.Sources)
		}
	}
	c := float64(k) / float64(total)
	return math.Max(0, math.Min(1, c))
}

func (v *Validator) emit(ctx context.Context, e otel.Event) {
	if v.events == nil {
		return
	}
	e.Comp = "facts"
	e.RunID = otel.RunID(ctx)
	v.events.Emit(e)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

const factsPrompt = `Extract verifiable facts for MULTIPLE events.

For each event in the list:
1. Identify the core facts reported in its articles.
2. For every fact, list exactly the sources ("s") whose articles state it.
3. A fact reported by a single source is allowed.
4. Give a "confidence" score (0.0 - 1.0) based on source diversity.

Rules:
- Fact format: "clear, concise factual statement"
- Exclude opinions and pure speculation.
- Only state what the articles state.
- Return a JSON object whose KEYS are the "id" of each event.

Input data:
%s

Return ONLY valid JSON in this format:
{
  "event_id_1": {
    "facts": [
      {"fact": "Statement here", "sources": ["SourceA", "SourceB"]}
    ],
    "confidence": 1.0
  },
  "event_id_2": {"facts": [], "confidence": 0.5}
}`
