// Package pipeline runs one synthesis pass: resolve raw items into events,
// attach their items and sources, validate facts and rank the result.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/abelbrown/sentix/internal/events"
	"github.com/abelbrown/sentix/internal/facts"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
	"github.com/abelbrown/sentix/internal/otel"
)

// EventResolver groups anonymized items into candidate events.
type EventResolver interface {
	Resolve(ctx context.Context, items []model.AnonymizedItem) ([]model.CandidateEvent, error)
}

// FactExtractor validates facts for a batch of events.
type FactExtractor interface {
	ExtractBatch(ctx context.Context, inputs []facts.Input) (map[string]facts.Result, error)
}

// Options controls pipeline policy.
type Options struct {
	// MinSourceCount drops events reported by fewer distinct sources
	// before fact extraction. Values below 1 mean 1, which keeps everything.
	MinSourceCount int
}

// Pipeline is the orchestrator. It holds no per-run state, so one value
// can serve concurrent runs.
type Pipeline struct {
	resolver EventResolver
	facts    FactExtractor
	opts     Options
	events   *otel.Logger
}

// New creates a pipeline.
func New(resolver EventResolver, extractor FactExtractor, opts Options) *Pipeline {
	if opts.MinSourceCount < 1 {
		opts.MinSourceCount = 1
	}
	return &Pipeline{resolver: resolver, facts: extractor, opts: opts}
}

// SetEventLogger attaches the audit log.
func (p *Pipeline) SetEventLogger(l *otel.Logger) {
	p.events = l
}

// Run turns raw items into verified events ordered by source count
// (descending, ties in resolver order). It never fails: backend problems
// produce an empty result or events without facts.
func (p *Pipeline) Run(ctx context.Context, raw []model.RawItem) []model.VerifiedEvent {
	start := time.Now()
	result := []model.VerifiedEvent{}

	byKey, anonymized := index(raw)
	if len(anonymized) == 0 {
		logging.Info("No items to resolve")
		return result
	}

	candidates, err := p.resolver.Resolve(ctx, anonymized)
	if err != nil {
		logging.Warn("Resolver failed, no events this cycle", "error", err)
		return result
	}
	if len(candidates) == 0 {
		logging.Info("No events detected", "items", len(anonymized))
		p.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindResolveEmpty, Count: len(anonymized)})
		return result
	}

	// Facts are matched back by event id, so ids must not repeat.
	candidates = events.UniqueIDs(candidates)
	for _, c := range candidates {
		items := resolveItems(c.ArticleIDs, byKey)
		if len(items) == 0 {
			logging.Debug("Dropping event with no resolvable articles", "event", c.EventID)
			continue
		}
		ev := model.NewVerifiedEvent(c, items)
		if ev.SourceCount < p.opts.MinSourceCount {
			logging.Info("Event below source threshold", "event", ev.EventID,
				"sources", ev.SourceCount, "min", p.opts.MinSourceCount)
			p.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindEventRejected, EventID: ev.EventID, Count: ev.SourceCount})
			continue
		}
		result = append(result, ev)
	}
	if len(result) == 0 {
		return result
	}

	inputs := make([]facts.Input, len(result))
	for i, ev := range result {
		inputs[i] = facts.Input{EventID: ev.EventID, Title: ev.Title, Articles: ev.Items}
	}
	validated, err := p.facts.ExtractBatch(ctx, inputs)
	if err != nil {
		logging.Warn("Fact validation failed, events kept without facts", "error", err)
		validated = nil
	}
	for i := range result {
		r, ok := validated[result[i].EventID]
		if !ok {
			r = facts.Empty()
		}
		result[i].Facts = r.Facts
		result[i].Confidence = r.Confidence
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SourceCount > result[j].SourceCount
	})

	logging.Info("Pipeline complete", "items", len(anonymized), "candidates", len(candidates),
		"events", len(result), "duration", time.Since(start).Round(time.Millisecond))
	return result
}

// index assigns every item its key, keeps the first item per key and
// anonymizes the survivors in input order.
func index(raw []model.RawItem) (map[string]model.RawItem, []model.AnonymizedItem) {
	byKey := make(map[string]model.RawItem, len(raw))
	anonymized := make([]model.AnonymizedItem, 0, len(raw))
	for _, item := range raw {
		key := item.Key()
		if key == "" {
			continue
		}
		if _, dup := byKey[key]; dup {
			continue
		}
		item.ID = key
		byKey[key] = item
		anonymized = append(anonymized, model.Anonymize(item))
	}
	return byKey, anonymized
}

// resolveItems maps ids back to items, skipping unknown and repeated ids.
func resolveItems(ids []string, byKey map[string]model.RawItem) []model.RawItem {
	seen := make(map[string]bool, len(ids))
	var items []model.RawItem
	for _, id := range ids {
		item, ok := byKey[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, item)
	}
	return items
}

func (p *Pipeline) emit(ctx context.Context, e otel.Event) {
	if p.events == nil {
		return
	}
	e.Comp = "pipeline"
	e.RunID = otel.RunID(ctx)
	p.events.Emit(e)
}
