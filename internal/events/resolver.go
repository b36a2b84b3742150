// Package events groups anonymized news items into candidate real-world
// events with one backend call per batch.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/decode"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
	"github.com/abelbrown/sentix/internal/otel"
)

// Invoker is the backend call the resolver needs.
type Invoker interface {
	Invoke(ctx context.Context, call brain.Call) (string, error)
}

// CandidateGroup is one group as returned by the backend, before it is
// checked against the batch.
type CandidateGroup struct {
	EventID    string      `json:"event_id"`
	Title      string      `json:"title"`
	ArticleIDs []string    `json:"articles"`
	Occurrence *Occurrence `json:"occurrence,omitempty"`
}

// Resolver turns a batch of anonymized items into candidate events.
type Resolver struct {
	inv    Invoker
	events *otel.Logger
}

// NewResolver creates a resolver backed by inv.
func NewResolver(inv Invoker) *Resolver {
	return &Resolver{inv: inv}
}

// SetEventLogger attaches the audit log.
func (r *Resolver) SetEventLogger(l *otel.Logger) {
	r.events = l
}

// Resolve sends the whole batch in one call. A response that is not a JSON
// array at the top level yields no events and no error; an invocation
// failure is returned. Returned events reference only ids from items, each
// id at most once, and carry distinct event ids.
func (r *Resolver) Resolve(ctx context.Context, items []model.AnonymizedItem) ([]model.CandidateEvent, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	r.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindResolveStart, Count: len(items)})
	start := time.Now()

	raw, err := r.inv.Invoke(ctx, brain.Call{
		System: resolverSystem,
		Prompt: fmt.Sprintf(resolverPrompt, payload),
		JSON:   true,
	})
	if err != nil {
		logging.Warn("Event resolution failed", "items", len(items), "error", err)
		r.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindResolveError, Err: err.Error()})
		return nil, fmt.Errorf("resolve events: %w", err)
	}

	res := decode.Strict[[]CandidateGroup](raw)
	if !res.OK {
		logging.Warn("Resolver response malformed", "reason", res.Reason)
		r.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindResolveEmpty, Msg: res.Reason})
		return nil, nil
	}

	events := normalize(res.Value, items)
	logging.Info("Events resolved", "items", len(items), "groups", len(res.Value), "events", len(events))
	r.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindResolveComplete, Count: len(events), Dur: time.Since(start)})
	return events, nil
}

// normalize enforces the locally checkable rules on the backend's groups:
// unknown and repeated ids are dropped, empty groups vanish, non-direct
// coverage is never merged, groups spanning more than one occurrence are
// split, and every event id in the result is distinct.
func normalize(groups []CandidateGroup, items []model.AnonymizedItem) []model.CandidateEvent {
	published := make(map[string]time.Time, len(items))
	for _, item := range items {
		published[item.ID] = item.Published
	}

	assigned := make(map[string]bool, len(items))
	var out []model.CandidateEvent
	for i, g := range groups {
		if g.EventID == "" {
			g.EventID = fmt.Sprintf("event-%d", i+1)
		}

		ids := make([]string, 0, len(g.ArticleIDs))
		for _, id := range g.ArticleIDs {
			if _, known := published[id]; !known || assigned[id] {
				continue
			}
			assigned[id] = true
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}
		g.ArticleIDs = ids

		if g.Occurrence != nil && !g.Occurrence.Direct() && len(ids) > 1 {
			logging.Debug("Keeping non-report coverage separate", "event", g.EventID, "kind", g.Occurrence.Kind)
			for n, id := range ids {
				out = append(out, model.CandidateEvent{
					EventID:    fmt.Sprintf("%s-%d", g.EventID, n+1),
					Title:      g.Title,
					ArticleIDs: []string{id},
				})
			}
			continue
		}

		for _, sub := range SplitGroup(g, published) {
			out = append(out, model.CandidateEvent{
				EventID:    sub.EventID,
				Title:      sub.Title,
				ArticleIDs: sub.ArticleIDs,
			})
		}
	}
	return UniqueIDs(out)
}

// UniqueIDs renames events whose id was already used earlier in evs by
// appending the first free numeric suffix ("btc", "btc-2", ...). Earlier
// events keep their ids. evs is modified in place and returned.
func UniqueIDs(evs []model.CandidateEvent) []model.CandidateEvent {
	used := make(map[string]bool, len(evs))
	for i := range evs {
		id := evs[i].EventID
		if id == "" {
			id = "event"
		}
		if used[id] {
			n := 2
			for used[fmt.Sprintf("%s-%d", id, n)] {
				n++
			}
			next := fmt.Sprintf("%s-%d", id, n)
			logging.Debug("Renaming duplicate event id", "event", id, "renamed", next)
			id = next
		}
		used[id] = true
		evs[i].EventID = id
	}
	return evs
}

func (r *Resolver) emit(ctx context.Context, e otel.Event) {
	if r.events == nil {
		return
	}
	e.Comp = "resolver"
	e.RunID = otel.RunID(ctx)
	r.events.Emit(e)
}

const resolverSystem = `You are a JSON API. Return ONLY valid JSON. No explanation. No markdown.`

const resolverPrompt = `Group the news articles below into REAL-WORLD EVENTS.

Definition of SAME EVENT. Articles describe the same concrete occurrence only if they share:
- the same organization(s)
- the same specific action
- the same object (ETF, lawsuit, hack, listing, regulation, ...)
- the same timeframe (within 24 hours)

Do NOT group articles that are only:
- about the same topic
- about the same organization but a different action
- an analysis, opinion or market reaction to another event

Articles reporting the same occurrence belong together whoever wrote them. Several versions or
updates of one story are still one event, but they do not count as independent confirmation.
Every article id must appear in at most one event. Use only ids from the list.

Articles:
%s

Return a JSON array in exactly this format:
[
  {
    "event_id": "short stable identifier based on organization + action + date",
    "title": "clear factual description of what happened",
    "articles": ["id1", "id2"],
    "occurrence": {
      "organizations": ["..."],
      "action": "...",
      "object": "...",
      "kind": "report | analysis | opinion | reaction"
    }
  }
]`
