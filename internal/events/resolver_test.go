package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/model"
)

type fakeInvoker struct {
	response string
	err      error
	calls    []brain.Call
}

func (f *fakeInvoker) Invoke(ctx context.Context, call brain.Call) (string, error) {
	f.calls = append(f.calls, call)
	return f.response, f.err
}

func batch(ids ...string) []model.AnonymizedItem {
	items := make([]model.AnonymizedItem, len(ids))
	for i, id := range ids {
		items[i] = model.AnonymizedItem{ID: id, Title: "title " + id, Link: "https://x/" + id, Published: t0}
	}
	return items
}

func TestResolveSingleCallWithoutSources(t *testing.T) {
	inv := &fakeInvoker{response: `[{"event_id":"e1","title":"T","articles":["a","b"]}]`}
	r := NewResolver(inv)

	got, err := r.Resolve(context.Background(), batch("a", "b"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("Expected 1 backend call, got %d", len(inv.calls))
	}
	if strings.Contains(inv.calls[0].Prompt, `"source"`) {
		t.Error("resolver prompt must not carry sources")
	}
	if !strings.Contains(inv.calls[0].Prompt, "24 hours") {
		t.Error("resolver prompt must state the same-event window")
	}
	if len(got) != 1 || len(got[0].ArticleIDs) != 2 {
		t.Errorf("Expected one event with 2 articles, got %+v", got)
	}
}

func TestResolveFiltersUnknownAndDuplicateIDs(t *testing.T) {
	inv := &fakeInvoker{response: "```json\n" + `[
		{"event_id":"e1","title":"T1","articles":["a","ghost","a"]},
		{"event_id":"e2","title":"T2","articles":["a","b"]},
		{"event_id":"e3","title":"T3","articles":["nope"]}
	]` + "\n```"}
	r := NewResolver(inv)

	got, err := r.Resolve(context.Background(), batch("a", "b"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(got), got)
	}
	if len(got[0].ArticleIDs) != 1 || got[0].ArticleIDs[0] != "a" {
		t.Errorf("e1 = %v, want [a]", got[0].ArticleIDs)
	}
	if len(got[1].ArticleIDs) != 1 || got[1].ArticleIDs[0] != "b" {
		t.Errorf("e2 = %v, want [b]", got[1].ArticleIDs)
	}

	known := map[string]bool{"a": true, "b": true}
	for _, ev := range got {
		for _, id := range ev.ArticleIDs {
			if !known[id] {
				t.Errorf("fabricated id %q survived", id)
			}
		}
	}
}

func TestResolveMalformedIsNoEvents(t *testing.T) {
	for _, resp := range []string{
		"not json",
		`{"event_id":"e1"}`,
		"",
		"[]",
		`{"events":[{"event_id":"e1","articles":["a"]}]}`,
		`Here are the events: [{"event_id":"e1","articles":["a"]}]`,
	} {
		r := NewResolver(&fakeInvoker{response: resp})
		got, err := r.Resolve(context.Background(), batch("a"))
		if err != nil {
			t.Errorf("response %q: unexpected error %v", resp, err)
		}
		if len(got) != 0 {
			t.Errorf("response %q: expected no events, got %+v", resp, got)
		}
	}
}

func TestResolveInvokeErrorPropagates(t *testing.T) {
	r := NewResolver(&fakeInvoker{err: brain.ErrUnavailable})
	got, err := r.Resolve(context.Background(), batch("a"))
	if !errors.Is(err, brain.ErrUnavailable) {
		t.Fatalf("Expected ErrUnavailable, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil events, got %+v", got)
	}
}

func TestResolveEmptyBatchSkipsBackend(t *testing.T) {
	inv := &fakeInvoker{}
	got, err := NewResolver(inv).Resolve(context.Background(), nil)
	if err != nil || got != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", got, err)
	}
	if len(inv.calls) != 0 {
		t.Error("empty batch must not call the backend")
	}
}

func TestResolveKeepsOpinionSeparate(t *testing.T) {
	inv := &fakeInvoker{response: `[{"event_id":"op","title":"Takes","articles":["a","b"],
		"occurrence":{"organizations":["SEC"],"action":"approves","object":"ETF","kind":"opinion"}}]`}
	got, err := NewResolver(inv).Resolve(context.Background(), batch("a", "b"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 single-article events, got %+v", got)
	}
	if got[0].EventID != "op-1" || got[1].EventID != "op-2" {
		t.Errorf("unexpected ids %s, %s", got[0].EventID, got[1].EventID)
	}
}

func TestResolveSplitsAcrossWindow(t *testing.T) {
	items := batch("a", "b")
	items[1].Published = t0.Add(36 * time.Hour)
	inv := &fakeInvoker{response: `[{"event_id":"e","title":"T","articles":["a","b"]}]`}

	got, err := NewResolver(inv).Resolve(context.Background(), items)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected split into 2 events, got %+v", got)
	}
}

func TestResolveAssignsMissingEventID(t *testing.T) {
	inv := &fakeInvoker{response: `[{"title":"T","articles":["a"]}]`}
	got, _ := NewResolver(inv).Resolve(context.Background(), batch("a"))
	if len(got) != 1 || got[0].EventID != "event-1" {
		t.Errorf("Expected generated id event-1, got %+v", got)
	}
}

func TestResolveDuplicateEventIDsAreRenamed(t *testing.T) {
	inv := &fakeInvoker{response: `[
		{"event_id":"btc","title":"ETF approved","articles":["a","b"]},
		{"event_id":"btc","title":"Exchange hacked","articles":["c"]},
		{"event_id":"btc-2","title":"Miner sells","articles":["d"]},
		{"title":"Untitled","articles":["e"]},
		{"event_id":"event-4","title":"Clash","articles":["f"]}
	]`}
	got, err := NewResolver(inv).Resolve(context.Background(), batch("a", "b", "c", "d", "e", "f"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := []string{"btc", "btc-2", "btc-2-2", "event-4", "event-4-2"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %+v", len(want), got)
	}
	for i, ev := range got {
		if ev.EventID != want[i] {
			t.Errorf("event %d id=%q, want %q", i, ev.EventID, want[i])
		}
	}
	if got[0].Title != "ETF approved" {
		t.Errorf("first event must keep its id, got %+v", got[0])
	}
}

func TestUniqueIDsSuffixCollidesWithSplit(t *testing.T) {
	evs := []model.CandidateEvent{
		{EventID: "op-1"},
		{EventID: "op"},
		{EventID: "op-1"},
		{EventID: ""},
		{EventID: ""},
	}
	got := UniqueIDs(evs)
	seen := map[string]bool{}
	for _, ev := range got {
		if seen[ev.EventID] {
			t.Errorf("duplicate id %q in %+v", ev.EventID, got)
		}
		seen[ev.EventID] = true
	}
	if got[2].EventID != "op-1-2" || got[3].EventID != "event" || got[4].EventID != "event-2" {
		t.Errorf("unexpected ids %+v", got)
	}
}
