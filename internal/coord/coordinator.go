// Package coord runs synthesis cycles: fetch, dedupe against the processed
// ledger, verify events, generate a draft for the strongest one, persist
// and publish.
package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/sentix/internal/agent"
	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/fetch"
	"github.com/abelbrown/sentix/internal/filter"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
	"github.com/abelbrown/sentix/internal/otel"
	"github.com/abelbrown/sentix/internal/store"
)

// DefaultInterval is the time between scheduled cycles.
const DefaultInterval = 4 * time.Hour

// fetchTimeout is the timeout for each individual fetch.
const fetchTimeout = 30 * time.Second

// maxConcurrentFetches limits parallel fetch operations.
const maxConcurrentFetches = 5

// ledgerRetention is how long processed item ids are remembered.
const ledgerRetention = 30 * 24 * time.Hour

// historyLimit caps knowledge entries passed as historical context.
const historyLimit = 3

// ErrNotPublished marks a cycle whose draft was generated but not published.
var ErrNotPublished = errors.New("draft not published")

// Fetcher retrieves items from one source.
type Fetcher interface {
	Fetch(ctx context.Context, src fetch.Source) ([]model.RawItem, error)
}

// Synthesizer turns raw items into verified events, strongest first.
type Synthesizer interface {
	Run(ctx context.Context, raw []model.RawItem) []model.VerifiedEvent
}

// Generator drafts a narrative for a verified event.
type Generator interface {
	Analyze(ctx context.Context, ev *model.VerifiedEvent, extra agent.Context) agent.Outcome
}

// MarketFunc supplies market or on-chain context for an event. It must not
// block for long; an empty string means no context.
type MarketFunc func(ctx context.Context, ev *model.VerifiedEvent) string

// Options tune a Coordinator. Zero values select defaults.
type Options struct {
	Interval        time.Duration
	MaxItemAge      time.Duration // fetched items older than this are dropped; 0 keeps all
	PublishFallback bool          // publish localized fallback drafts too
	Market          MarketFunc
	Breaker         *brain.CircuitBreaker // persisted after each cycle when set
}

// Coordinator manages scheduled cycles.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	store     *store.Store
	fetcher   Fetcher
	pipeline  Synthesizer
	generator Generator
	publisher Publisher
	sources   []fetch.Source // IMMUTABLE: set at construction, never modified
	opts      Options
	events    *otel.Logger
	now       func() time.Time

	cycleMu sync.Mutex // one cycle at a time
	wg      sync.WaitGroup
}

// NewCoordinator wires a Coordinator. A nil publisher selects LogPublisher.
func NewCoordinator(s *store.Store, f Fetcher, p Synthesizer, g Generator, pub Publisher, sources []fetch.Source, opts Options) *Coordinator {
	sourcesCopy := make([]fetch.Source, len(sources))
	copy(sourcesCopy, sources)

	if pub == nil {
		pub = LogPublisher{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	return &Coordinator{
		store:     s,
		fetcher:   f,
		pipeline:  p,
		generator: g,
		publisher: pub,
		sources:   sourcesCopy,
		opts:      opts,
		now:       time.Now,
	}
}

// SetEventLogger attaches the audit event logger.
func (c *Coordinator) SetEventLogger(l *otel.Logger) {
	c.events = l
}

// Start begins scheduled cycles. Call with a cancellable context.
// Runs one cycle immediately, then every interval.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.runLogged(ctx)

		ticker := time.NewTicker(c.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runLogged(ctx)
			}
		}
	}()
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) runLogged(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Cycle failed", "error", err)
	}
}

// RunOnce executes one cycle and returns its recorded run. Only store
// failures and publish failures are returned as errors; everything else
// degrades into an idle run or a fallback draft.
func (c *Coordinator) RunOnce(ctx context.Context) (store.Run, error) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	start := c.now()
	runID, err := c.store.StartRun(start)
	if err != nil {
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Err: err.Error()})
		return store.Run{}, err
	}
	ctx = otel.WithRunID(ctx, runID)
	run := store.Run{ID: runID, StartedAt: start, Status: store.RunRunning}

	logging.Info("Cycle started", "run", runID, "sources", len(c.sources))
	c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindCycleStart, Count: len(c.sources)})

	runErr := c.cycle(ctx, &run)
	if runErr != nil {
		run.Status = store.RunFailed
		run.Error = runErr.Error()
	}
	run.FinishedAt = c.now()

	if err := c.store.FinishRun(run); err != nil {
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Err: err.Error()})
		runErr = errors.Join(runErr, err)
	}
	c.saveBreaker(ctx)
	if _, err := c.store.PruneProcessed(start.Add(-ledgerRetention)); err != nil {
		logging.Warn("Failed to prune processed ledger", "error", err)
	}

	logging.Info("Cycle finished", "run", runID, "status", run.Status, "events", run.Events, "duration", run.FinishedAt.Sub(start))
	c.emit(ctx, otel.Event{
		Level:   levelFor(runErr),
		Kind:    otel.KindCycleComplete,
		EventID: run.EventID,
		Count:   run.Events,
		Dur:     run.FinishedAt.Sub(start),
		Msg:     run.Status,
		Err:     errString(runErr),
	})
	return run, runErr
}

func (c *Coordinator) cycle(ctx context.Context, run *store.Run) error {
	items := c.fetchAll(ctx)
	run.Fetched = len(items)
	items = filter.Dedup(filter.ByAge(items, c.opts.MaxItemAge, c.now()))

	fresh, err := c.unprocessed(items)
	if err != nil {
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Err: err.Error()})
		return fmt.Errorf("processed ledger: %w", err)
	}
	run.NewItems = len(fresh)
	if len(fresh) == 0 {
		run.Status = store.RunIdle
		c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindCycleSkip, Msg: "no new items"})
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	events := c.pipeline.Run(ctx, fresh)
	run.Events = len(events)
	if err := c.store.SaveEvents(run.ID, events, c.now()); err != nil {
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Err: err.Error()})
		logging.Warn("Failed to save verified events", "error", err)
	}
	if len(events) == 0 {
		run.Status = store.RunIdle
		c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindCycleSkip, Msg: "no verified events"})
		return nil
	}

	top := &events[0]
	run.EventID = top.EventID

	out := c.generator.Analyze(ctx, top, agent.Context{
		Market:  c.market(ctx, top),
		History: c.history(top),
	})
	run.FallbackReason = out.FallbackReason

	draft := store.Draft{
		RunID:          run.ID,
		EventID:        top.EventID,
		Sentiment:      out.Draft.Sentiment,
		Reasoning:      out.Draft.Reasoning,
		Narrative:      out.Draft.Narrative,
		FallbackReason: out.FallbackReason,
		Rewritten:      out.Rewritten,
		CreatedAt:      c.now(),
	}
	if err := c.store.SaveDraft(draft); err != nil {
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Err: err.Error()})
		logging.Warn("Failed to save draft", "error", err)
	}

	if out.FallbackReason != "" && !c.opts.PublishFallback {
		run.Status = store.RunIdle
		c.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindCycleSkip, EventID: top.EventID, Msg: "fallback draft not published", Err: out.FallbackReason})
		return nil
	}

	post := Post{
		RunID:          run.ID,
		EventID:        top.EventID,
		Title:          top.Title,
		Draft:          out.Draft,
		FallbackReason: out.FallbackReason,
	}
	if err := c.publisher.Publish(ctx, post); err != nil {
		return fmt.Errorf("%w: %w", ErrNotPublished, err)
	}
	run.Status = store.RunPublished
	c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindPublish, EventID: top.EventID, Msg: string(out.Draft.Sentiment)})

	if out.FallbackReason == "" {
		if err := c.store.SaveKnowledge(store.Knowledge{
			RunID:     run.ID,
			EventID:   top.EventID,
			Topic:     top.Title,
			Entry:     out.Draft.KnowledgeBaseEntry,
			Sentiment: out.Draft.Sentiment,
			CreatedAt: c.now(),
		}); err != nil {
			logging.Warn("Failed to save knowledge entry", "error", err)
		}
	}

	// Every fresh item was considered this cycle, so none is offered again.
	if _, err := c.store.MarkProcessed(run.ID, fresh, c.now()); err != nil {
		c.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindStoreError, Err: err.Error()})
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// fetchAll fetches all sources in parallel. Items keep source order so a
// cycle over the same feeds is deterministic.
func (c *Coordinator) fetchAll(ctx context.Context) []model.RawItem {
	results := make([][]model.RawItem, len(c.sources))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for i, src := range c.sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = c.fetchSource(ctx, src)
			return nil // never fail the group - errors reported per-source
		})
	}
	_ = g.Wait()

	var items []model.RawItem
	for _, r := range results {
		items = append(items, r...)
	}
	return items
}

// fetchSource fetches a single source with timeout.
func (c *Coordinator) fetchSource(ctx context.Context, src fetch.Source) []model.RawItem {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	start := time.Now()
	items, err := c.fetcher.Fetch(fetchCtx, src)
	if err != nil {
		logging.Warn("Fetch failed", "source", src.Name, "error", err)
		c.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindFetchError, Source: src.Name, Err: err.Error(), Dur: time.Since(start)})
		return nil
	}
	c.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindFetchComplete, Source: src.Name, Count: len(items), Dur: time.Since(start)})
	return items
}

// unprocessed drops items already in the ledger or without a key.
func (c *Coordinator) unprocessed(items []model.RawItem) ([]model.RawItem, error) {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		if k := item.Key(); k != "" {
			keys = append(keys, k)
		}
	}
	seen, err := c.store.Processed(keys)
	if err != nil {
		return nil, err
	}

	fresh := make([]model.RawItem, 0, len(items))
	for _, item := range items {
		k := item.Key()
		if k == "" || seen[k] {
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, nil
}

func (c *Coordinator) market(ctx context.Context, ev *model.VerifiedEvent) string {
	if c.opts.Market == nil {
		return ""
	}
	return c.opts.Market(ctx, ev)
}

func (c *Coordinator) saveBreaker(ctx context.Context) {
	if c.opts.Breaker == nil {
		return
	}
	if err := c.store.SaveBreakerState(c.opts.Breaker.State()); err != nil {
		logging.Warn("Failed to persist breaker state", "error", err)
		c.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindStoreError, Err: err.Error()})
	}
}

func (c *Coordinator) emit(ctx context.Context, e otel.Event) {
	if c.events == nil {
		return
	}
	e.Comp = "coord"
	e.RunID = otel.RunID(ctx)
	c.events.Emit(e)
}

func levelFor(err error) otel.Level {
	if err != nil {
		return otel.LevelError
	}
	return otel.LevelInfo
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
