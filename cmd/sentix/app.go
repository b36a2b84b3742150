package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/abelbrown/sentix/internal/agent"
	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/config"
	"github.com/abelbrown/sentix/internal/coord"
	"github.com/abelbrown/sentix/internal/critic"
	"github.com/abelbrown/sentix/internal/events"
	"github.com/abelbrown/sentix/internal/facts"
	"github.com/abelbrown/sentix/internal/fetch"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/otel"
	"github.com/abelbrown/sentix/internal/pipeline"
	"github.com/abelbrown/sentix/internal/store"
)

// fetchTimeout bounds one HTTP feed request.
const fetchTimeout = 30 * time.Second

// summaryProblems is how many recent warn/error events the run summary lists.
const summaryProblems = 5

// app holds the wired components for run and daemon.
type app struct {
	cfg     *config.Config
	store   *store.Store
	events  *otel.Logger
	recent  *otel.RingBuffer
	breaker *brain.CircuitBreaker
	coord   *coord.Coordinator
}

// cycleFlags are shared by run and daemon.
type cycleFlags struct {
	configPath      *string
	publishFallback *bool
}

func registerCycleFlags(fs *flag.FlagSet) cycleFlags {
	return cycleFlags{
		configPath:      fs.String("config", "", "Config file (default ~/.sentix/config.json)"),
		publishFallback: fs.Bool("publish-fallback", false, "Publish localized fallback drafts when the backend fails"),
	}
}

// setup loads config and wires the pipeline. Infrastructure failures
// (data dir, database, audit log) are fatal to the caller.
func setup(flags cycleFlags) (*app, error) {
	path := *flags.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dir := cfg.ResolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := logging.Init(dir); err != nil {
		return nil, err
	}
	logging.Logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	for _, w := range cfg.Warnings() {
		logging.Warn("Config warning", "detail", w)
	}

	ev, err := otel.OpenFile(dir)
	if err != nil {
		return nil, err
	}
	recent := otel.NewRingBuffer(otel.DefaultRingSize)
	ev.SetRingBuffer(recent)

	st, err := store.Open(dbPath(dir))
	if err != nil {
		ev.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	breaker := brain.NewCircuitBreaker(cfg.Invoker.FailureThreshold, cfg.Invoker.Cooldown())
	if saved, ok, err := st.LoadBreakerState(); err != nil {
		logging.Warn("Failed to load breaker state", "error", err)
	} else if ok {
		breaker.Restore(saved)
		logging.Info("Breaker state restored", "fallback_active", saved.FallbackActive, "until", saved.FallbackUntil)
	}

	provider := brain.CreateProvider(cfg.Backend.Provider, cfg.Backend.APIKey, cfg.Backend.Primary, cfg.Backend.Endpoint)
	if provider == nil {
		logging.Warn("Unknown backend provider; generation will use fallback drafts", "provider", cfg.Backend.Provider)
	} else if !provider.Available() {
		logging.Warn("Backend not configured; generation will use fallback drafts", "provider", cfg.Backend.Provider)
	}

	inv := brain.NewInvoker(provider, breaker, brain.InvokerConfig{
		PrimaryModel:      cfg.Backend.Primary,
		FallbackModel:     cfg.Backend.Fallback,
		MaxAttempts:       cfg.Invoker.MaxAttempts,
		BaseDelay:         cfg.Invoker.BaseDelay(),
		RequestsPerMinute: cfg.Invoker.RequestsPerMinute,
		AttemptTimeout:    cfg.Invoker.AttemptTimeout(),
		Budget:            cfg.Invoker.Budget(),
	})
	inv.SetEventLogger(ev)

	resolver := events.NewResolver(inv)
	resolver.SetEventLogger(ev)
	validator := facts.NewValidator(inv, cfg.Pipeline.SummaryLimit)
	validator.SetEventLogger(ev)
	p := pipeline.New(resolver, validator, pipeline.Options{MinSourceCount: cfg.Pipeline.MinSourceCount})
	p.SetEventLogger(ev)

	crit := critic.New(inv)
	crit.SetEventLogger(ev)
	analyst := agent.NewAnalyst(inv, crit, cfg.Language)
	analyst.SetEventLogger(ev)

	c := coord.NewCoordinator(st, fetch.NewFetcher(fetchTimeout), p, analyst, nil,
		fetch.SourcesFromConfig(cfg.Feeds), coord.Options{
			Interval:        cfg.Schedule.Interval(),
			MaxItemAge:      cfg.Pipeline.MaxItemAge(),
			PublishFallback: *flags.publishFallback,
			Breaker:         breaker,
		})
	c.SetEventLogger(ev)

	ev.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindStartup,
		Comp:  "main",
		Model: cfg.Backend.Primary,
		Count: len(cfg.Feeds),
		Msg:   cfg.Backend.Provider,
	})

	return &app{cfg: cfg, store: st, events: ev, recent: recent, breaker: breaker, coord: c}, nil
}

// Close flushes the audit log and closes the database.
func (a *app) Close() {
	a.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "main"})
	a.events.Close()
	a.store.Close()
	logging.Close()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runOnce() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flags := registerCycleFlags(fs)
	summary := fs.Bool("summary", true, "Print audit event counts after the cycle")
	fs.Parse(os.Args[1:])

	a, err := setup(flags)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	run, runErr := a.coord.RunOnce(ctx)
	cancel()
	// Close flushes the audit log into the ring buffer before the summary.
	a.Close()

	printRun(run)
	if *summary {
		printEventSummary(a.recent, a.events.Dropped())
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

func runDaemon() {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	flags := registerCycleFlags(fs)
	fs.Parse(os.Args[1:])

	a, err := setup(flags)
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	logging.Info("Daemon started", "interval", a.cfg.Schedule.Interval())
	a.coord.Start(ctx)
	<-ctx.Done()
	logging.Info("Shutting down")
	a.coord.Wait()
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", config.ConfigPath(), "Config file to write")
	force := fs.Bool("force", false, "Overwrite an existing file")
	fs.Parse(os.Args[1:])

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "config already exists at %s (use -force to overwrite)\n", *path)
		os.Exit(1)
	}
	if err := config.DefaultConfig().SaveTo(*path); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", *path)
}

func printRun(r store.Run) {
	if r.ID == "" {
		return
	}
	fmt.Printf("run %s: %s (fetched=%d new=%d events=%d", r.ID, r.Status, r.Fetched, r.NewItems, r.Events)
	if r.EventID != "" {
		fmt.Printf(" event=%s", r.EventID)
	}
	if r.FallbackReason != "" {
		fmt.Printf(" fallback=%s", r.FallbackReason)
	}
	fmt.Println(")")
}

// printEventSummary prints how many audit events of each kind the cycle
// produced, the latest warnings and errors, and any dropped events.
func printEventSummary(recent *otel.RingBuffer, dropped uint64) {
	counts := recent.Stats()
	if len(counts) == 0 && dropped == 0 {
		return
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Println(headerStyle.Render("Audit events"))
	for _, k := range kinds {
		fmt.Printf("  %-20s %d\n", k, counts[otel.EventKind(k)])
	}

	if problems := recent.Problems(summaryProblems); len(problems) > 0 {
		fmt.Println(headerStyle.Render("Recent problems"))
		for _, e := range problems {
			fmt.Println("  " + formatEvent(e))
		}
	}
	if dropped > 0 {
		fmt.Println(errStyle.Render(fmt.Sprintf("  %d audit events dropped", dropped)))
	}
}

func dbPath(dir string) string {
	return filepath.Join(dir, "sentix.db")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
