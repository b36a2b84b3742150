package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/abelbrown/sentix/internal/otel"
)

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level otel.Level) int {
	switch level {
	case otel.LevelDebug:
		return 0
	case otel.LevelInfo:
		return 1
	case otel.LevelWarn:
		return 2
	case otel.LevelError:
		return 3
	default:
		return 0
	}
}

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default ~/.sentix/config.json)")
	tail := fs.Int("tail", 50, "Number of recent events to show")
	kind := fs.String("kind", "", "Filter by event kind prefix (e.g. 'breaker')")
	level := fs.String("level", "", "Minimum level: debug, info, warn, error")
	comp := fs.String("comp", "", "Filter by component name")
	run := fs.String("run", "", "Filter by run ID")
	since := fs.Duration("since", 0, "Only events newer than this (e.g. 24h)")
	rawJSON := fs.Bool("json", false, "Output JSON lines")
	fs.Parse(os.Args[1:])

	logPath := eventLogPath(dataDir(*configPath))
	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "  Event log not found at %s\n", logPath)
		fmt.Fprintf(os.Stderr, "  Run 'sentix run' first to generate events.\n")
		os.Exit(1)
	}
	defer f.Close()

	filter := otel.Filter{Kind: *kind, RunID: *run}
	if *since > 0 {
		filter.Since = time.Now().Add(-*since)
	}

	evs, err := otel.ReadEvents(f, filter)
	if err != nil {
		fatal(err)
	}
	evs = selectEvents(evs, otel.Level(*level), *comp, *tail)

	for _, e := range evs {
		if *rawJSON {
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Println(string(data))
			continue
		}
		fmt.Println(formatEvent(e))
	}
}

// selectEvents applies the level and component filters and keeps the last
// n matches.
func selectEvents(evs []otel.Event, minLevel otel.Level, comp string, n int) []otel.Event {
	out := evs[:0]
	for _, e := range evs {
		if minLevel != "" && levelRank(e.Level) < levelRank(minLevel) {
			continue
		}
		if comp != "" && e.Comp != comp {
			continue
		}
		out = append(out, e)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func formatEvent(e otel.Event) string {
	ts := dimStyle.Render(e.Time.Local().Format("01-02 15:04:05"))
	parts := []string{
		ts,
		styleLevel(e.Level),
		fmt.Sprintf("[%-8s]", e.Comp),
		kindStyle.Render(fmt.Sprintf("%-18s", e.Kind)),
	}

	if e.RunID != "" {
		parts = append(parts, dimStyle.Render("run="+shortID(e.RunID)))
	}
	if e.EventID != "" {
		parts = append(parts, "event="+e.EventID)
	}
	if e.Msg != "" {
		parts = append(parts, "- "+truncate(e.Msg, 120))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	if e.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", e.Count))
	}
	if e.Source != "" {
		parts = append(parts, "src="+e.Source)
	}
	if e.Dur > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("(%s)", e.Dur.Round(time.Millisecond))))
	}
	if e.Err != "" {
		parts = append(parts, errStyle.Render("err="+truncate(e.Err, 160)))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
