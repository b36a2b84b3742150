package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abelbrown/sentix/internal/model"
)

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default ~/.sentix/config.json)")
	runs := fs.Int("runs", 10, "Number of recent runs to show")
	drafts := fs.Int("drafts", 5, "Number of recent drafts to show")
	fs.Parse(os.Args[1:])

	st := openDB(dataDir(*configPath))
	defer st.Close()

	// --- Sentiment distribution ---
	counts, err := st.SentimentCounts()
	if err != nil {
		fatal(err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Println(headerStyle.Render("Sentiment"))
	for _, s := range []model.Sentiment{model.Bullish, model.Bearish, model.Neutral} {
		pct := 0.0
		if total > 0 {
			pct = float64(counts[s]) / float64(total) * 100
		}
		fmt.Printf("  %s %5d  %5.1f%%\n", styleSentiment(fmt.Sprintf("%-8s", s)), counts[s], pct)
	}
	fmt.Printf("  %-8s %5d\n", "total", total)

	// --- Recent runs ---
	recent, err := st.RecentRuns(*runs)
	if err != nil {
		fatal(err)
	}
	fmt.Println()
	fmt.Println(headerStyle.Render(fmt.Sprintf("Recent runs (%d)", len(recent))))
	statusCount := map[string]int{}
	for _, r := range recent {
		statusCount[r.Status]++
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		line := fmt.Sprintf("  %s  %-9s %6s  fetched=%-3d new=%-3d events=%-2d",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status, dur, r.Fetched, r.NewItems, r.Events)
		if r.EventID != "" {
			line += " event=" + r.EventID
		}
		if r.FallbackReason != "" {
			line += " fallback=" + r.FallbackReason
		}
		if r.Error != "" {
			line += " " + errStyle.Render("err="+truncate(r.Error, 80))
		}
		fmt.Println(line)
	}
	if len(statusCount) > 0 {
		statuses := make([]string, 0, len(statusCount))
		for s := range statusCount {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		fmt.Print(dimStyle.Render("  by status:"))
		for _, s := range statuses {
			fmt.Printf(" %s=%d", s, statusCount[s])
		}
		fmt.Println()
	}

	// --- Recent drafts ---
	ds, err := st.RecentDrafts(*drafts)
	if err != nil {
		fatal(err)
	}
	fmt.Println()
	fmt.Println(headerStyle.Render("Recent drafts"))
	for _, d := range ds {
		fmt.Printf("  %s %s %s\n",
			d.CreatedAt.Local().Format("01-02 15:04"),
			styleSentiment(string(d.Sentiment)),
			truncate(d.Narrative, 100))
		if d.FallbackReason != "" {
			fmt.Printf("    %s\n", dimStyle.Render("fallback: "+d.FallbackReason))
		}
	}

	// --- Breaker ---
	state, ok, err := st.LoadBreakerState()
	if err != nil {
		fatal(err)
	}
	fmt.Println()
	fmt.Println(headerStyle.Render("Circuit breaker"))
	switch {
	case !ok:
		fmt.Println("  no state recorded")
	case state.FallbackActive && time.Now().Before(state.FallbackUntil):
		fmt.Printf("  %s until %s (failures=%d)\n", errStyle.Render("OPEN"),
			state.FallbackUntil.Local().Format("15:04:05"), state.ConsecutiveFailures)
	default:
		fmt.Printf("  closed (failures=%d)\n", state.ConsecutiveFailures)
	}
}
