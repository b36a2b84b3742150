package coord

import (
	"strings"
	"unicode"

	"github.com/abelbrown/sentix/internal/events"
	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/model"
)

// maxHistoryTerms caps the search terms derived from one event.
const maxHistoryTerms = 6

// history renders related knowledge-base entries for ev, newest first.
func (c *Coordinator) history(ev *model.VerifiedEvent) string {
	entries, err := c.store.SearchKnowledge(historyTerms(ev), historyLimit)
	if err != nil {
		logging.Warn("Knowledge search failed", "event", ev.EventID, "error", err)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, k := range entries {
		sb.WriteString("- [")
		sb.WriteString(string(k.Sentiment))
		sb.WriteString("] ")
		sb.WriteString(k.Topic)
		sb.WriteString(": ")
		sb.WriteString(k.Entry)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// historyTerms picks cash-tagged tickers and capitalized title words.
func historyTerms(ev *model.VerifiedEvent) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		key := strings.ToLower(t)
		if len(terms) >= maxHistoryTerms || seen[key] {
			return
		}
		seen[key] = true
		terms = append(terms, t)
	}

	for _, t := range events.ExtractTickers(ev.Title + " " + ev.FactsText()) {
		add(t)
	}
	for _, w := range strings.Fields(ev.Title) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len([]rune(w)) < 3 {
			continue
		}
		if r := []rune(w)[0]; unicode.IsUpper(r) {
			add(w)
		}
	}
	return terms
}
