package model

import (
	"sort"
	"strings"
)

// CandidateEvent is the event resolver's grouping of items. ArticleIDs
// reference RawItem keys of the batch the resolver was given.
type CandidateEvent struct {
	EventID    string   `json:"event_id"`
	Title      string   `json:"title"`
	ArticleIDs []string `json:"articles"`
}

// ValidatedFact is an atomic statement together with the exact set of
// sources that asserted it.
type ValidatedFact struct {
	Statement string   `json:"fact"`
	Sources   []string `json:"sources"`
}

// NewValidatedFact normalizes sources into a sorted set.
func NewValidatedFact(statement string, sources []string) ValidatedFact {
	return ValidatedFact{
		Statement: strings.TrimSpace(statement),
		Sources:   sourceSet(sources),
	}
}

// Admissible reports whether the fact has a statement and at least one
// corroborating source.
func (f ValidatedFact) Admissible() bool {
	return f.Statement != "" && len(f.Sources) >= 1
}

// VerifiedEvent is a candidate event with its items resolved, its sources
// counted and its facts validated.
// SourceCount always equals len(Sources), the distinct sources across Items.
type VerifiedEvent struct {
	EventID     string          `json:"event_id"`
	Title       string          `json:"title"`
	Facts       []ValidatedFact `json:"facts"`
	Confidence  float64         `json:"confidence"`
	Sources     []string        `json:"sources"`
	SourceCount int             `json:"source_count"`
	Items       []RawItem       `json:"items"`
}

// NewVerifiedEvent attaches items and derives the source set from them.
func NewVerifiedEvent(c CandidateEvent, items []RawItem) VerifiedEvent {
	sources := DistinctSources(items)
	return VerifiedEvent{
		EventID:     c.EventID,
		Title:       c.Title,
		Facts:       []ValidatedFact{},
		Sources:     sources,
		SourceCount: len(sources),
		Items:       items,
	}
}

// FactsText renders the facts the way the critic and generation prompts
// consume them: one line per fact with its sources.
func (e VerifiedEvent) FactsText() string {
	if len(e.Facts) == 0 {
		return "(no verified facts)"
	}
	var sb strings.Builder
	for _, f := range e.Facts {
		sb.WriteString("- ")
		sb.WriteString(f.Statement)
		sb.WriteString(" (sources: ")
		sb.WriteString(strings.Join(f.Sources, ", "))
		sb.WriteString(")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sourceSet(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
