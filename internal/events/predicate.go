package events

import (
	"fmt"
	"sort"
	"time"
)

// Window is the longest gap between two reports of one occurrence.
const Window = 24 * time.Hour

// Kind classifies what an article is relative to the occurrence it covers.
type Kind string

const (
	KindReport   Kind = "report"
	KindAnalysis Kind = "analysis"
	KindOpinion  Kind = "opinion"
	KindReaction Kind = "reaction"
)

// Occurrence is the structured description of what one article reports.
type Occurrence struct {
	Organizations []string  `json:"organizations"`
	Action        string    `json:"action"`
	Object        string    `json:"object"`
	Kind          Kind      `json:"kind"`
	At            time.Time `json:"-"`
}

// Direct reports whether the article is a report of the occurrence itself
// rather than analysis, opinion or a reaction to it. Unlabeled counts as
// direct.
func (o Occurrence) Direct() bool {
	switch Kind(normalizeText(string(o.Kind))) {
	case KindAnalysis, KindOpinion, KindReaction:
		return false
	default:
		return true
	}
}

// SameEvent reports whether a and b describe the same real-world
// occurrence: at least one shared organization, the same action on the same
// object, both direct reports, and no more than Window apart. A zero At
// skips the time check for that pair.
func SameEvent(a, b Occurrence) bool {
	if !a.Direct() || !b.Direct() {
		return false
	}
	if !sharesOrganization(a.Organizations, b.Organizations) {
		return false
	}
	if normalizeText(a.Action) == "" || normalizeText(a.Action) != normalizeText(b.Action) {
		return false
	}
	if normalizeText(a.Object) != normalizeText(b.Object) {
		return false
	}
	return withinWindow(a.At, b.At)
}

func sharesOrganization(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, org := range a {
		if n := NormalizeOrganization(org); n != "" {
			set[n] = true
		}
	}
	for _, org := range b {
		if set[NormalizeOrganization(org)] {
			return true
		}
	}
	return false
}

func withinWindow(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= Window
}

// SplitGroup partitions one candidate group so that every sub-group is a
// single occurrence. Members are ordered by time; a member that is not the
// same event as the first member of the current sub-group starts a new one.
// Without a complete structured occurrence only the time window is checked. Members
// with unknown time join the first sub-group. The first sub-group keeps
// the original event id; later ones get a numeric suffix.
func SplitGroup(ev CandidateGroup, published map[string]time.Time) []CandidateGroup {
	if len(ev.ArticleIDs) < 2 {
		return []CandidateGroup{ev}
	}

	same := func(head, t time.Time) bool { return withinWindow(head, t) }
	if o := ev.Occurrence; o != nil && o.Direct() && o.Action != "" && len(o.Organizations) > 0 {
		base := *o
		same = func(head, t time.Time) bool {
			a, b := base, base
			a.At, b.At = head, t
			return SameEvent(a, b)
		}
	}

	var dated, undated []string
	for _, id := range ev.ArticleIDs {
		if published[id].IsZero() {
			undated = append(undated, id)
		} else {
			dated = append(dated, id)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return published[dated[i]].Before(published[dated[j]])
	})

	var groups [][]string
	var head time.Time
	for _, id := range dated {
		t := published[id]
		if len(groups) == 0 || !same(head, t) {
			groups = append(groups, nil)
			head = t
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], id)
	}
	if len(groups) == 0 {
		groups = append(groups, nil)
	}
	groups[0] = append(groups[0], undated...)
	if len(groups) == 1 {
		return []CandidateGroup{ev}
	}

	out := make([]CandidateGroup, len(groups))
	for i, ids := range groups {
		id := ev.EventID
		if i > 0 {
			id = fmt.Sprintf("%s-%d", ev.EventID, i+1)
		}
		out[i] = CandidateGroup{EventID: id, Title: ev.Title, ArticleIDs: ids, Occurrence: ev.Occurrence}
	}
	return out
}
