package otel

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Filter selects events when reading an audit log back. Zero fields match
// everything.
type Filter struct {
	Kind  string // prefix match, so "breaker" selects breaker.open and breaker.reset
	RunID string
	Since time.Time
	Level Level
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.Kind != "" && !strings.HasPrefix(string(e.Kind), f.Kind) {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return true
}

// ReadEvents decodes a JSONL audit log, skipping lines that do not parse.
// DurMs is mapped back onto Dur.
func ReadEvents(r io.Reader, f Filter) ([]Event, error) {
	var out []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if e.DurMs > 0 {
			e.Dur = time.Duration(e.DurMs * float64(time.Millisecond))
		}
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, scanner.Err()
}
