package otel

import "sync"

// DefaultRingSize holds many cycles of a daemon run; one cycle emits a few
// dozen events.
const DefaultRingSize = 1024

// RingBuffer keeps the most recent events in memory so a finished run can
// be summarized without reading the JSONL file back.
type RingBuffer struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewRingBuffer creates a buffer holding up to size events. Non-positive
// sizes select DefaultRingSize.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{events: make([]Event, size)}
}

// Push stores e, evicting the oldest event when full. Extra is copied so
// later writes by the emitter are not visible here.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = e
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.full = true
	}
}

// ordered returns the buffered events oldest first. Callers hold mu.
func (r *RingBuffer) ordered() []Event {
	if !r.full {
		return r.events[:r.next]
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[EventKind]int)
	for _, e := range r.ordered() {
		counts[e.Kind]++
	}
	return counts
}

// Problems returns up to n of the most recent warn and error events,
// oldest first.
func (r *RingBuffer) Problems(n int) []Event {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	all := r.ordered()
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if all[i].Level == LevelWarn || all[i].Level == LevelError {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
