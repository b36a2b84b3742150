// Package otel provides structured audit events for the synthesis pipeline.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the end-of-cycle
// summary.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an audit event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Cycle events
	KindCycleStart    EventKind = "cycle.start"
	KindCycleComplete EventKind = "cycle.complete"
	KindCycleSkip     EventKind = "cycle.skip"

	// Ingestion events
	KindFetchComplete EventKind = "fetch.complete"
	KindFetchError    EventKind = "fetch.error"

	// Resolver events
	KindResolveStart    EventKind = "resolve.start"
	KindResolveComplete EventKind = "resolve.complete"
	KindResolveEmpty    EventKind = "resolve.empty"
	KindResolveError    EventKind = "resolve.error"
	KindEventRejected   EventKind = "resolve.rejected"

	// Fact validation events
	KindFactsComplete EventKind = "facts.complete"
	KindFactsError    EventKind = "facts.error"

	// Invoker events
	KindInvokeAttempt  EventKind = "invoke.attempt"
	KindInvokeRetry    EventKind = "invoke.retry"
	KindInvokeSuccess  EventKind = "invoke.success"
	KindInvokeFailure  EventKind = "invoke.failure"
	KindInvokeFallback EventKind = "invoke.fallback"

	// Circuit breaker events
	KindBreakerOpen  EventKind = "breaker.open"
	KindBreakerReset EventKind = "breaker.reset"

	// Critic and generation events
	KindCriticPass     EventKind = "critic.pass"
	KindCriticRewrite  EventKind = "critic.rewrite"
	KindCriticSkip     EventKind = "critic.skip"
	KindGenerateDraft  EventKind = "generate.draft"
	KindGenerateFallbk EventKind = "generate.fallback"
	KindPublish        EventKind = "generate.publish"

	// Store events
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
)

// Event is the universal audit record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "coord", "brain", "pipeline", "fetch"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire process
	RunID     string         `json:"run_id,omitempty"`     // cycle correlation ID
	EventID   string         `json:"event_id,omitempty"`   // verified event the record refers to
	Dur       time.Duration  `json:"-"`                    // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Model     string         `json:"model,omitempty"`
	Source    string         `json:"source,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
