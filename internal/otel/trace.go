package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("SENTIX_TRACE") != "")
}

// TraceEnabled reports whether SENTIX_TRACE is set. When true the invoker
// records prompt and response sizes on every attempt.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// setTraceEnabled overrides the flag for tests.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
