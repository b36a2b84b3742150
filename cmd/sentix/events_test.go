package main

import (
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/sentix/internal/otel"
)

func TestSelectEvents(t *testing.T) {
	evs := []otel.Event{
		{Level: otel.LevelInfo, Kind: otel.KindCycleStart, Comp: "coord"},
		{Level: otel.LevelWarn, Kind: otel.KindInvokeRetry, Comp: "brain"},
		{Level: otel.LevelError, Kind: otel.KindInvokeFailure, Comp: "brain"},
		{Level: otel.LevelDebug, Kind: otel.KindInvokeAttempt, Comp: "brain"},
	}

	got := selectEvents(append([]otel.Event(nil), evs...), otel.LevelWarn, "", 0)
	if len(got) != 2 {
		t.Errorf("Expected 2 events at warn+, got %d", len(got))
	}

	got = selectEvents(append([]otel.Event(nil), evs...), "", "brain", 2)
	if len(got) != 2 || got[1].Kind != otel.KindInvokeAttempt {
		t.Errorf("Expected last 2 brain events, got %+v", got)
	}
}

func TestFormatEvent(t *testing.T) {
	e := otel.Event{
		Time:    time.Now(),
		Level:   otel.LevelWarn,
		Kind:    otel.KindBreakerOpen,
		Comp:    "brain",
		RunID:   "0123456789abcdef",
		Model:   "gemini-2.5-flash",
		Attempt: 4,
		Err:     "429 RESOURCE_EXHAUSTED",
	}
	line := formatEvent(e)
	for _, want := range []string{"breaker.open", "run=01234567", "model=gemini-2.5-flash", "attempt=4", "429 RESOURCE_EXHAUSTED"} {
		if !strings.Contains(line, want) {
			t.Errorf("Expected %q in %q", want, line)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello world", 8); got != "hello..." {
		t.Errorf("got %q, want %q", got, "hello...")
	}
	if got := truncate("hi", 8); got != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
}
