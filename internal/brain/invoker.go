package brain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/abelbrown/sentix/internal/logging"
	"github.com/abelbrown/sentix/internal/otel"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts    = 5
	DefaultBaseDelay      = 5 * time.Second
	DefaultAttemptTimeout = 120 * time.Second
)

// Call is one logical request to the backend. Model and Fallback override
// the invoker defaults when set.
type Call struct {
	Prompt    string
	System    string
	Model     string
	Fallback  string
	JSON      bool
	MaxTokens int
}

// InvokerConfig tunes retry and throughput behavior.
type InvokerConfig struct {
	PrimaryModel      string
	FallbackModel     string
	MaxAttempts       int
	BaseDelay         time.Duration
	RequestsPerMinute float64       // 0 disables the limiter
	AttemptTimeout    time.Duration // 0 disables the per-attempt deadline
	Budget            time.Duration // overall deadline for one Invoke, 0 = none
}

// Invoker wraps a Provider with rate limiting, exponential backoff and a
// shared circuit breaker that moves traffic to the fallback model.
type Invoker struct {
	provider Provider
	breaker  *CircuitBreaker
	limiter  *rate.Limiter
	cfg      InvokerConfig
	events   *otel.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewInvoker creates an invoker. breaker may be shared between invokers;
// nil gets a private breaker with default settings.
func NewInvoker(p Provider, breaker *CircuitBreaker, cfg InvokerConfig) *Invoker {
	if breaker == nil {
		breaker = NewCircuitBreaker(0, 0)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}
	return &Invoker{
		provider: p,
		breaker:  breaker,
		limiter:  limiter,
		cfg:      cfg,
		sleep:    sleepCtx,
		jitter: func() time.Duration {
			return time.Duration(rand.Float64() * float64(time.Second))
		},
	}
}

// SetEventLogger attaches the audit log.
func (inv *Invoker) SetEventLogger(l *otel.Logger) {
	inv.events = l
}

// Breaker returns the circuit breaker this invoker reports to.
func (inv *Invoker) Breaker() *CircuitBreaker {
	return inv.breaker
}

// Available reports whether a configured provider is attached.
func (inv *Invoker) Available() bool {
	return inv != nil && inv.provider != nil && inv.provider.Available()
}

// Invoke sends call to the backend and returns the response text. A call
// that finds the breaker open, or opens it, stays on the fallback model for
// its remaining attempts. Backoff waits at least as long as a Retry-After
// hint from the server.
//
// Errors always wrap ErrUnavailable. Exhausted retries additionally wrap
// ErrRateLimited; hard failures wrap ErrUnretryable.
func (inv *Invoker) Invoke(ctx context.Context, call Call) (string, error) {
	if !inv.Available() {
		return "", fmt.Errorf("%w: no configured provider", ErrUnavailable)
	}

	primary := call.Model
	if primary == "" {
		primary = inv.cfg.PrimaryModel
	}
	fallback := call.Fallback
	if fallback == "" {
		fallback = inv.cfg.FallbackModel
	}
	if fallback == primary {
		fallback = ""
	}

	if inv.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.Budget)
		defer cancel()
	}

	last := inv.cfg.MaxAttempts - 1
	var lastErr error
	// forced sticks for the rest of the call once the breaker is seen open,
	// so a cooldown that expires mid-call does not switch back to primary.
	forced := false
	for attempt := 0; attempt <= last; attempt++ {
		if !forced {
			var reset bool
			forced, reset = inv.breaker.Acquire()
			if reset {
				logging.Info("Circuit breaker cooldown elapsed, retrying primary model", "model", primary)
				inv.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindBreakerReset, Model: primary})
			}
		}

		model := primary
		switch {
		case forced && fallback != "":
			model = fallback
		case attempt == last && attempt > 0 && fallback != "":
			model = fallback
			logging.Warn("Final attempt, switching to fallback model", "model", fallback)
			inv.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindInvokeFallback, Model: fallback, Attempt: attempt + 1})
		}
		onPrimary := !forced && model == primary

		if err := inv.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: waiting for rate limiter: %w", ErrUnavailable, err)
		}

		inv.emit(ctx, otel.Event{Level: otel.LevelDebug, Kind: otel.KindInvokeAttempt, Model: model, Attempt: attempt + 1})
		start := time.Now()
		text, err := inv.attempt(ctx, call, model)
		if err == nil {
			if onPrimary {
				inv.breaker.RecordSuccess()
			}
			inv.emit(ctx, otel.Event{Level: otel.LevelInfo, Kind: otel.KindInvokeSuccess, Model: model, Attempt: attempt + 1, Dur: time.Since(start)})
			return text, nil
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		if !retryable(ctx, err) {
			logging.Error("Backend call failed", "model", model, "error", err)
			inv.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindInvokeFailure, Model: model, Attempt: attempt + 1, Err: err.Error()})
			return "", fmt.Errorf("%w: %w: %w", ErrUnavailable, ErrUnretryable, err)
		}

		lastErr = err
		if onPrimary && inv.breaker.RecordFailure() {
			st := inv.breaker.State()
			logging.Warn("Circuit breaker open, routing to fallback model",
				"failures", st.ConsecutiveFailures, "until", st.FallbackUntil.Format(time.RFC3339), "fallback", fallback)
			inv.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindBreakerOpen, Model: fallback, Count: st.ConsecutiveFailures})
		}

		if attempt < last {
			delay := inv.cfg.BaseDelay<<attempt + inv.jitter()
			if ra := retryAfter(err); ra > delay {
				delay = ra
			}
			logging.Warn("Backend rate limited, retrying",
				"attempt", attempt+1, "max", inv.cfg.MaxAttempts, "model", model, "delay", delay.Round(time.Millisecond))
			inv.emit(ctx, otel.Event{Level: otel.LevelWarn, Kind: otel.KindInvokeRetry, Model: model, Attempt: attempt + 1, Dur: delay, Err: err.Error()})
			if err := inv.sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
		}
	}

	if !errors.Is(lastErr, ErrRateLimited) {
		lastErr = fmt.Errorf("%w: %w", ErrRateLimited, lastErr)
	}
	logging.Error("Backend retries exhausted", "attempts", inv.cfg.MaxAttempts, "error", lastErr)
	inv.emit(ctx, otel.Event{Level: otel.LevelError, Kind: otel.KindInvokeFailure, Attempt: inv.cfg.MaxAttempts, Err: lastErr.Error()})
	return "", fmt.Errorf("%w: retries exhausted: %w", ErrUnavailable, lastErr)
}

func (inv *Invoker) attempt(ctx context.Context, call Call, model string) (string, error) {
	if inv.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.AttemptTimeout)
		defer cancel()
	}

	resp, err := inv.provider.Generate(ctx, Request{
		SystemPrompt: call.System,
		UserPrompt:   call.Prompt,
		MaxTokens:    call.MaxTokens,
		Model:        model,
		JSON:         call.JSON,
	})
	if err != nil {
		return "", err
	}
	if otel.TraceEnabled() {
		logging.Debug("Backend response", "model", model, "prompt_len", len(call.Prompt), "response_len", len(resp.Content))
	}
	return resp.Content, nil
}

func (inv *Invoker) emit(ctx context.Context, e otel.Event) {
	if inv.events == nil {
		return
	}
	e.Comp = "brain"
	e.RunID = otel.RunID(ctx)
	inv.events.Emit(e)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
