package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerOptions configures a Breaker.
type BreakerOptions struct {
	// Target labels metrics and logs, e.g. "upstream_products".
	Target string
	// MinRequests is the number of outcomes observed before the ratio is evaluated.
	MinRequests int
	// FailureRatio opens the breaker when failures/total reaches it.
	FailureRatio float64
	// OpenFor is the cool-off before a probe is allowed.
	OpenFor time.Duration
	Logger  *zerolog.Logger
	Now     func() time.Time
}

// Breaker is a failure-ratio circuit breaker.
type Breaker struct {
	mu        sync.Mutex
	opts      BreakerOptions
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// NewBreaker constructs a closed breaker.
func NewBreaker(opts BreakerOptions) *Breaker {
	if opts.MinRequests <= 0 {
		opts.MinRequests = 1
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.5
	}
	if opts.FailureRatio > 1 {
		opts.FailureRatio = 1
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Target = strings.TrimSpace(opts.Target)
	if opts.Target == "" {
		opts.Target = "default"
	}
	b := &Breaker{opts: opts, state: Closed}
	BreakerState.WithLabelValues(opts.Target).Set(0)
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a request may proceed. After the cool-off an open
// breaker moves to half-open and admits one probe until it is reported.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.opts.Now().Sub(b.openedAt) < b.opts.OpenFor {
			return false
		}
		b.transitionLocked(ctx, HalfOpen)
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.transitionLocked(ctx, Closed)
		} else {
			b.transitionLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.opts.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.opts.FailureRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	if total > b.opts.MinRequests*2 {
		// decay so old outcomes weigh less than recent ones
		b.successes = (b.successes + 1) / 2
		b.failures = (b.failures + 1) / 2
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.failures, b.successes = 0, 0
	switch next {
	case Open:
		b.openedAt = b.opts.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	recordTransition(b.opts.Target, prev, next)

	logger := b.loggerFor(ctx)
	evt := logger.Info().Str("target", b.opts.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.opts.Logger != nil {
		return b.opts.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
