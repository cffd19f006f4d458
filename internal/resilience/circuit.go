package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	// Closed passes requests through while counting outcomes.
	Closed State = iota
	// Open rejects everything until the cool-off elapses.
	Open
	// HalfOpen lets one probe decide between Closed and Open.
	HalfOpen
)

var stateNames = map[State]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Breaker trips when the failure ratio over a minimum sample size crosses the
// threshold. Counters are halved periodically so old history decays.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	target       string
	logger       *zerolog.Logger
}

// NewBreaker builds a closed breaker with the given thresholds. Out-of-range
// arguments are clamped to safe defaults.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	failureRatio = math.Min(math.Max(failureRatio, 0), 1)
	if failureRatio == 0 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{minRequests: minRequests, failureRatio: failureRatio, openFor: openFor}
}

// WithTarget labels the breaker for metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishStateLocked()
	return b
}

// WithLogger sets the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// Allow reports whether the caller may proceed. An open breaker whose
// cool-off expired moves to half-open and admits the probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if time.Since(b.openedAt) < b.openFor {
		return false
	}
	b.transitionLocked(ctx, HalfOpen)
	return true
}

// Report feeds a request outcome into the state machine.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
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
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	if total > b.minRequests*2 {
		// decay so a long run of successes cannot mask a failure burst forever
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		b.publishStateLocked()
		return
	}
	b.state = next
	b.failures = 0
	b.successes = 0
	switch next {
	case Open:
		b.openedAt = time.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishStateLocked()

	label := b.label()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}
	evt := b.transitionLogger(ctx).Info().
		Str("target", label).
		Str("from_state", prev.String()).
		Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishStateLocked() {
	if BreakerState == nil {
		return
	}
	var gauge float64
	switch b.state {
	case Closed:
		gauge = 0
	case Open:
		gauge = 1
	case HalfOpen:
		gauge = 2
	}
	BreakerState.WithLabelValues(b.label()).Set(gauge)
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

var nopBreakerLogger = zerolog.Nop()

func (b *Breaker) transitionLogger(ctx context.Context) *zerolog.Logger {
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
		logger := ctxLogger.With().Logger()
		return &logger
	}
	if b.logger != nil {
		return b.logger
	}
	return &nopBreakerLogger
}

// Backoff computes exponential backoff for attempt (1-based) with optional
// symmetric jitter expressed as a fraction of the delay.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return delay
	}
	delta := (rand.Float64()*2 - 1) * float64(delay) * jitterPct
	return delay + time.Duration(delta)
}
