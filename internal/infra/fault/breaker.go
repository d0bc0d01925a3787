package fault

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/infra/metrics"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker gates dispatch to one AI model. N consecutive failures trip
// it open; after the cooldown it admits exactly one probe (half-open) whose
// outcome either closes it again or restarts the cooldown.
//
// State is scoped per model, independent of brand or question, and mutated
// only under the breaker's own lock.
type CircuitBreaker struct {
	model     string
	threshold int
	cooldown  time.Duration
	log       *zerolog.Logger

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	probeAdmitted bool
	probeAt       time.Time
}

func NewCircuitBreaker(model string, threshold int, cooldown time.Duration, logger *zerolog.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	l := logger.With().Str("component", "CircuitBreaker").Str("model", model).Logger()
	return &CircuitBreaker{
		model:     model,
		threshold: threshold,
		cooldown:  cooldown,
		log:       &l,
		state:     BreakerClosed,
	}
}

// Available reports whether a call may be dispatched right now. Open
// rejections are instant; once the cooldown elapses the breaker moves to
// half-open and admits a single probe until RecordSuccess/RecordFailure
// settle its fate. A probe that was admitted but never settled (the caller
// bailed before dispatching) stops blocking after another cooldown, so an
// abandoned probe cannot wedge the model forever.
func (b *CircuitBreaker) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.setState(BreakerHalfOpen)
		b.admitProbe()
		b.log.Info().Msg("cooldown elapsed, admitting probe")
		return true
	case BreakerHalfOpen:
		if b.probeAdmitted {
			if time.Since(b.probeAt) < b.cooldown {
				return false
			}
			b.log.Warn().Msg("probe never settled, admitting another")
		}
		b.admitProbe()
		return true
	}
	return false
}

func (b *CircuitBreaker) admitProbe() {
	b.probeAdmitted = true
	b.probeAt = time.Now()
}

// RecordSuccess resets the breaker to closed and clears the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerClosed {
		b.log.Info().Str("from", string(b.state)).Msg("closing circuit")
	}
	b.setState(BreakerClosed)
	b.failures = 0
	b.probeAdmitted = false
}

// RecordFailure counts a consecutive failure; at the threshold (or on a
// failed half-open probe) the circuit opens and the cooldown restarts.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case BreakerHalfOpen:
		b.trip("probe failed")
	case BreakerClosed:
		if b.failures >= b.threshold {
			b.trip("failure threshold reached")
		}
	}
}

// State returns the current state for reporting.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *CircuitBreaker) trip(reason string) {
	b.setState(BreakerOpen)
	b.openedAt = time.Now()
	b.probeAdmitted = false
	b.log.Warn().Int("failures", b.failures).Str("reason", reason).Msg("circuit opened")
}

func (b *CircuitBreaker) setState(s BreakerState) {
	b.state = s
	metrics.SetBreakerState(b.model, string(s))
}

// BreakerRegistry owns the per-model breakers for one service instance.
// It is passed by handle instead of living in package state so concurrent
// services and tests stay isolated.
type BreakerRegistry struct {
	threshold int
	cooldown  time.Duration
	log       *zerolog.Logger

	mu      sync.Mutex
	byModel map[string]*CircuitBreaker
}

func NewBreakerRegistry(threshold int, cooldown time.Duration, logger *zerolog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		threshold: threshold,
		cooldown:  cooldown,
		log:       logger,
		byModel:   make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker guarding model, creating it on first use.
func (r *BreakerRegistry) For(model string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byModel[model]
	if !ok {
		b = NewCircuitBreaker(model, r.threshold, r.cooldown, r.log)
		r.byModel[model] = b
	}
	return b
}

// States snapshots all breakers for status endpoints.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]BreakerState, len(r.byModel))
	for m, b := range r.byModel {
		out[m] = b.State()
	}
	return out
}
