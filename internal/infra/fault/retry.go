package fault

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
)

// RetryConfig governs backoff behavior and which failure kinds are worth
// retrying at all.
type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Jitter      bool
	Retryable   []domain.ErrorKind
}

// RetryAttempt is one line of a RetryContext.
type RetryAttempt struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Error   string        `json:"error"`
	At      time.Time     `json:"at"`
}

// RetryContext is the ordered attempt log for one execution. It exists for
// observability only; nothing reads it to make control-flow decisions.
type RetryContext struct {
	ID       string         `json:"id"`
	Attempts []RetryAttempt `json:"attempts"`
}

// RetryPolicy decides whether and when a failed call is tried again.
// A single policy is shared by many WorkItems; the backoff sleep suspends
// only the calling goroutine.
type RetryPolicy struct {
	cfg       RetryConfig
	retryable map[domain.ErrorKind]struct{}
	log       *zerolog.Logger

	mu       sync.Mutex
	contexts map[string]*RetryContext
}

func NewRetryPolicy(cfg RetryConfig, logger *zerolog.Logger) (*RetryPolicy, error) {
	if cfg.MaxRetries < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		return nil, domain.ErrInvalidArgument
	}
	allowed := make(map[domain.ErrorKind]struct{}, len(cfg.Retryable))
	for _, k := range cfg.Retryable {
		switch k {
		case domain.ErrKindTimeout, domain.ErrKindQuotaExhausted,
			domain.ErrKindInvalidAPIKey, domain.ErrKindRateLimited, domain.ErrKindUnknown:
			allowed[k] = struct{}{}
		default:
			return nil, domain.ErrInvalidArgument
		}
	}
	l := logger.With().Str("component", "RetryPolicy").Logger()
	return &RetryPolicy{
		cfg:       cfg,
		retryable: allowed,
		log:       &l,
		contexts:  make(map[string]*RetryContext),
	}, nil
}

// CalculateDelay returns base*2^attempt (flat base when not exponential),
// capped at MaxDelay, plus a uniform 0-10% jitter on top when enabled.
// The jittered value is clamped back to MaxDelay.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.cfg.BaseDelay
	if p.cfg.Exponential {
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= p.cfg.MaxDelay {
				d = p.cfg.MaxDelay
				break
			}
		}
	}
	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}
	if p.cfg.Jitter {
		d += time.Duration(rand.Float64() * 0.1 * float64(d))
		if d > p.cfg.MaxDelay {
			d = p.cfg.MaxDelay
		}
	}
	return d
}

// ShouldRetry is false once attempt reaches MaxRetries regardless of kind,
// and false for any kind outside the allow-list.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.cfg.MaxRetries {
		return false
	}
	_, ok := p.retryable[domain.KindOf(err)]
	return ok
}

// Execute runs fn, retrying allowed failures with the computed backoff, and
// returns the final error on exhaustion. The attempt log is recorded under
// id and retrievable via Context(id).
func (p *RetryPolicy) Execute(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	rc := &RetryContext{ID: id}
	p.mu.Lock()
	p.contexts[id] = rc
	p.mu.Unlock()

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			p.record(rc, attempt, 0, nil)
			return nil
		}

		if !p.ShouldRetry(err, attempt) {
			p.record(rc, attempt, 0, err)
			return err
		}

		delay := p.CalculateDelay(attempt)
		p.record(rc, attempt, delay, err)
		p.log.Debug().Str("id", id).Int("attempt", attempt).
			Dur("delay", delay).Str("kind", string(domain.KindOf(err))).
			Msg("retrying after failure")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
}

// ExecuteAsync is the non-blocking variant of Execute with identical
// semantics; the returned channel yields the final error (or nil) once.
func (p *RetryPolicy) ExecuteAsync(ctx context.Context, id string, fn func(ctx context.Context) error) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- p.Execute(ctx, id, fn)
		close(out)
	}()
	return out
}

// Context returns the attempt log recorded for id, or nil.
func (p *RetryPolicy) Context(id string) *RetryContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contexts[id]
}

// Forget drops the attempt log for id. Callers evict once the outcome is
// durably recorded so the table does not grow with every execution ever run.
func (p *RetryPolicy) Forget(id string) {
	p.mu.Lock()
	delete(p.contexts, id)
	p.mu.Unlock()
}

func (p *RetryPolicy) record(rc *RetryContext, attempt int, delay time.Duration, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.mu.Lock()
	rc.Attempts = append(rc.Attempts, RetryAttempt{
		Attempt: attempt,
		Delay:   delay,
		Error:   msg,
		At:      time.Now(),
	})
	p.mu.Unlock()
}

// MaxRetries exposes the configured ceiling for callers that report it.
func (p *RetryPolicy) MaxRetries() int { return p.cfg.MaxRetries }
