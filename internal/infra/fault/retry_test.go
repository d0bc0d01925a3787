package fault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
)

func newTestPolicy(t *testing.T, cfg RetryConfig) *RetryPolicy {
	t.Helper()
	logger := zerolog.Nop()
	p, err := NewRetryPolicy(cfg, &logger)
	if err != nil {
		t.Fatalf("NewRetryPolicy: %v", err)
	}
	return p
}

func TestNewRetryPolicy_Validation(t *testing.T) {
	t.Parallel()
	logger := zerolog.Nop()

	bad := []RetryConfig{
		{MaxRetries: -1, BaseDelay: time.Millisecond, MaxDelay: time.Second},
		{MaxRetries: 1, BaseDelay: 0, MaxDelay: time.Second},
		{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: time.Millisecond},
		{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Second,
			Retryable: []domain.ErrorKind{domain.ErrorKind("BOGUS")}},
	}
	for i, cfg := range bad {
		if _, err := NewRetryPolicy(cfg, &logger); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestCalculateDelay_ExponentialAndCap(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries:  5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
		Exponential: true,
	})

	if d := p.CalculateDelay(0); d != 100*time.Millisecond {
		t.Fatalf("attempt 0: want 100ms, got %v", d)
	}
	if d := p.CalculateDelay(1); d != 200*time.Millisecond {
		t.Fatalf("attempt 1: want 200ms, got %v", d)
	}
	if d := p.CalculateDelay(2); d != 400*time.Millisecond {
		t.Fatalf("attempt 2: want cap 400ms, got %v", d)
	}
	if d := p.CalculateDelay(10); d != 400*time.Millisecond {
		t.Fatalf("large attempt must stay at cap, got %v", d)
	}
	// negative attempts are treated as zero
	if d := p.CalculateDelay(-3); d != 100*time.Millisecond {
		t.Fatalf("negative attempt: want 100ms, got %v", d)
	}
}

func TestCalculateDelay_JitterWindow(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Exponential: true,
		Jitter:      true,
	})

	base := 200 * time.Millisecond // attempt 1
	for i := 0; i < 50; i++ {
		d := p.CalculateDelay(1)
		if d < base || d > base+base/10 {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, base, base+base/10)
		}
	}
}

func TestShouldRetry_KindAndBudget(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Second,
		Retryable:  []domain.ErrorKind{domain.ErrKindTimeout, domain.ErrKindRateLimited},
	})

	timeoutErr := domain.NewClassifiedError(domain.ErrKindTimeout, errors.New("slow"))
	keyErr := domain.NewClassifiedError(domain.ErrKindInvalidAPIKey, errors.New("denied"))

	if !p.ShouldRetry(timeoutErr, 0) || !p.ShouldRetry(timeoutErr, 2) {
		t.Fatalf("TIMEOUT should be retryable within the budget")
	}
	if p.ShouldRetry(timeoutErr, 3) {
		t.Fatalf("attempt == MaxRetries must stop retrying")
	}
	if p.ShouldRetry(keyErr, 0) {
		t.Fatalf("INVALID_API_KEY is not on the allow-list")
	}
	// unclassified errors degrade to UNKNOWN, also off-list here
	if p.ShouldRetry(errors.New("mystery"), 0) {
		t.Fatalf("UNKNOWN should not retry with this allow-list")
	}
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Retryable:  []domain.ErrorKind{domain.ErrKindTimeout},
	})

	calls := 0
	err := p.Execute(context.Background(), "job-1", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.NewClassifiedError(domain.ErrKindTimeout, errors.New("slow"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}

	rc := p.Context("job-1")
	if rc == nil || len(rc.Attempts) != 3 {
		t.Fatalf("attempt log should have 3 entries, got %+v", rc)
	}
}

func TestExecute_ExhaustionReturnsLastError(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Retryable:  []domain.ErrorKind{domain.ErrKindRateLimited},
	})

	calls := 0
	err := p.Execute(context.Background(), "job-2", func(ctx context.Context) error {
		calls++
		return domain.NewClassifiedError(domain.ErrKindRateLimited, errors.New("429"))
	})
	if err == nil || domain.KindOf(err) != domain.ErrKindRateLimited {
		t.Fatalf("want final RATE_LIMITED error, got %v", err)
	}
	if calls != 3 { // initial + 2 retries
		t.Fatalf("want 3 calls, got %d", calls)
	}
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Retryable:  []domain.ErrorKind{domain.ErrKindTimeout},
	})

	calls := 0
	err := p.Execute(context.Background(), "job-3", func(ctx context.Context) error {
		calls++
		return domain.NewClassifiedError(domain.ErrKindInvalidAPIKey, errors.New("denied"))
	})
	if err == nil || calls != 1 {
		t.Fatalf("non-retryable kind must fail on the first call: calls=%d err=%v", calls, err)
	}
}

func TestExecute_ContextCancelStopsBackoff(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 10,
		BaseDelay:  time.Hour, // would block forever without cancellation
		MaxDelay:   2 * time.Hour,
		Retryable:  []domain.ErrorKind{domain.ErrKindTimeout},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		done <- p.Execute(ctx, "job-4", func(ctx context.Context) error {
			return domain.NewClassifiedError(domain.ErrKindTimeout, errors.New("slow"))
		})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected the pending failure back")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Execute did not abort the backoff on cancel")
	}
}

func TestForget_EvictsContext(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Retryable:  []domain.ErrorKind{domain.ErrKindTimeout},
	})

	if err := p.Execute(context.Background(), "job-1/item-1", func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p.Context("job-1/item-1") == nil {
		t.Fatalf("attempt log must exist before eviction")
	}

	p.Forget("job-1/item-1")
	if p.Context("job-1/item-1") != nil {
		t.Fatalf("Forget must drop the attempt log")
	}
	p.Forget("job-1/item-1") // unknown id is a no-op
}

func TestExecuteAsync(t *testing.T) {
	t.Parallel()
	p := newTestPolicy(t, RetryConfig{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	})

	ch := p.ExecuteAsync(context.Background(), "job-5", func(ctx context.Context) error {
		return nil
	})
	select {
	case err := <-ch:
		if err != nil {
			t.Fatalf("ExecuteAsync: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no result on channel")
	}
}
