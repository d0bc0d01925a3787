package fault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
	"ai-brand-diagnosis/internal/infra/metrics"
)

// CallOutcome is the uniform result of one guarded AI call. It is a tagged
// success/failure (never both Data and ErrorKind set) sharing an
// ExecutionTime, so callers decide retry vs dead-letter vs partial-success
// from one shape.
type CallOutcome struct {
	Status        string                 `json:"status"` // "success" | "failed"
	Data          *adapter.PromptResponse `json:"data,omitempty"`
	ErrorKind     domain.ErrorKind       `json:"error_type,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Source        string                 `json:"source"`
}

func (o CallOutcome) Succeeded() bool { return o.Status == "success" }

// CallTask is one unit handed to the executor.
type CallTask struct {
	Name    string
	Source  string
	Timeout time.Duration
	Run     func(ctx context.Context) (*adapter.PromptResponse, error)
}

// Executor wraps external AI calls with a hard per-call deadline,
// classification into the closed ErrorKind taxonomy, and panic recovery.
// It never returns an error; failures come back inside the CallOutcome.
type Executor struct {
	defaultTimeout time.Duration
	log            *zerolog.Logger
}

func NewExecutor(defaultTimeout time.Duration, logger *zerolog.Logger) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "FaultTolerantExecutor").Logger()
	return &Executor{defaultTimeout: defaultTimeout, log: &l}
}

// ExecuteWithFallback runs one task under its deadline. The deadline here is
// independent of any retry policy above it; it bounds a single attempt.
func (e *Executor) ExecuteWithFallback(ctx context.Context, task CallTask) CallOutcome {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.runSafely(callCtx, task)
	elapsed := time.Since(start)

	if err != nil {
		kind := domain.KindOf(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = domain.ErrKindTimeout
		}
		metrics.ObserveAICall(task.Source, string(kind), elapsed, false)
		e.log.Warn().Str("task", task.Name).Str("source", task.Source).
			Str("kind", string(kind)).Dur("elapsed", elapsed).Err(err).
			Msg("call failed")
		return CallOutcome{
			Status:        "failed",
			ErrorKind:     kind,
			ErrorMessage:  err.Error(),
			ExecutionTime: elapsed,
			Source:        task.Source,
		}
	}

	metrics.ObserveAICall(task.Source, "", elapsed, true)
	return CallOutcome{
		Status:        "success",
		Data:          resp,
		ExecutionTime: elapsed,
		Source:        task.Source,
	}
}

// runSafely converts panics inside the call into UNKNOWN failures.
func (e *Executor) runSafely(ctx context.Context, task CallTask) (resp *adapter.PromptResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = domain.NewClassifiedError(domain.ErrKindUnknown, fmt.Errorf("panic in %s: %v", task.Name, r))
		}
	}()
	return task.Run(ctx)
}

// BatchReport carries per-task outcomes and the aggregate line a caller
// needs to summarize the batch.
type BatchReport struct {
	Outcomes    []CallOutcome
	SuccessRate float64
	AvgTime     time.Duration
}

// ExecuteBatch runs tasks under a bounded concurrency cap and waits for all
// of them. Order of Outcomes matches tasks.
func (e *Executor) ExecuteBatch(ctx context.Context, tasks []CallTask, maxConcurrent int64) BatchReport {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	outcomes := make([]CallOutcome, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = CallOutcome{
				Status:       "failed",
				ErrorKind:    domain.ErrKindTimeout,
				ErrorMessage: err.Error(),
				Source:       task.Source,
			}
			continue
		}
		wg.Add(1)
		go func(i int, task CallTask) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = e.ExecuteWithFallback(ctx, task)
		}(i, task)
	}
	wg.Wait()

	var ok int
	var total time.Duration
	for _, o := range outcomes {
		if o.Succeeded() {
			ok++
		}
		total += o.ExecutionTime
	}
	report := BatchReport{Outcomes: outcomes}
	if len(outcomes) > 0 {
		report.SuccessRate = float64(ok) / float64(len(outcomes))
		report.AvgTime = total / time.Duration(len(outcomes))
	}
	return report
}
