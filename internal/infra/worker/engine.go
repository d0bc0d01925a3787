package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/adapter"
	"ai-brand-diagnosis/internal/domain/ports/repository"
	"ai-brand-diagnosis/internal/infra/fault"
	"ai-brand-diagnosis/internal/infra/metrics"
	"ai-brand-diagnosis/internal/usecase"
)

// Dynamic per-question timeout tiers, keyed on estimated prompt tokens.
// The thresholds are product heuristics carried over as-is.
const (
	shortQuestionTokens = 64
	longQuestionTokens  = 192
	mediumTimeoutFactor = 1.5
	longTimeoutFactor   = 2.0
)

// RateLimiter gates dispatch per model within a fixed window; key is the
// model name. A nil limiter disables the gate; limiter errors fail open.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Options tunes the engine; zero values fall back to safe defaults.
type Options struct {
	Workers        int
	CallTimeout    time.Duration
	JobTimeout     time.Duration
	ModelRateLimit int
	RateWindow     time.Duration
}

// Engine is the concurrent execution core of a diagnosis. It explodes the
// JobSpec into WorkItems, fans them over a fixed worker pool, and guards
// every external call with the circuit breaker, retry policy and
// fault-tolerant executor.
//
// Guarantees: the worker count is a hard concurrency ceiling; every
// WorkItem ends in success, dead-letter, or orphaned-by-timeout; one slow
// call never blocks sibling items.
type Engine struct {
	pool     *Pool
	sender   adapter.PromptSender
	breakers *fault.BreakerRegistry
	retry    *fault.RetryPolicy
	exec     *fault.Executor
	timeouts *fault.TimeoutManager
	sm       *usecase.StateMachine
	dlq      usecase.DeadLetterUseCase
	results  repository.DiagnosisResultRepository
	limiter  RateLimiter
	opts     Options
	log      *zerolog.Logger

	enc *tiktoken.Tiktoken // nil when the encoding failed to load

	ctx context.Context // set by Start; parents all job work
}

func NewEngine(
	sender adapter.PromptSender,
	breakers *fault.BreakerRegistry,
	retry *fault.RetryPolicy,
	exec *fault.Executor,
	timeouts *fault.TimeoutManager,
	sm *usecase.StateMachine,
	dlq usecase.DeadLetterUseCase,
	results repository.DiagnosisResultRepository,
	limiter RateLimiter,
	opts Options,
	logger *zerolog.Logger,
) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	l := logger.With().Str("component", "ConcurrentExecutor").Logger()

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		l.Warn().Err(err).Msg("token encoding unavailable, falling back to character estimate")
		enc = nil
	}

	return &Engine{
		pool:     NewPool(opts.Workers, logger),
		sender:   sender,
		breakers: breakers,
		retry:    retry,
		exec:     exec,
		timeouts: timeouts,
		sm:       sm,
		dlq:      dlq,
		results:  results,
		limiter:  limiter,
		opts:     opts,
		log:      &l,
		enc:      enc,
	}
}

// Start brings the worker pool up. Jobs launched before Start will queue
// against an unstarted pool and stall, so wire this first.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
	e.pool.Start(ctx)
}

func (e *Engine) Stop() { e.pool.Stop() }

// Launch runs the spec asynchronously; completion is observable through
// the state machine and the aggregator.
func (e *Engine) Launch(spec *model.JobSpec, agg *usecase.IncrementalAggregator) {
	go e.run(spec, agg)
}

func (e *Engine) run(spec *model.JobSpec, agg *usecase.IncrementalAggregator) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	execID := spec.ExecutionID
	log := e.log.With().Str("execution_id", execID).Logger()

	ok, err := e.sm.Transition(ctx, execID, model.EventSucceed)
	if err != nil {
		log.Error().Err(err).Msg("failed to persist AI_FETCHING state, aborting job")
		_, _ = e.sm.Transition(ctx, execID, model.EventFail)
		return
	}
	if !ok {
		log.Error().Msg("job not in a startable state")
		return
	}

	items := spec.ExplodeWorkItems()
	total := len(items)

	// The global timer only stops future dispatch and settles job state;
	// in-flight calls finish (or dead-letter) on their own and still feed
	// the aggregator.
	var timedOut atomic.Bool
	if err := e.timeouts.StartTimer(execID, func() {
		timedOut.Store(true)
		if _, terr := e.sm.Transition(context.Background(), execID, model.EventTimeout); terr != nil {
			log.Error().Err(terr).Msg("timeout transition failed to persist")
		}
		metrics.IncJob(string(model.JobStatusTimeout))
		log.Warn().Msg("global job timeout fired")
	}, e.opts.JobTimeout); err != nil {
		log.Error().Err(err).Msg("could not arm job timer")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		succeeded int
		orphaned  int
	)

	for _, item := range items {
		if timedOut.Load() {
			orphaned++
			metrics.IncWorkItem("orphaned")
			continue
		}
		item := item
		wg.Add(1)
		submitErr := e.pool.Submit(ctx, func(taskCtx context.Context) {
			defer wg.Done()
			res := e.processItem(taskCtx, spec, item)

			// a failed result write never fails the WorkItem
			if serr := e.results.Save(taskCtx, nil, res); serr != nil {
				log.Error().Err(serr).Str("model", item.Model).Msg("result save failed")
			}
			agg.AddResult(res)

			mu.Lock()
			completed++
			if res.Succeeded() {
				succeeded++
			}
			done := completed
			mu.Unlock()

			if !timedOut.Load() {
				progress := float64(done) / float64(total) * 100
				if perr := e.sm.UpdateProgress(taskCtx, execID, progress); perr != nil {
					log.Error().Err(perr).Msg("progress update failed")
				}
			}
		})
		if submitErr != nil {
			wg.Done()
			orphaned++
			metrics.IncWorkItem("orphaned")
			log.Error().Err(submitErr).Msg("work item submit failed")
		}
	}

	wg.Wait()

	metrics.SetHealthScore(spec.MainBrand, agg.Snapshot().HealthScore)

	if !e.timeouts.CancelTimer(execID) && timedOut.Load() {
		// the job is already TIMEOUT; late results were aggregated above
		log.Info().Int("completed", completed).Int("orphaned", orphaned).
			Msg("items drained after global timeout")
		return
	}

	switch {
	case succeeded == total:
		e.settle(ctx, execID, model.EventAllComplete, model.EventSucceed, model.JobStatusCompleted)
	case succeeded == 0:
		e.settle(ctx, execID, model.EventAllFail, "", model.JobStatusFailed)
	default:
		e.settle(ctx, execID, model.EventPartialComplete, model.EventPartialSucceed, model.JobStatusPartialSuccess)
	}

	log.Info().Int("total", total).Int("succeeded", succeeded).
		Int("orphaned", orphaned).Msg("diagnosis finished")
}

func (e *Engine) settle(ctx context.Context, execID string, first, second model.JobEvent, final model.JobStatus) {
	if _, err := e.sm.Transition(ctx, execID, first); err != nil {
		e.log.Error().Err(err).Str("execution_id", execID).Msg("settle transition failed to persist")
	}
	if second != "" {
		if _, err := e.sm.Transition(ctx, execID, second); err != nil {
			e.log.Error().Err(err).Str("execution_id", execID).Msg("settle transition failed to persist")
		}
	}
	metrics.IncJob(string(final))
}

// processItem drives one WorkItem to a terminal AICallResult. Failures are
// always recovered locally: retry while the policy allows, then dead-letter.
func (e *Engine) processItem(ctx context.Context, spec *model.JobSpec, item model.WorkItem) *model.AICallResult {
	breaker := e.breakers.For(item.Model)
	retryID := item.ExecutionID + "/" + item.Key()
	// the attempt log has served its purpose once the outcome below is
	// recorded; dropping it keeps the policy's memory flat across jobs
	defer e.retry.Forget(retryID)

	var last fault.CallOutcome
	attempts := 0

	err := e.retry.Execute(ctx, retryID, func(ctx context.Context) error {
		if e.limiter != nil {
			allowed, lerr := e.limiter.Allow(ctx, item.Model, e.opts.ModelRateLimit, e.opts.RateWindow)
			if lerr != nil {
				e.log.Debug().Err(lerr).Str("model", item.Model).Msg("rate limiter unavailable, allowing")
			} else if !allowed {
				return domain.NewClassifiedError(domain.ErrKindRateLimited, errors.New("dispatch window exhausted for model"))
			}
		}

		// consulted last, immediately before dispatch: open circuits reject
		// without a network call or breaker mutation, and every admitted
		// half-open probe is settled by RecordSuccess/RecordFailure below
		if !breaker.Available() {
			return domain.NewClassifiedError(domain.ErrKindUnknown, domain.ErrCircuitOpen)
		}

		attempts++
		if attempts > 1 {
			metrics.IncRetry(item.Model)
		}

		last = e.exec.ExecuteWithFallback(ctx, fault.CallTask{
			Name:    item.Brand + "/" + item.Model,
			Source:  item.Model,
			Timeout: e.questionTimeout(item.Question),
			Run: func(ctx context.Context) (*adapter.PromptResponse, error) {
				return e.sender.SendPrompt(ctx, item.Brand, item.Question, item.Model)
			},
		})
		if last.Succeeded() {
			breaker.RecordSuccess()
			return nil
		}
		breaker.RecordFailure()
		return domain.NewClassifiedError(last.ErrorKind, errors.New(last.ErrorMessage))
	})

	retryCount := attempts - 1
	if retryCount < 0 {
		retryCount = 0
	}

	res := &model.AICallResult{
		ID:          uuid.NewString(),
		ExecutionID: item.ExecutionID,
		Item:        item,
		RetryCount:  retryCount,
		LatencyMS:   last.ExecutionTime.Milliseconds(),
		CreatedAt:   time.Now(),
	}

	if err == nil {
		res.Status = model.CallStatusSuccess
		res.Response = last.Data.Content
		res.Geo = model.GeoData{
			Mentioned:    last.Data.Mentioned,
			Rank:         last.Data.Rank,
			Sentiment:    last.Data.Sentiment,
			CitedSources: last.Data.Citations,
		}
		if last.Data.LatencyMS > 0 {
			res.LatencyMS = last.Data.LatencyMS
		}
		metrics.IncWorkItem("success")
		return res
	}

	res.Status = model.CallStatusFailed
	res.ErrorKind = string(domain.KindOf(err))
	res.ErrorMsg = err.Error()

	if _, derr := e.dlq.Add(ctx, item.ExecutionID, "ai_call", err, item, retryCount, e.retry.MaxRetries(), e.priorityFor(spec, item)); derr != nil {
		e.log.Error().Err(derr).Str("execution_id", item.ExecutionID).Msg("dead letter write failed")
	}
	metrics.IncWorkItem("dead_letter")
	return res
}

// priorityFor ranks main-brand items above competitor items for manual
// retry triage.
func (e *Engine) priorityFor(spec *model.JobSpec, item model.WorkItem) int {
	if item.Brand == spec.MainBrand {
		return 1
	}
	return 5
}

// questionTimeout scales the per-call deadline with the estimated prompt
// size: longer questions get proportionally more room before they count as
// timed out.
func (e *Engine) questionTimeout(question string) time.Duration {
	tokens := e.estimateTokens(question)
	base := e.opts.CallTimeout
	switch {
	case tokens <= shortQuestionTokens:
		return base
	case tokens <= longQuestionTokens:
		return time.Duration(float64(base) * mediumTimeoutFactor)
	default:
		return time.Duration(float64(base) * longTimeoutFactor)
	}
}

func (e *Engine) estimateTokens(text string) int {
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	// rough 4-characters-per-token fallback
	return len(text) / 4
}
