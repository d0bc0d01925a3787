package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
	"ai-brand-diagnosis/internal/infra/metrics"
)

// Compile-time check
var _ DeadLetterUseCase = (*deadLetterUC)(nil)

// DeadLetterUseCase manages the queue of WorkItems whose retries are
// exhausted: inserting them, walking their pending -> processing ->
// resolved|ignored lifecycle, and sweeping old resolved entries.
type DeadLetterUseCase interface {
	// Add parks one exhausted WorkItem. It must never fail the owning
	// WorkItem, so serialization problems degrade instead of erroring.
	Add(ctx context.Context, executionID, taskType string, callErr error, itemCtx any, retryCount, maxRetries, priority int) (*model.DeadLetterEntry, error)

	// Retry moves a pending entry to processing. Legal only from pending.
	Retry(ctx context.Context, id string) (bool, error)

	// Resolve marks an entry resolved. Succeeds once; repeating returns false.
	Resolve(ctx context.Context, id string) (bool, error)

	// Ignore marks an entry ignored; terminal like Resolve.
	Ignore(ctx context.Context, id string) (bool, error)

	List(ctx context.Context, filter model.DeadLetterFilter) ([]*model.DeadLetterEntry, int, error)
	Stats(ctx context.Context, executionID string) (*model.DeadLetterStats, error)

	// CleanupResolved deletes resolved entries older than days.
	CleanupResolved(ctx context.Context, days int) (int64, error)
}

type deadLetterUC struct {
	repo repository.DeadLetterRepository
	log  *zerolog.Logger
}

func NewDeadLetterUseCase(repo repository.DeadLetterRepository, logger *zerolog.Logger) *deadLetterUC {
	l := logger.With().Str("component", "DeadLetterQueue").Logger()
	return &deadLetterUC{repo: repo, log: &l}
}

func (u *deadLetterUC) Add(ctx context.Context, executionID, taskType string, callErr error, itemCtx any, retryCount, maxRetries, priority int) (*model.DeadLetterEntry, error) {
	kind := domain.KindOf(callErr)
	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	now := time.Now()
	entry := &model.DeadLetterEntry{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		TaskType:    taskType,
		Context:     model.SerializeContext(itemCtx),
		ErrorKind:   string(kind),
		ErrorMsg:    msg,
		RetryCount:  retryCount,
		MaxRetries:  maxRetries,
		Priority:    priority,
		Status:      model.DeadLetterPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.repo.Insert(ctx, nil, entry); err != nil {
		u.log.Error().Err(err).Str("execution_id", executionID).Msg("dead letter insert failed")
		return nil, err
	}
	metrics.IncDeadLetter(string(kind))
	u.log.Warn().Str("execution_id", executionID).Str("kind", string(kind)).
		Int("retries", retryCount).Msg("work item dead-lettered")
	return entry, nil
}

func (u *deadLetterUC) Retry(ctx context.Context, id string) (bool, error) {
	return u.repo.UpdateStatus(ctx, id, model.DeadLetterPending, model.DeadLetterProcessing)
}

func (u *deadLetterUC) Resolve(ctx context.Context, id string) (bool, error) {
	// An operator may resolve straight from pending or after a retry pass.
	ok, err := u.repo.UpdateStatus(ctx, id, model.DeadLetterProcessing, model.DeadLetterResolved)
	if err != nil || ok {
		return ok, err
	}
	return u.repo.UpdateStatus(ctx, id, model.DeadLetterPending, model.DeadLetterResolved)
}

func (u *deadLetterUC) Ignore(ctx context.Context, id string) (bool, error) {
	ok, err := u.repo.UpdateStatus(ctx, id, model.DeadLetterProcessing, model.DeadLetterIgnored)
	if err != nil || ok {
		return ok, err
	}
	return u.repo.UpdateStatus(ctx, id, model.DeadLetterPending, model.DeadLetterIgnored)
}

func (u *deadLetterUC) List(ctx context.Context, filter model.DeadLetterFilter) ([]*model.DeadLetterEntry, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return u.repo.List(ctx, filter)
}

func (u *deadLetterUC) Stats(ctx context.Context, executionID string) (*model.DeadLetterStats, error) {
	return u.repo.Stats(ctx, executionID)
}

func (u *deadLetterUC) CleanupResolved(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := u.repo.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddDeadLettersSwept(n)
		u.log.Info().Int64("deleted", n).Int("days", days).Msg("dead letter retention sweep")
	}
	return n, nil
}
