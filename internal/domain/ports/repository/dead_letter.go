package repository

import (
	"context"
	"time"

	"ai-brand-diagnosis/internal/domain/model"
)

// DeadLetterRepository is the durable backing store for exhausted WorkItems.
// Inserts happen from many failing workers at once; implementations must be
// safe under concurrent writes.
type DeadLetterRepository interface {
	Insert(ctx context.Context, tx Tx, entry *model.DeadLetterEntry) error

	FindByID(ctx context.Context, id string) (*model.DeadLetterEntry, error)

	// UpdateStatus moves id from `from` to `to` and reports whether the
	// compare-and-swap applied. A false return is not an error; it means
	// the entry was not in `from`.
	UpdateStatus(ctx context.Context, id string, from, to model.DeadLetterStatus) (bool, error)

	// List returns matching entries plus the total match count for paging.
	List(ctx context.Context, filter model.DeadLetterFilter) ([]*model.DeadLetterEntry, int, error)

	Stats(ctx context.Context, executionID string) (*model.DeadLetterStats, error)

	// DeleteResolvedBefore removes resolved entries older than cutoff and
	// returns how many rows went away.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
