package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

var _ repository.DeadLetterRepository = (*deadLetterRepo)(nil)

type deadLetterRepo struct {
	pool *pgxpool.Pool
}

func NewDeadLetterRepo(pool *pgxpool.Pool) *deadLetterRepo {
	return &deadLetterRepo{pool: pool}
}

func (r *deadLetterRepo) Insert(ctx context.Context, tx repository.Tx, entry *model.DeadLetterEntry) error {
	if entry == nil || entry.ID == "" {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO dead_letters
  (id, execution_id, task_type, context, error_kind, error_msg,
   retry_count, max_retries, priority, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err := execSQL(ctx, r.pool, tx, q,
		entry.ID, entry.ExecutionID, entry.TaskType, entry.Context,
		entry.ErrorKind, entry.ErrorMsg,
		entry.RetryCount, entry.MaxRetries, entry.Priority,
		string(entry.Status), entry.CreatedAt, entry.UpdatedAt)
	return err
}

func (r *deadLetterRepo) FindByID(ctx context.Context, id string) (*model.DeadLetterEntry, error) {
	const q = `
SELECT id, execution_id, task_type, context, error_kind, error_msg,
       retry_count, max_retries, priority, status, created_at, updated_at
FROM dead_letters WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	return scanDeadLetter(row)
}

// UpdateStatus is the compare-and-swap that makes the lifecycle race-safe:
// the WHERE clause carries the expected current status, so two concurrent
// resolvers can never both win.
func (r *deadLetterRepo) UpdateStatus(ctx context.Context, id string, from, to model.DeadLetterStatus) (bool, error) {
	const q = `
UPDATE dead_letters SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2;`

	tag, err := execSQL(ctx, r.pool, nil, q, id, string(from), string(to), time.Now())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *deadLetterRepo) List(ctx context.Context, filter model.DeadLetterFilter) ([]*model.DeadLetterEntry, int, error) {
	where, args := filterClause(filter)

	var total int
	row, err := pickRow(ctx, r.pool, nil, `SELECT COUNT(*) FROM dead_letters`+where+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	q := `
SELECT id, execution_id, task_type, context, error_kind, error_msg,
       retry_count, max_retries, priority, status, created_at, updated_at
FROM dead_letters` + where + fmt.Sprintf(`
ORDER BY priority, created_at
LIMIT $%d OFFSET $%d;`, len(args)+1, len(args)+2)

	rows, err := pickRows(ctx, r.pool, nil, q, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.DeadLetterEntry
	for rows.Next() {
		e, err := scanDeadLetter(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *deadLetterRepo) Stats(ctx context.Context, executionID string) (*model.DeadLetterStats, error) {
	where, args := filterClause(model.DeadLetterFilter{ExecutionID: executionID})

	stats := &model.DeadLetterStats{
		ByStatus: map[string]int{},
		ByKind:   map[string]int{},
	}

	rows, err := pickRows(ctx, r.pool, nil,
		`SELECT status, error_kind, COUNT(*) FROM dead_letters`+where+` GROUP BY status, error_kind;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		stats.Total += n
		stats.ByStatus[status] += n
		if kind != "" {
			stats.ByKind[kind] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	oldestQ := `SELECT MIN(created_at) FROM dead_letters`
	oldestArgs := args
	if executionID != "" {
		oldestQ += ` WHERE execution_id = $1 AND status = 'pending'`
	} else {
		oldestQ += ` WHERE status = 'pending'`
		oldestArgs = nil
	}
	row, err := pickRow(ctx, r.pool, nil, oldestQ+`;`, oldestArgs...)
	if err != nil {
		return nil, err
	}
	var oldest *time.Time
	if err := row.Scan(&oldest); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReadDatabaseRow
	}
	stats.Oldest = oldest
	return stats, nil
}

func (r *deadLetterRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, nil,
		`DELETE FROM dead_letters WHERE status = 'resolved' AND updated_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func filterClause(f model.DeadLetterFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ExecutionID != "" {
		add("execution_id = $%d", f.ExecutionID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.TaskType != "" {
		add("task_type = $%d", f.TaskType)
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanDeadLetter(row pgx.Row) (*model.DeadLetterEntry, error) {
	var e model.DeadLetterEntry
	var statusStr string
	err := row.Scan(
		&e.ID, &e.ExecutionID, &e.TaskType, &e.Context, &e.ErrorKind, &e.ErrorMsg,
		&e.RetryCount, &e.MaxRetries, &e.Priority, &statusStr, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	e.Status = model.DeadLetterStatus(statusStr)
	return &e, nil
}
