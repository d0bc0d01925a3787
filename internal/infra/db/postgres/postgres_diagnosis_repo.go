package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

var _ repository.DiagnosisRepository = (*diagnosisRepo)(nil)

type diagnosisRepo struct {
	pool *pgxpool.Pool
}

func NewDiagnosisRepo(pool *pgxpool.Pool) *diagnosisRepo {
	return &diagnosisRepo{pool: pool}
}

func (r *diagnosisRepo) SaveSpec(ctx context.Context, tx repository.Tx, spec *model.JobSpec, st *model.JobState) error {
	if spec == nil || st == nil {
		return domain.ErrInvalidArgument
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	metaJSON, _ := json.Marshal(st.Metadata)

	const q = `
INSERT INTO diagnoses
  (execution_id, report_id, user_id, brand_name, status, stage, progress, metadata, expected_results, spec, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`

	_, err = execSQL(ctx, r.pool, tx, q,
		spec.ExecutionID, st.ReportID, spec.UserID, spec.MainBrand,
		string(st.Status), st.Stage, st.Progress, metaJSON,
		spec.ExpectedResults(), specJSON, st.CreatedAt, st.UpdatedAt)
	return err
}

// UpdateState is tolerant of unknown executions: a zero-row update is not an
// error, so failure-path transitions on never-inserted jobs stay quiet.
func (r *diagnosisRepo) UpdateState(ctx context.Context, executionID string, status model.JobStatus, stage string, progress float64, metadata map[string]string) error {
	metaJSON, _ := json.Marshal(metadata)

	const q = `
UPDATE diagnoses SET
  status = $2, stage = $3, progress = $4, metadata = $5, updated_at = $6
WHERE execution_id = $1;`

	_, err := execSQL(ctx, r.pool, nil, q,
		executionID, string(status), stage, progress, metaJSON, time.Now())
	return err
}

func (r *diagnosisRepo) GetByExecutionID(ctx context.Context, executionID string) (*model.JobState, error) {
	const q = `
SELECT execution_id, report_id, user_id, brand_name, status, stage, progress, metadata, created_at, updated_at
FROM diagnoses WHERE execution_id = $1;`

	row, err := pickRow(ctx, r.pool, nil, q, executionID)
	if err != nil {
		return nil, err
	}
	return scanJobState(row)
}

func (r *diagnosisRepo) GetExpectedResultsCount(ctx context.Context, executionID string) (int, error) {
	row, err := pickRow(ctx, r.pool, nil,
		`SELECT expected_results FROM diagnoses WHERE execution_id = $1;`, executionID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *diagnosisRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.JobState, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT execution_id, report_id, user_id, brand_name, status, stage, progress, metadata, created_at, updated_at
FROM diagnoses WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`

	rows, err := pickRows(ctx, r.pool, nil, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.JobState
	for rows.Next() {
		st, err := scanJobState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanJobState(row pgx.Row) (*model.JobState, error) {
	var st model.JobState
	var statusStr string
	var metaJSON []byte
	err := row.Scan(
		&st.ExecutionID, &st.ReportID, &st.UserID, &st.BrandName,
		&statusStr, &st.Stage, &st.Progress, &metaJSON,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	st.Status = model.JobStatus(statusStr)
	st.Metadata = map[string]string{}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &st.Metadata)
	}
	return &st, nil
}
