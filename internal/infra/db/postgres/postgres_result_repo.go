package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

var _ repository.DiagnosisResultRepository = (*resultRepo)(nil)

type resultRepo struct {
	pool *pgxpool.Pool
}

func NewResultRepo(pool *pgxpool.Pool) *resultRepo {
	return &resultRepo{pool: pool}
}

func (r *resultRepo) Save(ctx context.Context, tx repository.Tx, result *model.AICallResult) error {
	if result == nil {
		return domain.ErrInvalidArgument
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}
	sourcesJSON, _ := json.Marshal(result.Geo.CitedSources)

	const q = `
INSERT INTO diagnosis_results
  (id, execution_id, brand, question, model, status, response,
   mentioned, mention_rank, sentiment, cited_sources,
   latency_ms, error_kind, error_msg, retry_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO NOTHING;`

	_, err := execSQL(ctx, r.pool, tx, q,
		result.ID, result.ExecutionID,
		result.Item.Brand, result.Item.Question, result.Item.Model,
		string(result.Status), result.Response,
		result.Geo.Mentioned, result.Geo.Rank, result.Geo.Sentiment, sourcesJSON,
		result.LatencyMS, result.ErrorKind, result.ErrorMsg, result.RetryCount, result.CreatedAt)
	return err
}

func (r *resultRepo) GetByExecutionID(ctx context.Context, executionID string) ([]*model.AICallResult, error) {
	const q = `
SELECT id, execution_id, brand, question, model, status, response,
       mentioned, mention_rank, sentiment, cited_sources,
       latency_ms, error_kind, error_msg, retry_count, created_at
FROM diagnosis_results
WHERE execution_id = $1
ORDER BY created_at;`

	rows, err := pickRows(ctx, r.pool, nil, q, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AICallResult
	for rows.Next() {
		var res model.AICallResult
		var statusStr string
		var sourcesJSON []byte
		err := rows.Scan(
			&res.ID, &res.ExecutionID,
			&res.Item.Brand, &res.Item.Question, &res.Item.Model,
			&statusStr, &res.Response,
			&res.Geo.Mentioned, &res.Geo.Rank, &res.Geo.Sentiment, &sourcesJSON,
			&res.LatencyMS, &res.ErrorKind, &res.ErrorMsg, &res.RetryCount, &res.CreatedAt,
		)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		res.Status = model.CallStatus(statusStr)
		res.Item.ExecutionID = res.ExecutionID
		if len(sourcesJSON) > 0 {
			_ = json.Unmarshal(sourcesJSON, &res.Geo.CitedSources)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}
