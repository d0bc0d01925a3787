package repository

import (
	"context"

	"ai-brand-diagnosis/internal/domain/model"
)

// DiagnosisRepository persists job specs and their lifecycle state.
// Repositories MUST gracefully accept nil tx (non-transactional path).
type DiagnosisRepository interface {
	// SaveSpec stores the accepted JobSpec together with its initial state.
	SaveSpec(ctx context.Context, tx Tx, spec *model.JobSpec, st *model.JobState) error

	// UpdateState writes the current lifecycle state through to storage.
	UpdateState(ctx context.Context, executionID string, status model.JobStatus, stage string, progress float64, metadata map[string]string) error

	// GetByExecutionID returns the stored state, domain.ErrNotFound when unknown.
	GetByExecutionID(ctx context.Context, executionID string) (*model.JobState, error)

	// GetExpectedResultsCount returns brands x questions x models for the job.
	GetExpectedResultsCount(ctx context.Context, executionID string) (int, error)

	// ListByUserID returns the user's most recent executions, newest first.
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.JobState, error)
}

// DiagnosisResultRepository stores terminal WorkItem outcomes.
type DiagnosisResultRepository interface {
	Save(ctx context.Context, tx Tx, result *model.AICallResult) error
	GetByExecutionID(ctx context.Context, executionID string) ([]*model.AICallResult, error)
}
