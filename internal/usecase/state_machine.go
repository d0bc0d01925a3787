package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

// StateMachine drives the per-execution job lifecycle. Transitions for a
// given execution serialize on that job's own lock, not a global one, so
// concurrent jobs never contend.
//
// Terminal states never re-enter a non-terminal state; illegal transitions
// are reported as a boolean false and never mutate anything.
type StateMachine struct {
	repo repository.DiagnosisRepository // nil tolerated: persist becomes a warning no-op
	log  *zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*trackedJob
}

type trackedJob struct {
	mu    sync.Mutex
	state *model.JobState
}

func NewStateMachine(repo repository.DiagnosisRepository, logger *zerolog.Logger) *StateMachine {
	l := logger.With().Str("component", "StateMachine").Logger()
	return &StateMachine{repo: repo, log: &l, jobs: make(map[string]*trackedJob)}
}

// Register creates the INITIALIZING state for a new execution.
func (m *StateMachine) Register(spec *model.JobSpec, reportID string) *model.JobState {
	st := model.NewJobState(spec.ExecutionID)
	st.ReportID = reportID
	st.UserID = spec.UserID
	st.BrandName = spec.MainBrand

	m.mu.Lock()
	m.jobs[spec.ExecutionID] = &trackedJob{state: st}
	m.mu.Unlock()
	return st
}

// Get returns the live state for executionID, or nil when untracked.
func (m *StateMachine) Get(executionID string) *model.JobState {
	m.mu.Lock()
	j := m.jobs[executionID]
	m.mu.Unlock()
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *j.state
	return &cp
}

// Transition applies event to the execution's current state. It returns
// false (state unchanged, no error) for any illegal (state,event) pair and
// for unknown executions. The only error it can return is a persistence
// failure, which is fatal because stale client-visible state is worse than
// a failed request.
func (m *StateMachine) Transition(ctx context.Context, executionID string, event model.JobEvent) (bool, error) {
	m.mu.Lock()
	j := m.jobs[executionID]
	m.mu.Unlock()
	if j == nil {
		return false, nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	next, ok := model.NextStatus(j.state.Status, event)
	if !ok {
		m.log.Debug().Str("execution_id", executionID).
			Str("state", string(j.state.Status)).Str("event", string(event)).
			Msg("illegal transition rejected")
		return false, nil
	}

	prev := j.state.Status
	j.state.Status = next
	j.state.Stage = stageFor(next)
	j.state.UpdatedAt = time.Now()
	if next.Terminal() {
		j.state.Progress = clampProgress(j.state.Progress)
	}

	m.log.Info().Str("execution_id", executionID).
		Str("from", string(prev)).Str("to", string(next)).Str("event", string(event)).
		Msg("job state transition")

	if err := m.persist(ctx, j.state); err != nil {
		return true, err
	}
	return true, nil
}

// UpdateProgress sets progress in [0,100]. Values outside the range are an
// ErrInvalidArgument; a decrease is logged as a warning but applied, since
// a corrected progress beats a frozen one.
func (m *StateMachine) UpdateProgress(ctx context.Context, executionID string, progress float64) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress %v out of range: %w", progress, domain.ErrInvalidArgument)
	}
	m.mu.Lock()
	j := m.jobs[executionID]
	m.mu.Unlock()
	if j == nil {
		return domain.ErrNotFound
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if progress < j.state.Progress {
		m.log.Warn().Str("execution_id", executionID).
			Float64("from", j.state.Progress).Float64("to", progress).
			Msg("progress decreased")
	}
	j.state.Progress = progress
	j.state.UpdatedAt = time.Now()
	return m.persist(ctx, j.state)
}

func (m *StateMachine) persist(ctx context.Context, st *model.JobState) error {
	if m.repo == nil {
		m.log.Warn().Str("execution_id", st.ExecutionID).Msg("no repository configured, state not persisted")
		return nil
	}
	if err := m.repo.UpdateState(ctx, st.ExecutionID, st.Status, st.Stage, st.Progress, st.Metadata); err != nil {
		return fmt.Errorf("update state for %s: %w: %v", st.ExecutionID, domain.ErrPersistence, err)
	}
	return nil
}

func stageFor(s model.JobStatus) string {
	switch s {
	case model.JobStatusInitializing:
		return "created"
	case model.JobStatusAIFetching:
		return "fetching_ai_responses"
	case model.JobStatusAnalyzing:
		return "analyzing_results"
	default:
		return "finished"
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
