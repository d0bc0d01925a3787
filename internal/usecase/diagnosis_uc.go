package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

// Engine is the execution side of a diagnosis: it fans the spec out into
// WorkItems and drives them to success or dead-letter. Implemented by the
// concurrent executor in infra/worker.
type Engine interface {
	Launch(spec *model.JobSpec, agg *IncrementalAggregator)
}

// ReportCache is an optional read-through cache for rendered reports.
// A miss is (nil, nil).
type ReportCache interface {
	Get(ctx context.Context, executionID string) (*model.StubReport, error)
	Set(ctx context.Context, executionID string, report *model.StubReport) error
}

// StartReceipt is returned to the caller that accepted a JobSpec.
type StartReceipt struct {
	ExecutionID string `json:"execution_id"`
	ReportID    string `json:"report_id"`
}

// StatusView is the polling surface for one execution.
type StatusView struct {
	Status            model.JobStatus `json:"status"`
	Progress          float64         `json:"progress"`
	Stage             string          `json:"stage"`
	ShouldStopPolling bool            `json:"should_stop_polling"`
}

// Compile-time check
var _ DiagnosisService = (*diagnosisService)(nil)

// DiagnosisService is the facade the transport layer talks to: accept a
// job, report its status, render its report.
type DiagnosisService interface {
	StartDiagnosis(ctx context.Context, spec *model.JobSpec) (*StartReceipt, error)
	GetStatus(ctx context.Context, executionID string) (*StatusView, error)
	GetReport(ctx context.Context, executionID string) (*model.StubReport, error)
}

type diagnosisService struct {
	diag    repository.DiagnosisRepository
	sm      *StateMachine
	engine  Engine
	reports ReportUseCase
	cache   ReportCache // nil tolerated
	log     *zerolog.Logger

	// per-service aggregator registry; owned here rather than in package
	// state so concurrent services and tests stay isolated
	mu   sync.Mutex
	aggs map[string]*IncrementalAggregator
}

func NewDiagnosisService(
	diag repository.DiagnosisRepository,
	sm *StateMachine,
	engine Engine,
	reports ReportUseCase,
	cache ReportCache,
	logger *zerolog.Logger,
) *diagnosisService {
	l := logger.With().Str("component", "DiagnosisService").Logger()
	return &diagnosisService{
		diag:    diag,
		sm:      sm,
		engine:  engine,
		reports: reports,
		cache:   cache,
		log:     &l,
		aggs:    make(map[string]*IncrementalAggregator),
	}
}

// StartDiagnosis validates and accepts a JobSpec, persists its initial
// state, and launches the execution engine asynchronously. Validation
// failures reject the job before a single WorkItem exists.
func (s *diagnosisService) StartDiagnosis(ctx context.Context, spec *model.JobSpec) (*StartReceipt, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if existing, err := s.diag.GetByExecutionID(ctx, spec.ExecutionID); err == nil && existing != nil {
		return nil, domain.ErrAlreadyExists
	}

	reportID := uuid.NewString()
	st := s.sm.Register(spec, reportID)

	if err := s.diag.SaveSpec(ctx, nil, spec, st); err != nil {
		// accepting a job we cannot persist would strand the client
		_, _ = s.sm.Transition(ctx, spec.ExecutionID, model.EventFail)
		return nil, fmt.Errorf("save spec: %w: %v", domain.ErrPersistence, err)
	}

	agg := NewIncrementalAggregator(spec.ExecutionID, spec.MainBrand)
	s.mu.Lock()
	s.aggs[spec.ExecutionID] = agg
	s.mu.Unlock()

	s.log.Info().Str("execution_id", spec.ExecutionID).
		Int("expected_results", spec.ExpectedResults()).
		Int("brands", len(spec.Brands())).
		Int("models", len(spec.TargetModels)).
		Msg("diagnosis accepted")

	s.engine.Launch(spec, agg)
	return &StartReceipt{ExecutionID: spec.ExecutionID, ReportID: reportID}, nil
}

func (s *diagnosisService) GetStatus(ctx context.Context, executionID string) (*StatusView, error) {
	st := s.sm.Get(executionID)
	if st == nil {
		var err error
		st, err = s.diag.GetByExecutionID(ctx, executionID)
		if err != nil {
			return nil, err
		}
	}
	return &StatusView{
		Status:            st.Status,
		Progress:          st.Progress,
		Stage:             st.Stage,
		ShouldStopPolling: st.Status.Terminal(),
	}, nil
}

// GetReport renders the report, serving terminal reports from the cache
// when one is configured. Cache failures only cost the shortcut.
func (s *diagnosisService) GetReport(ctx context.Context, executionID string) (*model.StubReport, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, executionID); err == nil && cached != nil {
			return cached, nil
		}
	}

	report, err := s.reports.BuildReport(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && report.Report.Status.Terminal() {
		if err := s.cache.Set(ctx, executionID, report); err != nil {
			s.log.Debug().Err(err).Str("execution_id", executionID).Msg("report cache write failed")
		}
	}
	return report, nil
}

// Snapshot exposes the live aggregator stream for an in-flight execution.
func (s *diagnosisService) Snapshot(executionID string) (model.AggregatedSnapshot, bool) {
	s.mu.Lock()
	agg := s.aggs[executionID]
	s.mu.Unlock()
	if agg == nil {
		return model.AggregatedSnapshot{}, false
	}
	return agg.Snapshot(), true
}
