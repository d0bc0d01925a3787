package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

// Sentiment bucket edges for the client-facing distribution.
const (
	sentimentPositiveMin = 0.66
	sentimentNegativeMax = 0.33
	maxReportKeywords    = 10
)

// Compile-time check
var _ ReportUseCase = (*reportUC)(nil)

// ReportUseCase renders the client-facing report for an execution. It always
// returns something usable: a full report for completed jobs, a stub with
// whatever partial data exists otherwise, and a guided empty report for
// failed or unknown executions.
type ReportUseCase interface {
	BuildReport(ctx context.Context, executionID string) (*model.StubReport, error)
}

type reportUC struct {
	diag    repository.DiagnosisRepository
	results repository.DiagnosisResultRepository
	dlq     DeadLetterUseCase
	log     *zerolog.Logger
}

func NewReportUseCase(diag repository.DiagnosisRepository, results repository.DiagnosisResultRepository, dlq DeadLetterUseCase, logger *zerolog.Logger) *reportUC {
	l := logger.With().Str("component", "ReportStubService").Logger()
	return &reportUC{diag: diag, results: results, dlq: dlq, log: &l}
}

// ShouldReturnStub is a pure predicate over an already-built report: true
// for nil reports, reports with no results, and any non-completed status.
func ShouldReturnStub(r *model.StubReport) bool {
	if r == nil {
		return true
	}
	if len(r.Results) == 0 {
		return true
	}
	return r.Report.Status != model.JobStatusCompleted
}

func (u *reportUC) BuildReport(ctx context.Context, executionID string) (*model.StubReport, error) {
	st, err := u.diag.GetByExecutionID(ctx, executionID)
	if errors.Is(err, domain.ErrNotFound) {
		return u.unknownReport(executionID), nil
	}
	if err != nil {
		return nil, err
	}

	results, err := u.results.GetByExecutionID(ctx, executionID)
	if err != nil {
		u.log.Error().Err(err).Str("execution_id", executionID).Msg("results unavailable, rendering without them")
		results = nil
	}

	expected, err := u.diag.GetExpectedResultsCount(ctx, executionID)
	if err != nil || expected <= 0 {
		expected = len(results)
	}

	// The snapshot is recomputed from stored results so reports survive a
	// process restart; live dashboards use the aggregator stream instead.
	agg := NewIncrementalAggregator(executionID, st.BrandName)
	successful := 0
	for _, r := range results {
		agg.AddResult(r)
		if r.Succeeded() {
			successful++
		}
	}
	snap := agg.Snapshot()

	report := &model.StubReport{
		Report: model.ReportHeader{
			ExecutionID: st.ExecutionID,
			ReportID:    st.ReportID,
			BrandName:   st.BrandName,
			Status:      st.Status,
			Progress:    st.Progress,
			Stage:       st.Stage,
			CreatedAt:   st.CreatedAt,
		},
		Results:  results,
		Analysis: buildAnalysis(snap, results),
		Meta: model.ReportMeta{
			HasData:         successful > 0,
			SuccessfulCount: successful,
		},
	}

	switch st.Status {
	case model.JobStatusCompleted:
		report.Meta.DataCompleteness = 100
	case model.JobStatusPartialSuccess, model.JobStatusTimeout:
		report.Meta.IsStub = true
		if expected > 0 {
			report.Meta.DataCompleteness = float64(successful) / float64(expected) * 100
		}
		report.RetrySuggestion = u.retrySuggestion(ctx, executionID, st.Status)
	case model.JobStatusFailed:
		report.Meta.IsStub = true
		report.Meta.HasData = false
		report.ErrorMessage = "The diagnosis could not collect any AI responses."
		report.RetrySuggestion = u.retrySuggestion(ctx, executionID, st.Status)
		report.NextSteps = failedNextSteps()
		report.PriorExecutions = u.priorSuccessfulExecutions(ctx, st.UserID)
	default:
		// still running: render whatever has arrived so far
		report.Meta.IsStub = true
		if expected > 0 {
			report.Meta.DataCompleteness = float64(successful) / float64(expected) * 100
		}
	}

	return report, nil
}

func (u *reportUC) unknownReport(executionID string) *model.StubReport {
	return &model.StubReport{
		Report: model.ReportHeader{
			ExecutionID: executionID,
			Status:      model.JobStatusFailed,
		},
		Analysis:     emptyAnalysis(),
		Meta:         model.ReportMeta{IsStub: true, HasData: false},
		ErrorMessage: "No diagnosis found for this execution. It may have expired or the id is wrong.",
		NextSteps:    failedNextSteps(),
	}
}

// retrySuggestion tailors the next-step hint to the dominant failure class
// in the execution's dead letters.
func (u *reportUC) retrySuggestion(ctx context.Context, executionID string, status model.JobStatus) string {
	kind := ""
	if u.dlq != nil {
		if stats, err := u.dlq.Stats(ctx, executionID); err == nil && stats != nil {
			best := 0
			for k, n := range stats.ByKind {
				if n > best {
					best, kind = n, k
				}
			}
		}
	}

	switch domain.ErrorKind(kind) {
	case domain.ErrKindTimeout:
		return "Some AI providers responded too slowly. Retry in a few minutes, or reduce the number of questions per run."
	case domain.ErrKindRateLimited:
		return "AI providers rate-limited our requests. Wait a few minutes before retrying."
	case domain.ErrKindQuotaExhausted:
		return "The provider quota is exhausted. Retry after the quota window resets or raise the account limits."
	case domain.ErrKindInvalidAPIKey:
		return "A provider rejected our credentials. Check the configured API keys before retrying."
	}
	if status == model.JobStatusTimeout {
		return "The diagnosis hit its overall time limit. Retry with fewer brands or questions."
	}
	return "Retry the diagnosis; if it keeps failing, contact support with this execution id."
}

func (u *reportUC) priorSuccessfulExecutions(ctx context.Context, userID string) []string {
	if userID == "" {
		return nil
	}
	states, err := u.diag.ListByUserID(ctx, userID, 10)
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range states {
		if s.Status == model.JobStatusCompleted || s.Status == model.JobStatusPartialSuccess {
			out = append(out, s.ExecutionID)
		}
	}
	return out
}

func failedNextSteps() []string {
	return []string{
		"Verify the brand name and questions, then start a new diagnosis.",
		"Check provider status if failures persist.",
		"Inspect the dead letter queue for per-item error detail.",
	}
}

// buildAnalysis computes distributions only over the data that is actually
// available; an empty result set yields empty (not nil) maps.
func buildAnalysis(snap model.AggregatedSnapshot, results []*model.AICallResult) model.ReportAnalysis {
	a := emptyAnalysis()

	if snap.TotalResponses > 0 {
		for brand, n := range snap.BrandResponses {
			a.BrandDistribution[brand] = float64(n) / float64(snap.TotalResponses)
		}
	}

	var pos, neu, neg, n int
	seen := map[string]struct{}{}
	for _, r := range results {
		if !r.Succeeded() {
			continue
		}
		n++
		switch {
		case r.Geo.Sentiment >= sentimentPositiveMin:
			pos++
		case r.Geo.Sentiment <= sentimentNegativeMax:
			neg++
		default:
			neu++
		}
		for _, src := range r.Geo.CitedSources {
			if _, dup := seen[src]; dup || src == "" {
				continue
			}
			seen[src] = struct{}{}
			if len(a.Keywords) < maxReportKeywords {
				a.Keywords = append(a.Keywords, src)
			}
		}
	}
	if n > 0 {
		a.SentimentDistribution["positive"] = float64(pos) / float64(n)
		a.SentimentDistribution["neutral"] = float64(neu) / float64(n)
		a.SentimentDistribution["negative"] = float64(neg) / float64(n)
	}
	return a
}

func emptyAnalysis() model.ReportAnalysis {
	return model.ReportAnalysis{
		BrandDistribution:     map[string]float64{},
		SentimentDistribution: map[string]float64{},
		Keywords:              []string{},
	}
}
