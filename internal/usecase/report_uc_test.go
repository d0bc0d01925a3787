package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
)

type reportFixture struct {
	diag    *fakeDiagRepo
	results *fakeResultRepo
	dlRepo  *fakeDeadLetterRepo
	uc      *reportUC
}

func newReportFixture() *reportFixture {
	logger := zerolog.Nop()
	diag := newFakeDiagRepo()
	results := newFakeResultRepo()
	dlRepo := newFakeDeadLetterRepo()
	dlq := NewDeadLetterUseCase(dlRepo, &logger)
	return &reportFixture{
		diag:    diag,
		results: results,
		dlRepo:  dlRepo,
		uc:      NewReportUseCase(diag, results, dlq, &logger),
	}
}

func (f *reportFixture) seedJob(t *testing.T, executionID string, status model.JobStatus, progress float64) {
	t.Helper()
	spec := mustSpec(executionID) // 2 brands x 1 question x 1 model = 2 expected
	st := model.NewJobState(executionID)
	st.ReportID = "report-" + executionID
	st.UserID = spec.UserID
	st.BrandName = spec.MainBrand
	st.Status = status
	st.Progress = progress
	if err := f.diag.SaveSpec(context.Background(), nil, spec, st); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *reportFixture) seedResult(t *testing.T, executionID, brand string, ok bool, geo model.GeoData) {
	t.Helper()
	r := callResult(brand, "What is the best CRM?", "gpt-4o-mini", ok, geo)
	r.ExecutionID = executionID
	r.Item.ExecutionID = executionID
	if err := f.results.Save(context.Background(), nil, r); err != nil {
		t.Fatalf("seed result: %v", err)
	}
}

func TestShouldReturnStub(t *testing.T) {
	t.Parallel()

	if !ShouldReturnStub(nil) {
		t.Fatalf("nil report must be a stub")
	}
	empty := &model.StubReport{Report: model.ReportHeader{Status: model.JobStatusCompleted}}
	if !ShouldReturnStub(empty) {
		t.Fatalf("report without results must be a stub")
	}
	partial := &model.StubReport{
		Report:  model.ReportHeader{Status: model.JobStatusPartialSuccess},
		Results: []*model.AICallResult{{}},
	}
	if !ShouldReturnStub(partial) {
		t.Fatalf("non-completed status must be a stub")
	}
	full := &model.StubReport{
		Report:  model.ReportHeader{Status: model.JobStatusCompleted},
		Results: []*model.AICallResult{{}},
	}
	if ShouldReturnStub(full) {
		t.Fatalf("completed report with results is not a stub")
	}
}

func TestBuildReport_Completed(t *testing.T) {
	t.Parallel()
	f := newReportFixture()
	ctx := context.Background()

	f.seedJob(t, "exec-r1", model.JobStatusCompleted, 100)
	f.seedResult(t, "exec-r1", "Acme", true, model.GeoData{Mentioned: true, Rank: 1, Sentiment: 0.9, CitedSources: []string{"https://a.example"}})
	f.seedResult(t, "exec-r1", "Globex", true, model.GeoData{Sentiment: 0.4})

	report, err := f.uc.BuildReport(ctx, "exec-r1")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Meta.IsStub {
		t.Fatalf("completed job must not render as stub")
	}
	if report.Meta.DataCompleteness != 100 || !report.Meta.HasData {
		t.Fatalf("meta wrong: %+v", report.Meta)
	}
	if report.Report.ReportID != "report-exec-r1" || report.Report.BrandName != "Acme" {
		t.Fatalf("header wrong: %+v", report.Report)
	}
	if len(report.Analysis.Keywords) != 1 || report.Analysis.Keywords[0] != "https://a.example" {
		t.Fatalf("cited sources not surfaced: %v", report.Analysis.Keywords)
	}
	if report.Analysis.SentimentDistribution["positive"] != 0.5 {
		t.Fatalf("sentiment distribution wrong: %v", report.Analysis.SentimentDistribution)
	}
}

func TestBuildReport_PartialSuccessCompleteness(t *testing.T) {
	t.Parallel()
	f := newReportFixture()
	ctx := context.Background()

	f.seedJob(t, "exec-r2", model.JobStatusPartialSuccess, 100)
	// one success out of the 2 expected work items
	f.seedResult(t, "exec-r2", "Acme", true, model.GeoData{Mentioned: true, Sentiment: 0.7})

	report, err := f.uc.BuildReport(ctx, "exec-r2")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !report.Meta.IsStub || !report.Meta.HasData {
		t.Fatalf("partial report meta wrong: %+v", report.Meta)
	}
	if report.Meta.DataCompleteness != 50 {
		t.Fatalf("want 50%% completeness, got %v", report.Meta.DataCompleteness)
	}
	if report.RetrySuggestion == "" {
		t.Fatalf("partial report must carry a retry suggestion")
	}
}

func TestBuildReport_FailedWithPriorExecutions(t *testing.T) {
	t.Parallel()
	f := newReportFixture()
	ctx := context.Background()

	f.seedJob(t, "exec-old", model.JobStatusCompleted, 100)
	f.seedJob(t, "exec-r3", model.JobStatusFailed, 10)

	report, err := f.uc.BuildReport(ctx, "exec-r3")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !report.Meta.IsStub || report.Meta.HasData {
		t.Fatalf("failed report meta wrong: %+v", report.Meta)
	}
	if report.ErrorMessage == "" || len(report.NextSteps) == 0 {
		t.Fatalf("failed report must guide the user: %+v", report)
	}
	if len(report.PriorExecutions) != 1 || report.PriorExecutions[0] != "exec-old" {
		t.Fatalf("prior successful executions missing: %v", report.PriorExecutions)
	}
}

func TestBuildReport_UnknownExecution(t *testing.T) {
	t.Parallel()
	f := newReportFixture()

	report, err := f.uc.BuildReport(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unknown executions must still render: %v", err)
	}
	if !report.Meta.IsStub || report.Meta.HasData {
		t.Fatalf("unknown report meta wrong: %+v", report.Meta)
	}
	if report.Report.Status != model.JobStatusFailed || report.ErrorMessage == "" {
		t.Fatalf("unknown report must read as failed with guidance: %+v", report)
	}
}

func TestBuildReport_RetrySuggestionFollowsDominantKind(t *testing.T) {
	t.Parallel()
	f := newReportFixture()
	ctx := context.Background()
	logger := zerolog.Nop()
	dlq := NewDeadLetterUseCase(f.dlRepo, &logger)

	f.seedJob(t, "exec-r4", model.JobStatusTimeout, 60)
	slow := domain.NewClassifiedError(domain.ErrKindTimeout, errors.New("deadline"))
	for i := 0; i < 3; i++ {
		if _, err := dlq.Add(ctx, "exec-r4", "ai_call", slow, nil, 3, 3, 5); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	limited := domain.NewClassifiedError(domain.ErrKindRateLimited, errors.New("429"))
	if _, err := dlq.Add(ctx, "exec-r4", "ai_call", limited, nil, 3, 3, 5); err != nil {
		t.Fatalf("Add: %v", err)
	}

	report, err := f.uc.BuildReport(ctx, "exec-r4")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	// TIMEOUT dominates 3:1, so the hint should talk about slowness
	if want := "responded too slowly"; !strings.Contains(report.RetrySuggestion, want) {
		t.Fatalf("suggestion %q does not mention %q", report.RetrySuggestion, want)
	}
}

func TestBuildReport_ResultsUnavailableStillRenders(t *testing.T) {
	t.Parallel()
	f := newReportFixture()
	f.results.getErr = errBoom

	f.seedJob(t, "exec-r5", model.JobStatusCompleted, 100)
	report, err := f.uc.BuildReport(context.Background(), "exec-r5")
	if err != nil {
		t.Fatalf("BuildReport must degrade, not fail: %v", err)
	}
	if report.Meta.HasData {
		t.Fatalf("no results were readable, HasData must be false")
	}
}
