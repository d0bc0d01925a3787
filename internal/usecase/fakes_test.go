package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/domain/ports/repository"
)

// Hand-rolled in-memory fakes shared by the use case tests.

type fakeDiagRepo struct {
	mu      sync.Mutex
	states  map[string]*model.JobState
	specs   map[string]*model.JobSpec
	updates int

	saveErr   error
	updateErr error
}

func newFakeDiagRepo() *fakeDiagRepo {
	return &fakeDiagRepo{
		states: make(map[string]*model.JobState),
		specs:  make(map[string]*model.JobSpec),
	}
}

func (f *fakeDiagRepo) SaveSpec(ctx context.Context, tx repository.Tx, spec *model.JobSpec, st *model.JobState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[spec.ExecutionID] = spec
	cp := *st
	f.states[spec.ExecutionID] = &cp
	return nil
}

func (f *fakeDiagRepo) UpdateState(ctx context.Context, executionID string, status model.JobStatus, stage string, progress float64, metadata map[string]string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if st, ok := f.states[executionID]; ok {
		st.Status = status
		st.Stage = stage
		st.Progress = progress
	}
	// unknown executions are a silent no-op, like the SQL UPDATE
	return nil
}

func (f *fakeDiagRepo) GetByExecutionID(ctx context.Context, executionID string) (*model.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.states[executionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeDiagRepo) GetExpectedResultsCount(ctx context.Context, executionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	spec, ok := f.specs[executionID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return spec.ExpectedResults(), nil
}

func (f *fakeDiagRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.JobState
	for _, st := range f.states {
		if st.UserID == userID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeResultRepo struct {
	mu      sync.Mutex
	results map[string][]*model.AICallResult
	getErr  error
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{results: make(map[string][]*model.AICallResult)}
}

func (f *fakeResultRepo) Save(ctx context.Context, tx repository.Tx, r *model.AICallResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[r.ExecutionID] = append(f.results[r.ExecutionID], r)
	return nil
}

func (f *fakeResultRepo) GetByExecutionID(ctx context.Context, executionID string) ([]*model.AICallResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[executionID], nil
}

type fakeDeadLetterRepo struct {
	mu      sync.Mutex
	entries map[string]*model.DeadLetterEntry

	insertErr error
}

func newFakeDeadLetterRepo() *fakeDeadLetterRepo {
	return &fakeDeadLetterRepo{entries: make(map[string]*model.DeadLetterEntry)}
}

func (f *fakeDeadLetterRepo) Insert(ctx context.Context, tx repository.Tx, entry *model.DeadLetterEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries[entry.ID] = &cp
	return nil
}

func (f *fakeDeadLetterRepo) FindByID(ctx context.Context, id string) (*model.DeadLetterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeDeadLetterRepo) UpdateStatus(ctx context.Context, id string, from, to model.DeadLetterStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	e.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeDeadLetterRepo) List(ctx context.Context, filter model.DeadLetterFilter) ([]*model.DeadLetterEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*model.DeadLetterEntry
	for _, e := range f.entries {
		if filter.ExecutionID != "" && e.ExecutionID != filter.ExecutionID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.TaskType != "" && e.TaskType != filter.TaskType {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	total := len(matched)
	if filter.Offset > len(matched) {
		matched = nil
	} else {
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (f *fakeDeadLetterRepo) Stats(ctx context.Context, executionID string) (*model.DeadLetterStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &model.DeadLetterStats{
		ByStatus: map[string]int{},
		ByKind:   map[string]int{},
	}
	for _, e := range f.entries {
		if executionID != "" && e.ExecutionID != executionID {
			continue
		}
		stats.Total++
		stats.ByStatus[string(e.Status)]++
		stats.ByKind[e.ErrorKind]++
		if e.Status == model.DeadLetterPending {
			if stats.Oldest == nil || e.CreatedAt.Before(*stats.Oldest) {
				t := e.CreatedAt
				stats.Oldest = &t
			}
		}
	}
	return stats, nil
}

func (f *fakeDeadLetterRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.entries {
		if e.Status == model.DeadLetterResolved && e.CreatedAt.Before(cutoff) {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	launched []string
}

func (f *fakeEngine) Launch(spec *model.JobSpec, agg *IncrementalAggregator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, spec.ExecutionID)
}

func (f *fakeEngine) launchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.launched...)
}

type fakeReportCache struct {
	mu      sync.Mutex
	reports map[string]*model.StubReport
	gets    int
	sets    int
	getErr  error
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{reports: make(map[string]*model.StubReport)}
}

func (f *fakeReportCache) Get(ctx context.Context, executionID string) (*model.StubReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.reports[executionID], nil
}

func (f *fakeReportCache) Set(ctx context.Context, executionID string, report *model.StubReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.reports[executionID] = report
	return nil
}

var errBoom = errors.New("boom")

func mustSpec(executionID string) *model.JobSpec {
	spec, err := model.NewJobSpec(executionID, "Acme",
		[]string{"Globex"},
		[]string{"What is the best CRM?"},
		[]string{"gpt-4o-mini"},
		"user-1")
	if err != nil {
		panic(err)
	}
	return spec
}
