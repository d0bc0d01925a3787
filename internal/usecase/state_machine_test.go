package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
)

func newTestStateMachine(repo *fakeDiagRepo) *StateMachine {
	logger := zerolog.Nop()
	if repo == nil {
		return NewStateMachine(nil, &logger)
	}
	return NewStateMachine(repo, &logger)
}

func registered(t *testing.T, sm *StateMachine, executionID string) *model.JobState {
	t.Helper()
	return sm.Register(mustSpec(executionID), "report-"+executionID)
}

func TestStateMachine_Register(t *testing.T) {
	t.Parallel()
	sm := newTestStateMachine(nil)

	st := registered(t, sm, "exec-1")
	if st.Status != model.JobStatusInitializing || st.Stage != "created" {
		t.Fatalf("fresh state wrong: %+v", st)
	}
	if st.ReportID != "report-exec-1" || st.BrandName != "Acme" || st.UserID != "user-1" {
		t.Fatalf("identity fields not carried: %+v", st)
	}
	if got := sm.Get("exec-1"); got == nil || got.ExecutionID != "exec-1" {
		t.Fatalf("Get after Register: %+v", got)
	}
}

func TestStateMachine_HappyPath(t *testing.T) {
	t.Parallel()
	sm := newTestStateMachine(nil)
	ctx := context.Background()
	registered(t, sm, "exec-2")

	steps := []struct {
		event model.JobEvent
		want  model.JobStatus
	}{
		{model.EventSucceed, model.JobStatusAIFetching},
		{model.EventAllComplete, model.JobStatusAnalyzing},
		{model.EventSucceed, model.JobStatusCompleted},
	}
	for _, s := range steps {
		ok, err := sm.Transition(ctx, "exec-2", s.event)
		if err != nil || !ok {
			t.Fatalf("event %s: ok=%v err=%v", s.event, ok, err)
		}
		if got := sm.Get("exec-2").Status; got != s.want {
			t.Fatalf("after %s: want %s, got %s", s.event, s.want, got)
		}
	}
}

func TestStateMachine_IllegalTransitionRejected(t *testing.T) {
	t.Parallel()
	sm := newTestStateMachine(nil)
	ctx := context.Background()
	registered(t, sm, "exec-3")

	// all_complete is only legal from AI_FETCHING
	ok, err := sm.Transition(ctx, "exec-3", model.EventAllComplete)
	if err != nil {
		t.Fatalf("illegal transition must not error: %v", err)
	}
	if ok {
		t.Fatalf("illegal transition must report false")
	}
	if got := sm.Get("exec-3").Status; got != model.JobStatusInitializing {
		t.Fatalf("state mutated by rejected transition: %s", got)
	}
}

func TestStateMachine_TerminalStatesAbsorb(t *testing.T) {
	t.Parallel()
	sm := newTestStateMachine(nil)
	ctx := context.Background()
	registered(t, sm, "exec-4")

	if ok, _ := sm.Transition(ctx, "exec-4", model.EventFail); !ok {
		t.Fatalf("fail from INITIALIZING should be legal")
	}
	for _, ev := range []model.JobEvent{
		model.EventSucceed, model.EventFail, model.EventAllComplete,
		model.EventTimeout, model.EventPartialSucceed,
	} {
		if ok, _ := sm.Transition(ctx, "exec-4", ev); ok {
			t.Fatalf("terminal FAILED accepted event %s", ev)
		}
	}
}

func TestStateMachine_UnknownExecution(t *testing.T) {
	t.Parallel()
	sm := newTestStateMachine(nil)

	ok, err := sm.Transition(context.Background(), "ghost", model.EventSucceed)
	if ok || err != nil {
		t.Fatalf("unknown execution: want (false, nil), got (%v, %v)", ok, err)
	}
	if st := sm.Get("ghost"); st != nil {
		t.Fatalf("Get on unknown execution must be nil")
	}
}

func TestStateMachine_UpdateProgress(t *testing.T) {
	t.Parallel()
	sm := newTestStateMachine(nil)
	ctx := context.Background()
	registered(t, sm, "exec-5")

	if err := sm.UpdateProgress(ctx, "exec-5", 120); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("progress > 100: want ErrInvalidArgument, got %v", err)
	}
	if err := sm.UpdateProgress(ctx, "exec-5", -1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("progress < 0: want ErrInvalidArgument, got %v", err)
	}
	if err := sm.UpdateProgress(ctx, "ghost", 50); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown execution: want ErrNotFound, got %v", err)
	}

	if err := sm.UpdateProgress(ctx, "exec-5", 60); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	// a decrease is warned about but still applied
	if err := sm.UpdateProgress(ctx, "exec-5", 40); err != nil {
		t.Fatalf("decreasing progress must apply: %v", err)
	}
	if got := sm.Get("exec-5").Progress; got != 40 {
		t.Fatalf("want progress 40, got %v", got)
	}
}

func TestStateMachine_PersistsThroughRepo(t *testing.T) {
	t.Parallel()
	repo := newFakeDiagRepo()
	sm := newTestStateMachine(repo)
	ctx := context.Background()

	spec := mustSpec("exec-6")
	st := sm.Register(spec, "report-6")
	if err := repo.SaveSpec(ctx, nil, spec, st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if ok, err := sm.Transition(ctx, "exec-6", model.EventSucceed); !ok || err != nil {
		t.Fatalf("Transition: ok=%v err=%v", ok, err)
	}
	persisted, err := repo.GetByExecutionID(ctx, "exec-6")
	if err != nil {
		t.Fatalf("GetByExecutionID: %v", err)
	}
	if persisted.Status != model.JobStatusAIFetching {
		t.Fatalf("transition not written through: %s", persisted.Status)
	}
}

func TestStateMachine_PersistenceFailureSurfaces(t *testing.T) {
	t.Parallel()
	repo := newFakeDiagRepo()
	repo.updateErr = errBoom
	sm := newTestStateMachine(repo)
	ctx := context.Background()
	registered(t, sm, "exec-7")

	ok, err := sm.Transition(ctx, "exec-7", model.EventSucceed)
	if !ok {
		t.Fatalf("the transition itself is legal and must report true")
	}
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("want ErrPersistence, got %v", err)
	}
}
