//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"ai-brand-diagnosis/internal/domain/model"
)

func seedDeadLetter(t *testing.T, repo *deadLetterRepo, execID, kind string, status model.DeadLetterStatus) *model.DeadLetterEntry {
	t.Helper()
	now := time.Now()
	e := &model.DeadLetterEntry{
		ID:          uuid.NewString(),
		ExecutionID: execID,
		TaskType:    "ai_call",
		Context:     `{"brand":"Acme"}`,
		ErrorKind:   kind,
		ErrorMsg:    "boom",
		RetryCount:  3,
		MaxRetries:  3,
		Priority:    1,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Insert(context.Background(), nil, e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return e
}

func TestDeadLetterRepo_InsertAndFind(t *testing.T) {
	cleanup(t)
	repo := NewDeadLetterRepo(testPool)
	e := seedDeadLetter(t, repo, "exec-1", "TIMEOUT", model.DeadLetterPending)

	got, err := repo.FindByID(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ErrorKind != "TIMEOUT" || got.Status != model.DeadLetterPending || got.Context != e.Context {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestDeadLetterRepo_UpdateStatusCAS(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewDeadLetterRepo(testPool)
	e := seedDeadLetter(t, repo, "exec-1", "TIMEOUT", model.DeadLetterPending)

	ok, err := repo.UpdateStatus(ctx, e.ID, model.DeadLetterPending, model.DeadLetterProcessing)
	if err != nil || !ok {
		t.Fatalf("first CAS must apply: ok=%v err=%v", ok, err)
	}
	// losing the race (or repeating) reports false, not an error
	ok, err = repo.UpdateStatus(ctx, e.ID, model.DeadLetterPending, model.DeadLetterProcessing)
	if err != nil || ok {
		t.Fatalf("second CAS must not apply: ok=%v err=%v", ok, err)
	}
}

func TestDeadLetterRepo_ListAndStats(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewDeadLetterRepo(testPool)
	seedDeadLetter(t, repo, "exec-1", "TIMEOUT", model.DeadLetterPending)
	seedDeadLetter(t, repo, "exec-1", "RATE_LIMITED", model.DeadLetterResolved)
	seedDeadLetter(t, repo, "exec-2", "TIMEOUT", model.DeadLetterPending)

	entries, total, err := repo.List(ctx, model.DeadLetterFilter{ExecutionID: "exec-1", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(entries) != 2 {
		t.Fatalf("expected 2 entries for exec-1, got total=%d len=%d", total, len(entries))
	}

	entries, total, err = repo.List(ctx, model.DeadLetterFilter{Status: model.DeadLetterPending, Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(entries) != 1 {
		t.Fatalf("paged list: want total=2 len=1, got total=%d len=%d", total, len(entries))
	}

	stats, err := repo.Stats(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.ByKind["TIMEOUT"] != 1 || stats.ByStatus["resolved"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Oldest == nil {
		t.Fatalf("expected an oldest pending timestamp")
	}
}

func TestDeadLetterRepo_DeleteResolvedBefore(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewDeadLetterRepo(testPool)
	old := seedDeadLetter(t, repo, "exec-1", "TIMEOUT", model.DeadLetterResolved)
	seedDeadLetter(t, repo, "exec-1", "TIMEOUT", model.DeadLetterPending)

	// age the resolved entry
	if _, err := testPool.Exec(ctx,
		`UPDATE dead_letters SET updated_at = now() - interval '40 days' WHERE id = $1`, old.ID); err != nil {
		t.Fatalf("age entry: %v", err)
	}

	n, err := repo.DeleteResolvedBefore(ctx, time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("DeleteResolvedBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept row, got %d", n)
	}
	// the pending entry must survive
	_, total, err := repo.List(ctx, model.DeadLetterFilter{ExecutionID: "exec-1", Limit: 10})
	if err != nil || total != 1 {
		t.Fatalf("pending entry should survive sweep: total=%d err=%v", total, err)
	}
}
