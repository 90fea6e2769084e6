package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hitest/internal/domain"
)

func TestStoreGetTestSortsChildren(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	_ = store.CreateTask(ctx, &domain.Task{ID: "task-0", TestID: "test-1", Order: 1, InstructionText: "Search"})
	_ = store.CreateTask(ctx, &domain.Task{ID: "task-2", TestID: "test-1", Order: 0, InstructionText: "Log in"})

	got, err := store.GetTest(ctx, "test-1")
	if err != nil {
		t.Fatalf("get test: %v", err)
	}
	ids := []string{got.Tasks[0].ID, got.Tasks[1].ID, got.Tasks[2].ID}
	want := []string{"task-2", "task-0", "task-1"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("task order = %v, want %v", ids, want)
		}
	}
}

func TestStoreChildrenAreScopedToTest(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	if _, err := store.GetTask(ctx, "other", "task-1"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected task not found, got %v", err)
	}
	if err := store.DeleteQuestion(ctx, "other", "q-1"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if err := store.CreateTask(ctx, &domain.Task{ID: "x", TestID: "missing"}); !errors.Is(err, domain.ErrTestNotFound) {
		t.Fatalf("expected test not found, got %v", err)
	}
}

func TestStoreRejectsDuplicateParticipant(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	first := domain.Session{ID: "s1", TestID: "test-1", ProlificPID: "pid", Validity: domain.ValidityPending}
	if err := store.CreateSession(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := domain.Session{ID: "s2", TestID: "test-1", ProlificPID: "pid"}
	if err := store.CreateSession(ctx, &dup); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	if _, found, _ := store.FindSession(ctx, "test-1", "pid"); !found {
		t.Fatalf("expected session to be found")
	}
}

func TestStoreCompleteSessionExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	sess := domain.Session{ID: "s1", TestID: "test-1", ProlificPID: "pid", StartTime: time.Now()}
	if err := store.CreateSession(ctx, &sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CompleteSession(ctx, domain.Completion{
				SessionID:     "s1",
				EndTime:       time.Now(),
				TotalDuration: 30,
				Results:       []domain.TaskResult{{ID: "r", SessionID: "s1", TaskID: "task-1", Completed: true}},
			})
			if err == nil {
				wins.Add(1)
			} else if !errors.Is(err, domain.ErrAlreadyCompleted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one completion, got %d", wins.Load())
	}
	ds, err := store.TestDataset(ctx, "test-1")
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	if len(ds.Results) != 1 {
		t.Fatalf("expected one result row, got %d", len(ds.Results))
	}
}
