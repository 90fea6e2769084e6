package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"hitest/internal/app"
	"hitest/internal/domain"
	"hitest/internal/infra/memory"
)

func TestCreateRequiresFields(t *testing.T) {
	svc := app.NewTestService(memory.NewStore(), nil, "")
	ctx := context.Background()

	if _, err := svc.Create(ctx, app.CreateTestInput{Title: "  ", DemoURL: "https://x", CompletionCode: "C"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	test, err := svc.Create(ctx, app.CreateTestInput{Title: " Nav ", DemoURL: "https://x", CompletionCode: "C", MinTotalSeconds: app.IntValue(0)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if test.Title != "Nav" || test.Status != domain.StatusDraft || test.MinTotalSeconds != nil {
		t.Fatalf("unexpected test %+v", test)
	}
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	svc := app.NewTestService(memory.NewStore(), nil, "")
	ctx := context.Background()
	test, err := svc.Create(ctx, app.CreateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.Update(ctx, test.ID, app.UpdateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C", Status: "archived"})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := svc.Update(ctx, "missing", app.UpdateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuestionOptionsOnlyForMultipleChoice(t *testing.T) {
	svc := app.NewTestService(memory.NewStore(), nil, "")
	ctx := context.Background()
	test, _ := svc.Create(ctx, app.CreateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C"})

	q, err := svc.AddQuestion(ctx, test.ID, app.QuestionInput{Label: "Comments", Type: domain.QuestionText, Options: []string{"a"}})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if q.Options != nil || !q.Required || q.Order != 1 {
		t.Fatalf("unexpected text question %+v", q)
	}

	typ := domain.QuestionMultipleChoice
	options := []string{"Yes", "No"}
	q, err = svc.UpdateQuestion(ctx, test.ID, app.QuestionPatch{ID: q.ID, Type: &typ, Options: &options})
	if err != nil {
		t.Fatalf("update question: %v", err)
	}
	if len(q.Options) != 2 || q.Label != "Comments" {
		t.Fatalf("unexpected multiple choice question %+v", q)
	}

	if _, err := svc.AddQuestion(ctx, test.ID, app.QuestionInput{Label: "Rate", Type: "stars"}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected unsupported type, got %v", err)
	}
}

func TestChildrenAreScopedToTheirTest(t *testing.T) {
	svc := app.NewTestService(memory.NewStore(), nil, "")
	ctx := context.Background()
	a, _ := svc.Create(ctx, app.CreateTestInput{Title: "A", DemoURL: "https://x", CompletionCode: "C"})
	b, _ := svc.Create(ctx, app.CreateTestInput{Title: "B", DemoURL: "https://x", CompletionCode: "C"})

	task, err := svc.AddTask(ctx, a.ID, app.TaskInput{InstructionText: "Find pricing", Order: app.IntValue(2)})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	text := "Find pricing fast"
	if _, err := svc.UpdateTask(ctx, b.ID, app.TaskPatch{ID: task.ID, InstructionText: &text}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected task lookup to be scoped, got %v", err)
	}
	if err := svc.RemoveTask(ctx, b.ID, task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected scoped delete, got %v", err)
	}
	updated, err := svc.UpdateTask(ctx, a.ID, app.TaskPatch{ID: task.ID, InstructionText: &text})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Order != 2 || updated.InstructionText != text {
		t.Fatalf("patch should only touch given fields: %+v", updated)
	}
}

func TestPublicReadsGoThroughCache(t *testing.T) {
	store := memory.NewStore()
	cache := memory.NewTestCache(store, time.Minute)
	svc := app.NewTestService(store, cache, "https://hitest.example.com/")
	ctx := context.Background()

	test, _ := svc.Create(ctx, app.CreateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C"})
	if _, err := svc.GetPublic(ctx, test.ID); !errors.Is(err, domain.ErrTestNotPublished) {
		t.Fatalf("expected ErrTestNotPublished, got %v", err)
	}
	if _, err := svc.ForParticipant(ctx, test.ID); !errors.Is(err, domain.ErrTestNotAvailable) {
		t.Fatalf("expected ErrTestNotAvailable, got %v", err)
	}

	if _, err := svc.Update(ctx, test.ID, app.UpdateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C", Status: domain.StatusPublished}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := svc.GetPublic(ctx, test.ID)
	if err != nil {
		t.Fatalf("public read after publish should see fresh data: %v", err)
	}
	if got.Status != domain.StatusPublished {
		t.Fatalf("unexpected status %s", got.Status)
	}

	admin, err := svc.Get(ctx, test.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := "https://hitest.example.com/test/" + test.ID + "?PROLIFIC_PID=<PID>&STUDY_ID=<STUDY_ID>&SESSION_ID=<SESSION_ID>"
	if admin.ParticipantLink != want {
		t.Fatalf("participant link = %q", admin.ParticipantLink)
	}
}

func TestCompletionURLEscapesCode(t *testing.T) {
	got := app.CompletionURL("A B&C")
	if got != "https://app.prolific.com/submissions/complete?cc=A+B%26C" {
		t.Fatalf("unexpected url %s", got)
	}
}
