package app

import (
	"context"
	"time"

	"hitest/internal/domain"
)

// TestRepository persists tests and their child tasks and questions.
type TestRepository interface {
	CreateTest(ctx context.Context, t *domain.Test) error
	// ListTests returns tests newest first, without children.
	ListTests(ctx context.Context) ([]domain.Test, error)
	// GetTest returns the test with tasks and questions in rank order.
	GetTest(ctx context.Context, id string) (domain.Test, error)
	UpdateTest(ctx context.Context, t *domain.Test) error

	CreateTask(ctx context.Context, t *domain.Task) error
	GetTask(ctx context.Context, testID, id string) (domain.Task, error)
	UpdateTask(ctx context.Context, t *domain.Task) error
	DeleteTask(ctx context.Context, testID, id string) error

	CreateQuestion(ctx context.Context, q *domain.Question) error
	GetQuestion(ctx context.Context, testID, id string) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q *domain.Question) error
	DeleteQuestion(ctx context.Context, testID, id string) error
}

// SessionRepository persists participant sessions and their results.
type SessionRepository interface {
	// CreateSession returns domain.ErrAlreadySubmitted when (testID, prolificPID) exists.
	CreateSession(ctx context.Context, s *domain.Session) error
	FindSession(ctx context.Context, testID, prolificPID string) (domain.Session, bool, error)
	GetSession(ctx context.Context, id string) (domain.Session, error)
	// CompleteSession writes the completion atomically and only if the session has no end
	// time yet; otherwise it returns domain.ErrAlreadyCompleted and writes nothing.
	CompleteSession(ctx context.Context, c domain.Completion) error
	SetValidity(ctx context.Context, id string, v domain.Validity) error
}

// PublicTestRepository serves test definitions to participants, usually through a cache.
type PublicTestRepository interface {
	GetTest(ctx context.Context, id string) (domain.Test, error)
	Invalidate(ctx context.Context, id string)
}

// RateLimiter admits at most limit calls per key in each fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Dataset is the read-side snapshot the aggregations run over.
type Dataset struct {
	Tests     []domain.Test
	Tasks     []domain.Task
	Questions []domain.Question
	Sessions  []domain.Session
	Results   []domain.TaskResult
	Answers   []domain.Answer
}

// AnalyticsReader loads datasets for aggregation and export.
type AnalyticsReader interface {
	// TestDataset returns everything recorded for one test; Tests holds exactly that test.
	TestDataset(ctx context.Context, testID string) (Dataset, error)
	PlatformDataset(ctx context.Context) (Dataset, error)
}
