package integration

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"hitest/internal/app"
	"hitest/internal/domain"
	"hitest/internal/infra/postgres"
	pgmigrations "hitest/internal/infra/postgres/migrations"
	infraredis "hitest/internal/infra/redis"
)

type stack struct {
	tests     *app.TestService
	sessions  *app.SessionService
	analytics *app.AnalyticsService
	exports   *app.ExportService
	store     *postgres.Store
}

func TestStudyEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	s := newStack(t, ctx, pgURL, redisURL)

	test, err := s.tests.Create(ctx, app.CreateTestInput{
		Title:           "Checkout flow",
		DemoURL:         "https://demo.example.com",
		CompletionCode:  "C0DE",
		MinTotalSeconds: app.IntValue(60),
	})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	task, err := s.tests.AddTask(ctx, test.ID, app.TaskInput{InstructionText: "Add an item to the cart"})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	seq, err := s.tests.AddQuestion(ctx, test.ID, app.QuestionInput{Label: "How easy was it?", Type: domain.QuestionScale1to5})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	choice, err := s.tests.AddQuestion(ctx, test.ID, app.QuestionInput{
		Label: "Which device", Type: domain.QuestionMultipleChoice, Options: []string{"Phone", "Laptop"}, Order: app.IntValue(2),
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}

	// Reading the draft populates the cache; publishing must invalidate it.
	if _, err := s.tests.GetPublic(ctx, test.ID); !errors.Is(err, domain.ErrTestNotPublished) {
		t.Fatalf("expected draft to be hidden, got %v", err)
	}
	if _, err := s.tests.Update(ctx, test.ID, app.UpdateTestInput{
		Title: test.Title, DemoURL: test.DemoURL, CompletionCode: test.CompletionCode,
		Status: domain.StatusPublished, MinTotalSeconds: app.IntValue(60),
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	public, err := s.tests.ForParticipant(ctx, test.ID)
	if err != nil {
		t.Fatalf("participant read: %v", err)
	}
	if len(public.Tasks) != 1 || len(public.Questions) != 2 || public.Questions[1].Options[1] != "Laptop" {
		t.Fatalf("unexpected participant test %+v", public)
	}

	start := app.StartInput{TestID: test.ID, ProlificPID: "PID-1", StudyID: "STUDY", ExternalSessionID: "EXT-1"}
	session, err := s.sessions.Start(ctx, start)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.sessions.Start(ctx, start); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected duplicate start to conflict, got %v", err)
	}

	// An unknown task id violates the foreign key and rolls the completion back.
	_, err = s.sessions.Complete(ctx, app.CompleteInput{
		SessionID:   session.ID,
		TaskResults: []app.TaskTiming{{TaskID: "00000000-0000-0000-0000-000000000000", DurationSeconds: 3}},
	})
	if !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid task reference, got %v", err)
	}
	stored, err := s.store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Completed() {
		t.Fatalf("failed completion must not close the session")
	}

	blur := 2
	duration := 42.0
	in := app.CompleteInput{
		SessionID:     session.ID,
		TotalDuration: &duration,
		TaskResults:   []app.TaskTiming{{TaskID: task.ID, DurationSeconds: 17.5, BlurCount: &blur}},
		Answers: []app.AnswerInput{
			{QuestionID: seq.ID, Value: mustAnswer(t, `{"value":4,"label":"Easy"}`)},
			{QuestionID: choice.ID, Value: domain.TextValue("Laptop")},
		},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, conflicts int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.sessions.Complete(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
				if !res.Flagged {
					t.Errorf("42s under a 60s minimum should flag")
				}
			case errors.Is(err, domain.ErrAlreadyCompleted):
				conflicts++
			default:
				t.Errorf("complete: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || conflicts != 4 {
		t.Fatalf("expected exactly one completion, got %d ok and %d conflicts", succeeded, conflicts)
	}

	if _, err := s.sessions.SetValidity(ctx, session.ID, domain.ValidityApproved); err != nil {
		t.Fatalf("set validity: %v", err)
	}

	analytics, err := s.analytics.ForTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if analytics.Summary.CompletionRate != 100 || analytics.Summary.AvgSeqScore == nil || *analytics.Summary.AvgSeqScore != 4 {
		t.Fatalf("unexpected summary %+v", analytics.Summary)
	}
	if row := analytics.TaskBreakdown[0]; row.AvgDurationSeconds == nil || *row.AvgDurationSeconds != 18 {
		t.Fatalf("unexpected task breakdown %+v", row)
	}
	if p := analytics.Participants[0]; p.Validity != domain.ValidityApproved || !p.Flagged {
		t.Fatalf("unexpected participant %+v", p)
	}

	dashboard, err := s.analytics.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dashboard.Stats.CompletedSessions != 1 || len(dashboard.CompletionTrend) != 1 {
		t.Fatalf("unexpected dashboard %+v", dashboard.Stats)
	}

	export, err := s.exports.Export(ctx, test.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(export.Data))).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 2 || records[1][2] != "EXT-1" || records[1][5] != "18" || records[1][6] != "2" || records[1][8] != "Laptop" {
		t.Fatalf("unexpected export %v", records)
	}
}

func TestRedisRateLimiterSharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startRedis(t, ctx)
	defer cleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	a, b := infraredis.NewRateLimiter(client), infraredis.NewRateLimiter(client)
	for i, l := range []*infraredis.RateLimiter{a, b, a} {
		ok, err := l.Allow(ctx, "start:203.0.113.9", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d should pass: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := b.Allow(ctx, "start:203.0.113.9", 3, time.Minute); ok {
		t.Fatalf("fourth call across instances should be limited")
	}
}

func newStack(t *testing.T, ctx context.Context, pgURL, redisURL string) *stack {
	t.Helper()
	db := postgres.Open(pgURL)
	t.Cleanup(func() { db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	store := postgres.NewStore(db)
	reader := postgres.NewAnalyticsReader(pool)
	cache := infraredis.NewTestCache(redisClient, postgres.NewTestLoader(pool), 5*time.Minute)
	return &stack{
		tests:     app.NewTestService(store, cache, "http://localhost:8080"),
		sessions:  app.NewSessionService(store, store, app.NewFeed()),
		analytics: app.NewAnalyticsService(reader),
		exports:   app.NewExportService(reader),
		store:     store,
	}
}

func mustAnswer(t *testing.T, raw string) domain.AnswerValue {
	t.Helper()
	v, err := domain.ParseAnswerValue([]byte(raw))
	if err != nil {
		t.Fatalf("parse answer: %v", err)
	}
	return v
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "hitest", "POSTGRES_PASSWORD": "hitest", "POSTGRES_DB": "hitest"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://hitest:hitest@%s:%s/hitest?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
