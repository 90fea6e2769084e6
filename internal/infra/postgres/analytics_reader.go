package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/sync/errgroup"

	"hitest/internal/app"
	"hitest/internal/domain"
)

// AnalyticsReader loads read-side datasets straight from Postgres, one query per table,
// run concurrently.
type AnalyticsReader struct {
	pool *pgxpool.Pool
}

func NewAnalyticsReader(pool *pgxpool.Pool) *AnalyticsReader {
	return &AnalyticsReader{pool: pool}
}

var _ app.AnalyticsReader = (*AnalyticsReader)(nil)

func (r *AnalyticsReader) TestDataset(ctx context.Context, testID string) (app.Dataset, error) {
	t, err := loadTestRow(ctx, r.pool, testID)
	if err != nil {
		return app.Dataset{}, err
	}
	ds := app.Dataset{Tests: []domain.Test{t}}
	const bySession = `WHERE session_id IN (SELECT id FROM test_sessions WHERE test_id = $1)`

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ds.Tasks, err = loadTasks(ctx, r.pool, `WHERE test_id = $1`, testID)
		return err
	})
	g.Go(func() (err error) {
		ds.Questions, err = loadQuestions(ctx, r.pool, `WHERE test_id = $1`, testID)
		return err
	})
	g.Go(func() (err error) {
		ds.Sessions, err = r.sessions(ctx, `WHERE test_id = $1`, testID)
		return err
	})
	g.Go(func() (err error) {
		ds.Results, err = r.results(ctx, bySession, testID)
		return err
	})
	g.Go(func() (err error) {
		ds.Answers, err = r.answers(ctx, bySession, testID)
		return err
	})
	if err := g.Wait(); err != nil {
		return app.Dataset{}, err
	}
	return ds, nil
}

func (r *AnalyticsReader) PlatformDataset(ctx context.Context) (app.Dataset, error) {
	var ds app.Dataset
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ds.Tests, err = r.tests(ctx)
		return err
	})
	g.Go(func() (err error) {
		ds.Tasks, err = loadTasks(ctx, r.pool, "")
		return err
	})
	g.Go(func() (err error) {
		ds.Questions, err = loadQuestions(ctx, r.pool, "")
		return err
	})
	g.Go(func() (err error) {
		ds.Sessions, err = r.sessions(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		ds.Results, err = r.results(ctx, "")
		return err
	})
	g.Go(func() (err error) {
		ds.Answers, err = r.answers(ctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return app.Dataset{}, err
	}
	return ds, nil
}

func (r *AnalyticsReader) tests(ctx context.Context) ([]domain.Test, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+testColumns+` FROM tests ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("load tests: %w", err)
	}
	defer rows.Close()
	var out []domain.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AnalyticsReader) sessions(ctx context.Context, where string, args ...any) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, test_id, prolific_pid, study_id, external_session_id, source, user_agent,
		start_time, end_time, total_duration, flagged, validity FROM test_sessions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		var validity string
		if err := rows.Scan(&s.ID, &s.TestID, &s.ProlificPID, &s.StudyID, &s.ExternalSessionID, &s.Source, &s.UserAgent,
			&s.StartTime, &s.EndTime, &s.TotalDuration, &s.Flagged, &validity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Validity = domain.Validity(validity)
		s.StartTime = s.StartTime.UTC()
		if s.EndTime != nil {
			end := s.EndTime.UTC()
			s.EndTime = &end
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *AnalyticsReader) results(ctx context.Context, where string, args ...any) ([]domain.TaskResult, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, task_id, duration_seconds, blur_count, completed FROM task_results `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("load task results: %w", err)
	}
	defer rows.Close()
	var out []domain.TaskResult
	for rows.Next() {
		var tr domain.TaskResult
		if err := rows.Scan(&tr.ID, &tr.SessionID, &tr.TaskID, &tr.DurationSeconds, &tr.BlurCount, &tr.Completed); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// answers selects value as text so the JSON document reaches ParseAnswerValue unchanged.
func (r *AnalyticsReader) answers(ctx context.Context, where string, args ...any) ([]domain.Answer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, question_id, value::text FROM answers `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()
	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		var raw string
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &raw); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if a.Value, err = domain.ParseAnswerValue([]byte(raw)); err != nil {
			return nil, fmt.Errorf("parse answer %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
