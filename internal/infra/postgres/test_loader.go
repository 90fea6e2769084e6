package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"hitest/internal/domain"
)

// TestLoader reads a test definition with its tasks and questions for the public cache.
type TestLoader struct {
	pool *pgxpool.Pool
}

func NewTestLoader(pool *pgxpool.Pool) *TestLoader {
	return &TestLoader{pool: pool}
}

func (l *TestLoader) LoadTest(ctx context.Context, id string) (domain.Test, error) {
	t, err := loadTestRow(ctx, l.pool, id)
	if err != nil {
		return domain.Test{}, err
	}
	if t.Tasks, err = loadTasks(ctx, l.pool, `WHERE test_id = $1`, id); err != nil {
		return domain.Test{}, err
	}
	if t.Questions, err = loadQuestions(ctx, l.pool, `WHERE test_id = $1`, id); err != nil {
		return domain.Test{}, err
	}
	return t, nil
}

const testColumns = `id, title, description, demo_url, completion_code, status, min_total_seconds, created_at`

func loadTestRow(ctx context.Context, pool *pgxpool.Pool, id string) (domain.Test, error) {
	row := pool.QueryRow(ctx, `SELECT `+testColumns+` FROM tests WHERE id = $1`, id)
	t, err := scanTest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("load test: %w", err)
	}
	return t, nil
}

func scanTest(row pgx.Row) (domain.Test, error) {
	var t domain.Test
	var status string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.DemoURL, &t.CompletionCode, &status, &t.MinTotalSeconds, &t.CreatedAt); err != nil {
		return domain.Test{}, err
	}
	t.Status = domain.TestStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func loadTasks(ctx context.Context, pool *pgxpool.Pool, where string, args ...any) ([]domain.Task, error) {
	rows, err := pool.Query(ctx, `SELECT id, test_id, sort_order, instruction_text, min_time_seconds FROM tasks `+where+` ORDER BY sort_order, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()
	out := []domain.Task{}
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.TestID, &t.Order, &t.InstructionText, &t.MinTimeSeconds); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadQuestions(ctx context.Context, pool *pgxpool.Pool, where string, args ...any) ([]domain.Question, error) {
	rows, err := pool.Query(ctx, `SELECT id, test_id, sort_order, label, type, options, required FROM questions `+where+` ORDER BY sort_order, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()
	out := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		var qType string
		if err := rows.Scan(&q.ID, &q.TestID, &q.Order, &q.Label, &qType, &q.Options, &q.Required); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		out = append(out, q)
	}
	return out, rows.Err()
}
