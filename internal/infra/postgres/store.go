package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"hitest/internal/app"
	"hitest/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Open connects bun to Postgres through pgdriver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store persists tests and sessions with bun. Completion runs in one transaction.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

var (
	_ app.TestRepository    = (*Store)(nil)
	_ app.SessionRepository = (*Store)(nil)
)

func (s *Store) CreateTest(ctx context.Context, t *domain.Test) error {
	m := fromTest(*t)
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	return nil
}

func (s *Store) ListTests(ctx context.Context) ([]domain.Test, error) {
	var rows []testModel
	if err := s.db.NewSelect().Model(&rows).OrderExpr("created_at DESC, id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	out := make([]domain.Test, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (s *Store) GetTest(ctx context.Context, id string) (domain.Test, error) {
	var m testModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Test{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("get test: %w", err)
	}
	t := m.toDomain()

	var tasks []taskModel
	if err := s.db.NewSelect().Model(&tasks).Where("test_id = ?", id).OrderExpr("sort_order, id").Scan(ctx); err != nil {
		return domain.Test{}, fmt.Errorf("get tasks: %w", err)
	}
	var questions []questionModel
	if err := s.db.NewSelect().Model(&questions).Where("test_id = ?", id).OrderExpr("sort_order, id").Scan(ctx); err != nil {
		return domain.Test{}, fmt.Errorf("get questions: %w", err)
	}
	t.Tasks = make([]domain.Task, 0, len(tasks))
	for _, tm := range tasks {
		t.Tasks = append(t.Tasks, tm.toDomain())
	}
	t.Questions = make([]domain.Question, 0, len(questions))
	for _, qm := range questions {
		t.Questions = append(t.Questions, qm.toDomain())
	}
	return t, nil
}

func (s *Store) UpdateTest(ctx context.Context, t *domain.Test) error {
	m := fromTest(*t)
	res, err := s.db.NewUpdate().Model(&m).
		Column("title", "description", "demo_url", "completion_code", "status", "min_total_seconds").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update test: %w", err)
	}
	return expectOne(res, domain.ErrTestNotFound)
}

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	m := fromTask(*t)
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isViolation(err, foreignKeyViolation) {
			return domain.ErrTestNotFound
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, testID, id string) (domain.Task, error) {
	var m taskModel
	err := s.db.NewSelect().Model(&m).Where("id = ? AND test_id = ?", id, testID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	m := fromTask(*t)
	res, err := s.db.NewUpdate().Model(&m).
		Column("sort_order", "instruction_text", "min_time_seconds").
		Where("id = ? AND test_id = ?", t.ID, t.TestID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectOne(res, domain.ErrTaskNotFound)
}

func (s *Store) DeleteTask(ctx context.Context, testID, id string) error {
	res, err := s.db.NewDelete().Model((*taskModel)(nil)).Where("id = ? AND test_id = ?", id, testID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return expectOne(res, domain.ErrTaskNotFound)
}

func (s *Store) CreateQuestion(ctx context.Context, q *domain.Question) error {
	m := fromQuestion(*q)
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isViolation(err, foreignKeyViolation) {
			return domain.ErrTestNotFound
		}
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) GetQuestion(ctx context.Context, testID, id string) (domain.Question, error) {
	var m questionModel
	err := s.db.NewSelect().Model(&m).Where("id = ? AND test_id = ?", id, testID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	m := fromQuestion(*q)
	res, err := s.db.NewUpdate().Model(&m).
		Column("sort_order", "label", "type", "options", "required").
		Where("id = ? AND test_id = ?", q.ID, q.TestID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return expectOne(res, domain.ErrQuestionNotFound)
}

func (s *Store) DeleteQuestion(ctx context.Context, testID, id string) error {
	res, err := s.db.NewDelete().Model((*questionModel)(nil)).Where("id = ? AND test_id = ?", id, testID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return expectOne(res, domain.ErrQuestionNotFound)
}

// CreateSession relies on the (test_id, prolific_pid) unique constraint, so two
// concurrent starts for the same participant produce exactly one row.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	m := fromSession(*sess)
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isViolation(err, uniqueViolation) {
			return domain.ErrAlreadySubmitted
		}
		if isViolation(err, foreignKeyViolation) {
			return domain.ErrTestNotAvailable
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) FindSession(ctx context.Context, testID, prolificPID string) (domain.Session, bool, error) {
	var m sessionModel
	err := s.db.NewSelect().Model(&m).Where("test_id = ? AND prolific_pid = ?", testID, prolificPID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("find session: %w", err)
	}
	return m.toDomain(), true, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var m sessionModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return m.toDomain(), nil
}

// CompleteSession closes the session with a conditional update on end_time IS NULL and
// inserts its results and answers in the same transaction. A lost race updates zero rows
// and rolls back without writing anything.
func (s *Store) CompleteSession(ctx context.Context, c domain.Completion) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionModel)(nil)).
			Set("end_time = ?", c.EndTime).
			Set("total_duration = ?", c.TotalDuration).
			Set("flagged = ?", c.Flagged).
			Where("id = ?", c.SessionID).
			Where("end_time IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("complete session: %w", err)
		} else if n == 0 {
			exists, err := tx.NewSelect().Model((*sessionModel)(nil)).Where("id = ?", c.SessionID).Exists(ctx)
			if err != nil {
				return fmt.Errorf("complete session: %w", err)
			}
			if !exists {
				return domain.ErrSessionNotFound
			}
			return domain.ErrAlreadyCompleted
		}

		if len(c.Results) > 0 {
			rows := make([]taskResultModel, 0, len(c.Results))
			for _, r := range c.Results {
				rows = append(rows, taskResultModel{
					ID:              r.ID,
					SessionID:       r.SessionID,
					TaskID:          r.TaskID,
					DurationSeconds: r.DurationSeconds,
					BlurCount:       r.BlurCount,
					Completed:       r.Completed,
				})
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				if isViolation(err, foreignKeyViolation) {
					return domain.NewInvalidError("taskResults reference an unknown task")
				}
				return fmt.Errorf("insert task results: %w", err)
			}
		}
		if len(c.Answers) > 0 {
			rows := make([]answerModel, 0, len(c.Answers))
			for _, a := range c.Answers {
				rows = append(rows, answerModel{ID: a.ID, SessionID: a.SessionID, QuestionID: a.QuestionID, Value: a.Value})
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				if isViolation(err, foreignKeyViolation) {
					return domain.NewInvalidError("answers reference an unknown question")
				}
				return fmt.Errorf("insert answers: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) SetValidity(ctx context.Context, id string, v domain.Validity) error {
	res, err := s.db.NewUpdate().Model((*sessionModel)(nil)).
		Set("validity = ?", string(v)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set validity: %w", err)
	}
	return expectOne(res, domain.ErrSessionNotFound)
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isViolation(err error, code string) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == code
}
