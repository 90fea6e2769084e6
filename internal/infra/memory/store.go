package memory

import (
	"context"
	"sort"
	"sync"

	"hitest/internal/app"
	"hitest/internal/domain"
)

// Store is an in-memory implementation of the test, session and analytics ports.
// It backs local development and the service tests.
type Store struct {
	mu        sync.RWMutex
	tests     map[string]domain.Test
	tasks     map[string]domain.Task
	questions map[string]domain.Question
	sessions  map[string]domain.Session
	// participants indexes sessions by (testID, prolificPID).
	participants map[[2]string]string
	results      []domain.TaskResult
	answers      []domain.Answer
}

func NewStore() *Store {
	return &Store{
		tests:        make(map[string]domain.Test),
		tasks:        make(map[string]domain.Task),
		questions:    make(map[string]domain.Question),
		sessions:     make(map[string]domain.Session),
		participants: make(map[[2]string]string),
	}
}

var (
	_ app.TestRepository    = (*Store)(nil)
	_ app.SessionRepository = (*Store)(nil)
	_ app.AnalyticsReader   = (*Store)(nil)
	_ TestLoader            = (*Store)(nil)
)

func (s *Store) CreateTest(_ context.Context, t *domain.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *t
	stored.Tasks, stored.Questions = nil, nil
	s.tests[t.ID] = stored
	return nil
}

func (s *Store) ListTests(_ context.Context) ([]domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Test, 0, len(s.tests))
	for _, t := range s.tests {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetTest(_ context.Context, id string) (domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[id]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	t.Tasks = s.tasksLocked(id)
	t.Questions = s.questionsLocked(id)
	return t, nil
}

// LoadTest lets the store back a TestCache directly.
func (s *Store) LoadTest(ctx context.Context, id string) (domain.Test, error) {
	return s.GetTest(ctx, id)
}

func (s *Store) UpdateTest(_ context.Context, t *domain.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.ID]; !ok {
		return domain.ErrTestNotFound
	}
	stored := *t
	stored.Tasks, stored.Questions = nil, nil
	s.tests[t.ID] = stored
	return nil
}

func (s *Store) CreateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.TestID]; !ok {
		return domain.ErrTestNotFound
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *Store) GetTask(_ context.Context, testID, id string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.TestID != testID {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[t.ID]; !ok || cur.TestID != t.TestID {
		return domain.ErrTaskNotFound
	}
	s.tasks[t.ID] = *t
	return nil
}

func (s *Store) DeleteTask(_ context.Context, testID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[id]; !ok || cur.TestID != testID {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	kept := s.results[:0]
	for _, r := range s.results {
		if r.TaskID != id {
			kept = append(kept, r)
		}
	}
	s.results = kept
	return nil
}

func (s *Store) CreateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[q.TestID]; !ok {
		return domain.ErrTestNotFound
	}
	s.questions[q.ID] = cloneQuestion(*q)
	return nil
}

func (s *Store) GetQuestion(_ context.Context, testID, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok || q.TestID != testID {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return cloneQuestion(q), nil
}

func (s *Store) UpdateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.questions[q.ID]; !ok || cur.TestID != q.TestID {
		return domain.ErrQuestionNotFound
	}
	s.questions[q.ID] = cloneQuestion(*q)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, testID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.questions[id]; !ok || cur.TestID != testID {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	kept := s.answers[:0]
	for _, a := range s.answers {
		if a.QuestionID != id {
			kept = append(kept, a)
		}
	}
	s.answers = kept
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{sess.TestID, sess.ProlificPID}
	if _, exists := s.participants[key]; exists {
		return domain.ErrAlreadySubmitted
	}
	s.participants[key] = sess.ID
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) FindSession(_ context.Context, testID, prolificPID string) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.participants[[2]string{testID, prolificPID}]
	if !ok {
		return domain.Session{}, false, nil
	}
	return s.sessions[id], true, nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

// CompleteSession checks and writes under one lock, so concurrent completions of the
// same session see exactly one winner.
func (s *Store) CompleteSession(_ context.Context, c domain.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[c.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.Completed() {
		return domain.ErrAlreadyCompleted
	}
	end, duration := c.EndTime, c.TotalDuration
	sess.EndTime = &end
	sess.TotalDuration = &duration
	sess.Flagged = c.Flagged
	s.sessions[sess.ID] = sess
	s.results = append(s.results, c.Results...)
	s.answers = append(s.answers, c.Answers...)
	return nil
}

func (s *Store) SetValidity(_ context.Context, id string, v domain.Validity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Validity = v
	s.sessions[id] = sess
	return nil
}

func (s *Store) TestDataset(_ context.Context, testID string) (app.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[testID]
	if !ok {
		return app.Dataset{}, domain.ErrTestNotFound
	}
	ds := app.Dataset{
		Tests:     []domain.Test{t},
		Tasks:     s.tasksLocked(testID),
		Questions: s.questionsLocked(testID),
	}
	inTest := make(map[string]struct{})
	for _, sess := range s.sessions {
		if sess.TestID == testID {
			ds.Sessions = append(ds.Sessions, sess)
			inTest[sess.ID] = struct{}{}
		}
	}
	for _, r := range s.results {
		if _, ok := inTest[r.SessionID]; ok {
			ds.Results = append(ds.Results, r)
		}
	}
	for _, a := range s.answers {
		if _, ok := inTest[a.SessionID]; ok {
			ds.Answers = append(ds.Answers, a)
		}
	}
	return ds, nil
}

func (s *Store) PlatformDataset(_ context.Context) (app.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds := app.Dataset{
		Results: append([]domain.TaskResult(nil), s.results...),
		Answers: append([]domain.Answer(nil), s.answers...),
	}
	for _, t := range s.tests {
		ds.Tests = append(ds.Tests, t)
	}
	for _, t := range s.tasks {
		ds.Tasks = append(ds.Tasks, t)
	}
	for _, q := range s.questions {
		ds.Questions = append(ds.Questions, cloneQuestion(q))
	}
	for _, sess := range s.sessions {
		ds.Sessions = append(ds.Sessions, sess)
	}
	return ds, nil
}

func (s *Store) tasksLocked(testID string) []domain.Task {
	out := []domain.Task{}
	for _, t := range s.tasks {
		if t.TestID == testID {
			out = append(out, t)
		}
	}
	domain.SortTasks(out)
	return out
}

func (s *Store) questionsLocked(testID string) []domain.Question {
	out := []domain.Question{}
	for _, q := range s.questions {
		if q.TestID == testID {
			out = append(out, cloneQuestion(q))
		}
	}
	domain.SortQuestions(out)
	return out
}

func cloneQuestion(q domain.Question) domain.Question {
	if q.Options != nil {
		q.Options = append([]string(nil), q.Options...)
	}
	return q
}
