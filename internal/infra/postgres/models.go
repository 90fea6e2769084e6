package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"hitest/internal/domain"
)

type testModel struct {
	bun.BaseModel `bun:"table:tests"`

	ID              string    `bun:"id,pk"`
	Title           string    `bun:"title,notnull"`
	Description     *string   `bun:"description"`
	DemoURL         string    `bun:"demo_url,notnull"`
	CompletionCode  string    `bun:"completion_code,notnull"`
	Status          string    `bun:"status,notnull"`
	MinTotalSeconds *int      `bun:"min_total_seconds"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

type taskModel struct {
	bun.BaseModel `bun:"table:tasks"`

	ID              string `bun:"id,pk"`
	TestID          string `bun:"test_id,notnull"`
	Order           int    `bun:"sort_order,notnull"`
	InstructionText string `bun:"instruction_text,notnull"`
	MinTimeSeconds  *int   `bun:"min_time_seconds"`
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions"`

	ID       string   `bun:"id,pk"`
	TestID   string   `bun:"test_id,notnull"`
	Order    int      `bun:"sort_order,notnull"`
	Label    string   `bun:"label,notnull"`
	Type     string   `bun:"type,notnull"`
	Options  []string `bun:"options,array"`
	Required bool     `bun:"required,notnull"`
}

type sessionModel struct {
	bun.BaseModel `bun:"table:test_sessions"`

	ID                string     `bun:"id,pk"`
	TestID            string     `bun:"test_id,notnull"`
	ProlificPID       string     `bun:"prolific_pid,notnull"`
	StudyID           string     `bun:"study_id,notnull"`
	ExternalSessionID string     `bun:"external_session_id,notnull"`
	Source            string     `bun:"source,notnull"`
	UserAgent         *string    `bun:"user_agent"`
	StartTime         time.Time  `bun:"start_time,notnull"`
	EndTime           *time.Time `bun:"end_time"`
	TotalDuration     *int       `bun:"total_duration"`
	Flagged           bool       `bun:"flagged,notnull"`
	Validity          string     `bun:"validity,notnull"`
}

type taskResultModel struct {
	bun.BaseModel `bun:"table:task_results"`

	ID              string `bun:"id,pk"`
	SessionID       string `bun:"session_id,notnull"`
	TaskID          string `bun:"task_id,notnull"`
	DurationSeconds int    `bun:"duration_seconds,notnull"`
	BlurCount       *int   `bun:"blur_count"`
	Completed       bool   `bun:"completed,notnull"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:answers"`

	ID         string             `bun:"id,pk"`
	SessionID  string             `bun:"session_id,notnull"`
	QuestionID string             `bun:"question_id,notnull"`
	Value      domain.AnswerValue `bun:"value,notnull"`
}

func fromTest(t domain.Test) testModel {
	return testModel{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		DemoURL:         t.DemoURL,
		CompletionCode:  t.CompletionCode,
		Status:          string(t.Status),
		MinTotalSeconds: t.MinTotalSeconds,
		CreatedAt:       t.CreatedAt,
	}
}

func (m testModel) toDomain() domain.Test {
	return domain.Test{
		ID:              m.ID,
		Title:           m.Title,
		Description:     m.Description,
		DemoURL:         m.DemoURL,
		CompletionCode:  m.CompletionCode,
		Status:          domain.TestStatus(m.Status),
		MinTotalSeconds: m.MinTotalSeconds,
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

func fromTask(t domain.Task) taskModel {
	return taskModel{
		ID:              t.ID,
		TestID:          t.TestID,
		Order:           t.Order,
		InstructionText: t.InstructionText,
		MinTimeSeconds:  t.MinTimeSeconds,
	}
}

func (m taskModel) toDomain() domain.Task {
	return domain.Task{
		ID:              m.ID,
		TestID:          m.TestID,
		Order:           m.Order,
		InstructionText: m.InstructionText,
		MinTimeSeconds:  m.MinTimeSeconds,
	}
}

func fromQuestion(q domain.Question) questionModel {
	return questionModel{
		ID:       q.ID,
		TestID:   q.TestID,
		Order:    q.Order,
		Label:    q.Label,
		Type:     string(q.Type),
		Options:  q.Options,
		Required: q.Required,
	}
}

func (m questionModel) toDomain() domain.Question {
	return domain.Question{
		ID:       m.ID,
		TestID:   m.TestID,
		Order:    m.Order,
		Label:    m.Label,
		Type:     domain.QuestionType(m.Type),
		Options:  m.Options,
		Required: m.Required,
	}
}

func fromSession(s domain.Session) sessionModel {
	return sessionModel{
		ID:                s.ID,
		TestID:            s.TestID,
		ProlificPID:       s.ProlificPID,
		StudyID:           s.StudyID,
		ExternalSessionID: s.ExternalSessionID,
		Source:            s.Source,
		UserAgent:         s.UserAgent,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		TotalDuration:     s.TotalDuration,
		Flagged:           s.Flagged,
		Validity:          string(s.Validity),
	}
}

func (m sessionModel) toDomain() domain.Session {
	s := domain.Session{
		ID:                m.ID,
		TestID:            m.TestID,
		ProlificPID:       m.ProlificPID,
		StudyID:           m.StudyID,
		ExternalSessionID: m.ExternalSessionID,
		Source:            m.Source,
		UserAgent:         m.UserAgent,
		StartTime:         m.StartTime.UTC(),
		TotalDuration:     m.TotalDuration,
		Flagged:           m.Flagged,
		Validity:          domain.Validity(m.Validity),
	}
	if m.EndTime != nil {
		end := m.EndTime.UTC()
		s.EndTime = &end
	}
	return s
}
