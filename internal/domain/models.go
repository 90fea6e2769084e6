package domain

import (
	"sort"
	"time"
)

// TestStatus gates participant access; only published tests accept sessions.
type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusPublished TestStatus = "published"
)

func (s TestStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// QuestionType enumerates the survey question kinds.
type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionTextarea       QuestionType = "textarea"
	QuestionMultipleChoice QuestionType = "multipleChoice"
	QuestionScale1to5      QuestionType = "scale1to5"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionText, QuestionTextarea, QuestionMultipleChoice, QuestionScale1to5:
		return true
	}
	return false
}

// Validity is the admin review verdict for a session. It is independent of completion.
type Validity string

const (
	ValidityPending  Validity = "pending"
	ValidityApproved Validity = "approved"
	ValidityRejected Validity = "rejected"
)

func (v Validity) Valid() bool {
	return v == ValidityPending || v == ValidityApproved || v == ValidityRejected
}

// SourceProlific is the default recruitment source for new sessions.
const SourceProlific = "prolific"

// Test is a usability test with its ordered tasks and questions.
type Test struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	DemoURL         string     `json:"demoUrl"`
	CompletionCode  string     `json:"completionCode"`
	Status          TestStatus `json:"status"`
	MinTotalSeconds *int       `json:"minTotalSeconds"`
	CreatedAt       time.Time  `json:"createdAt"`
	Tasks           []Task     `json:"tasks,omitempty"`
	Questions       []Question `json:"questions,omitempty"`
}

// Task is one step of the timed task sequence.
type Task struct {
	ID              string `json:"id"`
	TestID          string `json:"testId"`
	Order           int    `json:"order"`
	InstructionText string `json:"instructionText"`
	MinTimeSeconds  *int   `json:"minTimeSeconds"`
}

// Question is one entry of the post-task questionnaire.
type Question struct {
	ID       string       `json:"id"`
	TestID   string       `json:"testId"`
	Order    int          `json:"order"`
	Label    string       `json:"label"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options"`
	Required bool         `json:"required"`
}

// Session is one participant's run through a test.
type Session struct {
	ID                string     `json:"id"`
	TestID            string     `json:"testId"`
	ProlificPID       string     `json:"prolificPid"`
	StudyID           string     `json:"studyId"`
	ExternalSessionID string     `json:"sessionId"`
	Source            string     `json:"source"`
	UserAgent         *string    `json:"userAgent"`
	StartTime         time.Time  `json:"startTime"`
	EndTime           *time.Time `json:"endTime"`
	TotalDuration     *int       `json:"totalDuration"`
	Flagged           bool       `json:"flagged"`
	Validity          Validity   `json:"validity"`
}

// Completed reports whether the session has reached its terminal state.
func (s Session) Completed() bool {
	return s.EndTime != nil
}

// TaskResult records the timing of one task within a session.
type TaskResult struct {
	ID              string `json:"id"`
	SessionID       string `json:"sessionId"`
	TaskID          string `json:"taskId"`
	DurationSeconds int    `json:"durationSeconds"`
	BlurCount       *int   `json:"blurCount"`
	Completed       bool   `json:"completed"`
}

// Answer stores a participant's response to one question.
type Answer struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionId"`
	QuestionID string      `json:"questionId"`
	Value      AnswerValue `json:"value"`
}

// Completion is the atomic unit written when a session finishes.
type Completion struct {
	SessionID     string
	EndTime       time.Time
	TotalDuration int
	Flagged       bool
	Results       []TaskResult
	Answers       []Answer
}

// SortTasks orders tasks by rank, breaking ties by id so output is stable.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Order != tasks[j].Order {
			return tasks[i].Order < tasks[j].Order
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// SortQuestions orders questions by rank, breaking ties by id.
func SortQuestions(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Order != questions[j].Order {
			return questions[i].Order < questions[j].Order
		}
		return questions[i].ID < questions[j].ID
	})
}
