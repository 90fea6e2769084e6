package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"hitest/internal/domain"
)

// OptionalInt decodes a JSON field that may be absent, null, a number or a numeric
// string (admin forms post numbers as strings).
type OptionalInt struct {
	Set   bool
	Valid bool
	Value int
}

func IntValue(v int) OptionalInt { return OptionalInt{Set: true, Valid: true, Value: v} }

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		o.Valid = false
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		o.Valid, o.Value = true, int(math.Round(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			o.Valid = false
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("expected a number, got %q", v)
		}
		o.Valid, o.Value = true, int(math.Round(f))
	default:
		return fmt.Errorf("expected a number")
	}
	return nil
}

// Positive returns the value when it is set and greater than zero.
func (o OptionalInt) Positive() *int {
	if !o.Valid || o.Value <= 0 {
		return nil
	}
	v := o.Value
	return &v
}

// CreateTestInput carries the fields for a new draft test.
type CreateTestInput struct {
	Title           string      `json:"title"`
	Description     *string     `json:"description"`
	DemoURL         string      `json:"demoUrl"`
	CompletionCode  string      `json:"completionCode"`
	MinTotalSeconds OptionalInt `json:"minTotalSeconds"`
}

// UpdateTestInput replaces a test's metadata. An empty status keeps the current one.
type UpdateTestInput struct {
	Title           string            `json:"title"`
	Description     *string           `json:"description"`
	DemoURL         string            `json:"demoUrl"`
	CompletionCode  string            `json:"completionCode"`
	Status          domain.TestStatus `json:"status"`
	MinTotalSeconds OptionalInt       `json:"minTotalSeconds"`
}

type TaskInput struct {
	InstructionText string      `json:"instructionText"`
	MinTimeSeconds  OptionalInt `json:"minTimeSeconds"`
	Order           OptionalInt `json:"order"`
}

// TaskPatch updates only the fields present in the request.
type TaskPatch struct {
	ID              string      `json:"id"`
	InstructionText *string     `json:"instructionText"`
	MinTimeSeconds  OptionalInt `json:"minTimeSeconds"`
	Order           OptionalInt `json:"order"`
}

type QuestionInput struct {
	Label    string              `json:"label"`
	Type     domain.QuestionType `json:"type"`
	Options  []string            `json:"options"`
	Required *bool               `json:"required"`
	Order    OptionalInt         `json:"order"`
}

// QuestionPatch updates only the fields present in the request.
type QuestionPatch struct {
	ID       string               `json:"id"`
	Label    *string              `json:"label"`
	Type     *domain.QuestionType `json:"type"`
	Options  *[]string            `json:"options"`
	Required *bool                `json:"required"`
	Order    OptionalInt          `json:"order"`
}

// StartInput is the Prolific handoff for a new session.
type StartInput struct {
	TestID            string  `json:"testId"`
	ProlificPID       string  `json:"prolificPid"`
	StudyID           string  `json:"studyId"`
	ExternalSessionID string  `json:"sessionId"`
	UserAgent         *string `json:"userAgent"`
	Source            string  `json:"source"`
}

// TaskTiming is the client-measured outcome of one task.
type TaskTiming struct {
	TaskID          string  `json:"taskId"`
	DurationSeconds float64 `json:"durationSeconds"`
	BlurCount       *int    `json:"blurCount"`
	Completed       *bool   `json:"completed"`
}

type AnswerInput struct {
	QuestionID string             `json:"questionId"`
	Value      domain.AnswerValue `json:"value"`
}

// CompleteInput finishes a session. SessionID is the internal session id.
type CompleteInput struct {
	SessionID     string        `json:"sessionId"`
	TaskResults   []TaskTiming  `json:"taskResults"`
	Answers       []AnswerInput `json:"answers"`
	TotalDuration *float64      `json:"totalDuration"`
}
