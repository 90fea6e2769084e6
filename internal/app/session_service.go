package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"hitest/internal/domain"
)

// SessionService runs the participant lifecycle: start, complete and admin review.
type SessionService struct {
	tests    TestRepository
	sessions SessionRepository
	feed     *Feed
	now      func() time.Time
	newID    func() string
}

// NewSessionService wires the lifecycle use cases. feed may be nil.
func NewSessionService(tests TestRepository, sessions SessionRepository, feed *Feed) *SessionService {
	return NewSessionServiceWithClock(tests, sessions, feed, func() time.Time { return time.Now().UTC() })
}

// NewSessionServiceWithClock is test-only for deterministic durations.
func NewSessionServiceWithClock(tests TestRepository, sessions SessionRepository, feed *Feed, now func() time.Time) *SessionService {
	return &SessionService{tests: tests, sessions: sessions, feed: feed, now: now, newID: uuid.NewString}
}

// CompleteResult reports the outcome of a completion.
type CompleteResult struct {
	Flagged       bool `json:"flagged"`
	TotalDuration int  `json:"totalDuration"`
}

// Start opens a session for a Prolific participant on a published test.
func (s *SessionService) Start(ctx context.Context, in StartInput) (domain.Session, error) {
	if in.TestID == "" || in.ProlificPID == "" || in.StudyID == "" || in.ExternalSessionID == "" {
		return domain.Session{}, domain.NewInvalidError("Missing Prolific parameters")
	}

	test, err := s.tests.GetTest(ctx, in.TestID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Session{}, domain.ErrTestNotAvailable
	}
	if err != nil {
		return domain.Session{}, err
	}
	if test.Status != domain.StatusPublished {
		return domain.Session{}, domain.ErrTestNotAvailable
	}

	if _, exists, err := s.sessions.FindSession(ctx, in.TestID, in.ProlificPID); err != nil {
		return domain.Session{}, err
	} else if exists {
		return domain.Session{}, domain.ErrAlreadySubmitted
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = domain.SourceProlific
	}
	session := domain.Session{
		ID:                s.newID(),
		TestID:            in.TestID,
		ProlificPID:       in.ProlificPID,
		StudyID:           in.StudyID,
		ExternalSessionID: in.ExternalSessionID,
		Source:            source,
		UserAgent:         in.UserAgent,
		StartTime:         s.now(),
		Validity:          domain.ValidityPending,
	}
	// The repository enforces uniqueness as well; the lookup above only gives a fast answer.
	if err := s.sessions.CreateSession(ctx, &session); err != nil {
		return domain.Session{}, err
	}
	s.feed.Publish(EventSessionStarted, session)
	return session, nil
}

// Complete records results and answers and closes the session exactly once.
func (s *SessionService) Complete(ctx context.Context, in CompleteInput) (CompleteResult, error) {
	if in.SessionID == "" {
		return CompleteResult{}, domain.NewInvalidError("Missing sessionId")
	}

	session, err := s.sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return CompleteResult{}, err
	}
	if session.Completed() {
		return CompleteResult{}, domain.ErrAlreadyCompleted
	}
	test, err := s.tests.GetTest(ctx, session.TestID)
	if err != nil {
		return CompleteResult{}, err
	}

	now := s.now()
	duration := sessionDuration(in.TotalDuration, session.StartTime, now)
	completion := domain.Completion{
		SessionID:     session.ID,
		EndTime:       now,
		TotalDuration: duration,
		Flagged:       tooFast(test.MinTotalSeconds, duration),
	}

	for _, r := range in.TaskResults {
		if r.TaskID == "" {
			return CompleteResult{}, domain.NewInvalidError("taskResults entries need a taskId")
		}
		completed := true
		if r.Completed != nil {
			completed = *r.Completed
		}
		completion.Results = append(completion.Results, domain.TaskResult{
			ID:              s.newID(),
			SessionID:       session.ID,
			TaskID:          r.TaskID,
			DurationSeconds: int(math.Round(r.DurationSeconds)),
			BlurCount:       r.BlurCount,
			Completed:       completed,
		})
	}
	for _, a := range in.Answers {
		if a.QuestionID == "" {
			return CompleteResult{}, domain.NewInvalidError("answers entries need a questionId")
		}
		completion.Answers = append(completion.Answers, domain.Answer{
			ID:         s.newID(),
			SessionID:  session.ID,
			QuestionID: a.QuestionID,
			Value:      a.Value,
		})
	}

	if err := s.sessions.CompleteSession(ctx, completion); err != nil {
		return CompleteResult{}, err
	}

	session.EndTime = &now
	session.TotalDuration = &duration
	session.Flagged = completion.Flagged
	s.feed.Publish(EventSessionCompleted, session)
	return CompleteResult{Flagged: completion.Flagged, TotalDuration: duration}, nil
}

// SetValidity records the admin review verdict. It never touches completion fields.
func (s *SessionService) SetValidity(ctx context.Context, id string, v domain.Validity) (domain.Session, error) {
	if !v.Valid() {
		return domain.Session{}, domain.ErrInvalidValidity
	}
	if err := s.sessions.SetValidity(ctx, id, v); err != nil {
		return domain.Session{}, err
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	s.feed.Publish(EventSessionValidity, map[string]any{"id": session.ID, "validity": session.Validity})
	return session, nil
}

// sessionDuration prefers the client's measurement and falls back to wall clock time.
func sessionDuration(reported *float64, start, now time.Time) int {
	if reported != nil && *reported > 0 {
		return max(1, int(math.Round(*reported)))
	}
	return max(1, int(math.Round(now.Sub(start).Seconds())))
}

func tooFast(minTotalSeconds *int, duration int) bool {
	return minTotalSeconds != nil && *minTotalSeconds > 0 && duration < *minTotalSeconds
}
