package app

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"hitest/internal/domain"
)

// TestService contains the admin use cases for authoring tests.
type TestService struct {
	tests         TestRepository
	public        PublicTestRepository
	publicBaseURL string
	now           func() time.Time
	newID         func() string
}

// NewTestService wires the authoring use cases. public may be nil, in which case
// participant reads go straight to the repository.
func NewTestService(tests TestRepository, public PublicTestRepository, publicBaseURL string) *TestService {
	return &TestService{
		tests:         tests,
		public:        public,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// AdminTest is the admin view of a test, with the link to hand to Prolific.
type AdminTest struct {
	domain.Test
	ParticipantLink string `json:"participantLink"`
}

func (s *TestService) Create(ctx context.Context, in CreateTestInput) (domain.Test, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.DemoURL == "" || in.CompletionCode == "" {
		return domain.Test{}, domain.NewInvalidError("Missing required fields")
	}
	t := domain.Test{
		ID:              s.newID(),
		Title:           in.Title,
		Description:     in.Description,
		DemoURL:         in.DemoURL,
		CompletionCode:  in.CompletionCode,
		Status:          domain.StatusDraft,
		MinTotalSeconds: in.MinTotalSeconds.Positive(),
		CreatedAt:       s.now(),
	}
	if err := s.tests.CreateTest(ctx, &t); err != nil {
		return domain.Test{}, err
	}
	return t, nil
}

func (s *TestService) List(ctx context.Context) ([]domain.Test, error) {
	return s.tests.ListTests(ctx)
}

func (s *TestService) Get(ctx context.Context, id string) (AdminTest, error) {
	t, err := s.tests.GetTest(ctx, id)
	if err != nil {
		return AdminTest{}, err
	}
	return AdminTest{Test: t, ParticipantLink: s.ParticipantLink(t.ID)}, nil
}

// GetPublic returns a published test for unauthenticated readers.
func (s *TestService) GetPublic(ctx context.Context, id string) (domain.Test, error) {
	t, err := s.loadPublic(ctx, id)
	if err != nil {
		return domain.Test{}, err
	}
	if t.Status != domain.StatusPublished {
		return domain.Test{}, domain.ErrTestNotPublished
	}
	return t, nil
}

// ForParticipant returns the test a participant link points at. Unknown and
// unpublished tests are indistinguishable to participants.
func (s *TestService) ForParticipant(ctx context.Context, id string) (domain.Test, error) {
	t, err := s.loadPublic(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Test{}, domain.ErrTestNotAvailable
	}
	if err != nil {
		return domain.Test{}, err
	}
	if t.Status != domain.StatusPublished {
		return domain.Test{}, domain.ErrTestNotAvailable
	}
	return t, nil
}

func (s *TestService) loadPublic(ctx context.Context, id string) (domain.Test, error) {
	if s.public != nil {
		return s.public.GetTest(ctx, id)
	}
	return s.tests.GetTest(ctx, id)
}

// Update replaces the test metadata.
func (s *TestService) Update(ctx context.Context, id string, in UpdateTestInput) (domain.Test, error) {
	t, err := s.tests.GetTest(ctx, id)
	if err != nil {
		return domain.Test{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.DemoURL == "" || in.CompletionCode == "" {
		return domain.Test{}, domain.NewInvalidError("Missing required fields")
	}
	if in.Status != "" {
		if !in.Status.Valid() {
			return domain.Test{}, domain.NewInvalidError("status must be draft or published")
		}
		t.Status = in.Status
	}
	t.Title = in.Title
	t.Description = in.Description
	t.DemoURL = in.DemoURL
	t.CompletionCode = in.CompletionCode
	t.MinTotalSeconds = in.MinTotalSeconds.Positive()
	if err := s.tests.UpdateTest(ctx, &t); err != nil {
		return domain.Test{}, err
	}
	s.invalidate(ctx, id)
	return t, nil
}

func (s *TestService) AddTask(ctx context.Context, testID string, in TaskInput) (domain.Task, error) {
	if strings.TrimSpace(in.InstructionText) == "" {
		return domain.Task{}, domain.NewInvalidError("instructionText required")
	}
	if _, err := s.tests.GetTest(ctx, testID); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:              s.newID(),
		TestID:          testID,
		Order:           orderOrDefault(in.Order),
		InstructionText: in.InstructionText,
		MinTimeSeconds:  in.MinTimeSeconds.Positive(),
	}
	if err := s.tests.CreateTask(ctx, &task); err != nil {
		return domain.Task{}, err
	}
	s.invalidate(ctx, testID)
	return task, nil
}

func (s *TestService) UpdateTask(ctx context.Context, testID string, in TaskPatch) (domain.Task, error) {
	if in.ID == "" {
		return domain.Task{}, domain.NewInvalidError("id required")
	}
	task, err := s.tests.GetTask(ctx, testID, in.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if in.InstructionText != nil {
		if strings.TrimSpace(*in.InstructionText) == "" {
			return domain.Task{}, domain.NewInvalidError("instructionText required")
		}
		task.InstructionText = *in.InstructionText
	}
	if in.MinTimeSeconds.Set {
		task.MinTimeSeconds = in.MinTimeSeconds.Positive()
	}
	if in.Order.Set && in.Order.Valid {
		task.Order = in.Order.Value
	}
	if err := s.tests.UpdateTask(ctx, &task); err != nil {
		return domain.Task{}, err
	}
	s.invalidate(ctx, testID)
	return task, nil
}

func (s *TestService) RemoveTask(ctx context.Context, testID, id string) error {
	if id == "" {
		return domain.NewInvalidError("id required")
	}
	if err := s.tests.DeleteTask(ctx, testID, id); err != nil {
		return err
	}
	s.invalidate(ctx, testID)
	return nil
}

func (s *TestService) AddQuestion(ctx context.Context, testID string, in QuestionInput) (domain.Question, error) {
	if strings.TrimSpace(in.Label) == "" || in.Type == "" {
		return domain.Question{}, domain.NewInvalidError("Missing fields")
	}
	if !in.Type.Valid() {
		return domain.Question{}, domain.NewInvalidError("unsupported question type")
	}
	if _, err := s.tests.GetTest(ctx, testID); err != nil {
		return domain.Question{}, err
	}
	required := true
	if in.Required != nil {
		required = *in.Required
	}
	q := domain.Question{
		ID:       s.newID(),
		TestID:   testID,
		Order:    orderOrDefault(in.Order),
		Label:    in.Label,
		Type:     in.Type,
		Options:  optionsFor(in.Type, in.Options),
		Required: required,
	}
	if err := s.tests.CreateQuestion(ctx, &q); err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, testID)
	return q, nil
}

func (s *TestService) UpdateQuestion(ctx context.Context, testID string, in QuestionPatch) (domain.Question, error) {
	if in.ID == "" {
		return domain.Question{}, domain.NewInvalidError("id required")
	}
	q, err := s.tests.GetQuestion(ctx, testID, in.ID)
	if err != nil {
		return domain.Question{}, err
	}
	if in.Label != nil {
		if strings.TrimSpace(*in.Label) == "" {
			return domain.Question{}, domain.NewInvalidError("label required")
		}
		q.Label = *in.Label
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return domain.Question{}, domain.NewInvalidError("unsupported question type")
		}
		q.Type = *in.Type
	}
	if in.Options != nil {
		q.Options = *in.Options
	}
	q.Options = optionsFor(q.Type, q.Options)
	if in.Required != nil {
		q.Required = *in.Required
	}
	if in.Order.Set && in.Order.Valid {
		q.Order = in.Order.Value
	}
	if err := s.tests.UpdateQuestion(ctx, &q); err != nil {
		return domain.Question{}, err
	}
	s.invalidate(ctx, testID)
	return q, nil
}

func (s *TestService) RemoveQuestion(ctx context.Context, testID, id string) error {
	if id == "" {
		return domain.NewInvalidError("id required")
	}
	if err := s.tests.DeleteQuestion(ctx, testID, id); err != nil {
		return err
	}
	s.invalidate(ctx, testID)
	return nil
}

// ParticipantLink is the study URL with Prolific's placeholders.
func (s *TestService) ParticipantLink(testID string) string {
	return s.publicBaseURL + "/test/" + url.PathEscape(testID) +
		"?PROLIFIC_PID=<PID>&STUDY_ID=<STUDY_ID>&SESSION_ID=<SESSION_ID>"
}

// CompletionURL is where participants are sent once the session is recorded.
func CompletionURL(completionCode string) string {
	return "https://app.prolific.com/submissions/complete?cc=" + url.QueryEscape(completionCode)
}

func (s *TestService) invalidate(ctx context.Context, testID string) {
	if s.public != nil {
		s.public.Invalidate(ctx, testID)
	}
}

func orderOrDefault(o OptionalInt) int {
	if o.Valid && o.Value > 0 {
		return o.Value
	}
	return 1
}

func optionsFor(t domain.QuestionType, options []string) []string {
	if t != domain.QuestionMultipleChoice {
		return nil
	}
	return options
}
