package app

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"hitest/internal/domain"
)

const (
	trendDays       = 30
	recentFlagged   = 10
	funnelTestCount = 3
)

// DashboardStats are the platform-wide headline counters.
type DashboardStats struct {
	TotalTests        int `json:"totalTests"`
	ActiveTests       int `json:"activeTests"`
	TotalParticipants int `json:"totalParticipants"`
	CompletedSessions int `json:"completedSessions"`
	PendingReviews    int `json:"pendingReviews"`
	CompletionRate    int `json:"completionRate"`
}

type TrendPoint struct {
	Date        string `json:"date"`
	Completions int    `json:"completions"`
}

type FlaggedSession struct {
	ID            string          `json:"id"`
	TestTitle     string          `json:"testTitle"`
	ProlificPID   string          `json:"prolificPid"`
	Source        string          `json:"source"`
	TotalDuration *int            `json:"totalDuration"`
	Flagged       bool            `json:"flagged"`
	Validity      domain.Validity `json:"validity"`
	StartTime     time.Time       `json:"startTime"`
}

type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type TaskFunnelStep struct {
	TaskID          string `json:"taskId"`
	Order           int    `json:"order"`
	InstructionText string `json:"instructionText"`
	CompletionRate  *int   `json:"completionRate"`
}

type TestFunnel struct {
	TestID    string           `json:"testId"`
	TestTitle string           `json:"testTitle"`
	Tasks     []TaskFunnelStep `json:"tasks"`
}

// Dashboard is the platform aggregate served to the admin home page.
type Dashboard struct {
	Stats                 DashboardStats   `json:"stats"`
	AvgSeqScore           *float64         `json:"avgSeqScore"`
	AvgTimeOnTask         *int             `json:"avgTimeOnTask"`
	DropOffRate           *int             `json:"dropOffRate"`
	CompletionTrend       []TrendPoint     `json:"completionTrend"`
	RecentFlaggedSessions []FlaggedSession `json:"recentFlaggedSessions"`
	SourceBreakdown       []SourceCount    `json:"sourceBreakdown"`
	TaskDropOffByTest     []TestFunnel     `json:"taskDropOffByTest"`
}

type TestOverview struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Status        domain.TestStatus `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	TaskCount     int               `json:"taskCount"`
	QuestionCount int               `json:"questionCount"`
}

type TestSummary struct {
	TotalSessions     int      `json:"totalSessions"`
	CompletedSessions int      `json:"completedSessions"`
	CompletionRate    int      `json:"completionRate"`
	AvgTotalDuration  *int     `json:"avgTotalDuration"`
	AvgSeqScore       *float64 `json:"avgSeqScore"`
	PendingReviews    int      `json:"pendingReviews"`
}

type TaskBreakdown struct {
	TaskID             string   `json:"taskId"`
	Order              int      `json:"order"`
	InstructionText    string   `json:"instructionText"`
	CompletionRate     *int     `json:"completionRate"`
	AvgDurationSeconds *int     `json:"avgDurationSeconds"`
	AvgBlurCount       *float64 `json:"avgBlurCount"`
}

type ParticipantRow struct {
	SessionID          string          `json:"sessionId"`
	ProlificPID        string          `json:"prolificPid"`
	Source             string          `json:"source"`
	StartTime          time.Time       `json:"startTime"`
	EndTime            *time.Time      `json:"endTime"`
	TotalDuration      *int            `json:"totalDuration"`
	Flagged            bool            `json:"flagged"`
	Validity           domain.Validity `json:"validity"`
	SeqScore           *float64        `json:"seqScore"`
	CompletedTaskCount int             `json:"completedTaskCount"`
	TotalTaskCount     int             `json:"totalTaskCount"`
}

// TestAnalytics is the per-test aggregate.
type TestAnalytics struct {
	Test          TestOverview     `json:"test"`
	Summary       TestSummary      `json:"summary"`
	TaskBreakdown []TaskBreakdown  `json:"taskBreakdown"`
	Participants  []ParticipantRow `json:"participants"`
}

// AnalyticsService loads datasets and aggregates them.
type AnalyticsService struct {
	reader AnalyticsReader
	now    func() time.Time
}

func NewAnalyticsService(reader AnalyticsReader) *AnalyticsService {
	return &AnalyticsService{reader: reader, now: func() time.Time { return time.Now().UTC() }}
}

func (s *AnalyticsService) Dashboard(ctx context.Context) (Dashboard, error) {
	ds, err := s.reader.PlatformDataset(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return BuildDashboard(ds, s.now()), nil
}

func (s *AnalyticsService) ForTest(ctx context.Context, testID string) (TestAnalytics, error) {
	ds, err := s.reader.TestDataset(ctx, testID)
	if err != nil {
		return TestAnalytics{}, err
	}
	return BuildTestAnalytics(ds)
}

// BuildDashboard aggregates the whole platform as of now.
func BuildDashboard(ds Dataset, now time.Time) Dashboard {
	d := Dashboard{
		CompletionTrend:       []TrendPoint{},
		RecentFlaggedSessions: []FlaggedSession{},
		SourceBreakdown:       []SourceCount{},
		TaskDropOffByTest:     []TestFunnel{},
	}

	titles := make(map[string]string, len(ds.Tests))
	d.Stats.TotalTests = len(ds.Tests)
	for _, t := range ds.Tests {
		titles[t.ID] = t.Title
		if t.Status == domain.StatusPublished {
			d.Stats.ActiveTests++
		}
	}

	since := now.AddDate(0, 0, -trendDays)
	trend := make(map[string]int)
	sources := make(map[string]int)
	var flagged []domain.Session
	for _, s := range ds.Sessions {
		d.Stats.TotalParticipants++
		sources[s.Source]++
		if s.Completed() {
			d.Stats.CompletedSessions++
			if !s.EndTime.Before(since) {
				trend[s.EndTime.UTC().Format(time.DateOnly)]++
			}
		}
		if s.Flagged {
			flagged = append(flagged, s)
			if s.Validity == domain.ValidityPending {
				d.Stats.PendingReviews++
			}
		}
	}
	d.Stats.CompletionRate = completionRate(d.Stats.CompletedSessions, d.Stats.TotalParticipants)
	d.DropOffRate = percent(d.Stats.TotalParticipants-d.Stats.CompletedSessions, d.Stats.TotalParticipants)

	for date, n := range trend {
		d.CompletionTrend = append(d.CompletionTrend, TrendPoint{Date: date, Completions: n})
	}
	sort.Slice(d.CompletionTrend, func(i, j int) bool { return d.CompletionTrend[i].Date < d.CompletionTrend[j].Date })

	sortByStartDesc(flagged)
	if len(flagged) > recentFlagged {
		flagged = flagged[:recentFlagged]
	}
	for _, s := range flagged {
		d.RecentFlaggedSessions = append(d.RecentFlaggedSessions, FlaggedSession{
			ID:            s.ID,
			TestTitle:     titles[s.TestID],
			ProlificPID:   s.ProlificPID,
			Source:        s.Source,
			TotalDuration: s.TotalDuration,
			Flagged:       s.Flagged,
			Validity:      s.Validity,
			StartTime:     s.StartTime,
		})
	}

	for source, n := range sources {
		d.SourceBreakdown = append(d.SourceBreakdown, SourceCount{Source: source, Count: n})
	}
	sort.Slice(d.SourceBreakdown, func(i, j int) bool { return d.SourceBreakdown[i].Source < d.SourceBreakdown[j].Source })

	d.AvgSeqScore = seqScore(ds.Answers, seqQuestions(ds.Questions))

	var total, n int
	for _, r := range ds.Results {
		if r.Completed {
			total += r.DurationSeconds
			n++
		}
	}
	if n > 0 {
		d.AvgTimeOnTask = ptr(int(math.Round(float64(total) / float64(n))))
	}

	d.TaskDropOffByTest = funnels(ds)
	return d
}

// funnels builds per-task completion for the most recently created published tests.
func funnels(ds Dataset) []TestFunnel {
	published := make([]domain.Test, 0, len(ds.Tests))
	for _, t := range ds.Tests {
		if t.Status == domain.StatusPublished {
			published = append(published, t)
		}
	}
	sort.SliceStable(published, func(i, j int) bool { return published[i].CreatedAt.After(published[j].CreatedAt) })
	if len(published) > funnelTestCount {
		published = published[:funnelTestCount]
	}

	byTask := resultsByTask(ds.Results)
	tasksByTest := make(map[string][]domain.Task)
	for _, task := range ds.Tasks {
		tasksByTest[task.TestID] = append(tasksByTest[task.TestID], task)
	}

	out := make([]TestFunnel, 0, len(published))
	for _, t := range published {
		tasks := tasksByTest[t.ID]
		domain.SortTasks(tasks)
		f := TestFunnel{TestID: t.ID, TestTitle: t.Title, Tasks: make([]TaskFunnelStep, 0, len(tasks))}
		for _, task := range tasks {
			results := byTask[task.ID]
			f.Tasks = append(f.Tasks, TaskFunnelStep{
				TaskID:          task.ID,
				Order:           task.Order,
				InstructionText: task.InstructionText,
				CompletionRate:  percent(countCompleted(results), len(results)),
			})
		}
		out = append(out, f)
	}
	return out
}

// BuildTestAnalytics aggregates one test. ds.Tests must hold that test.
func BuildTestAnalytics(ds Dataset) (TestAnalytics, error) {
	if len(ds.Tests) == 0 {
		return TestAnalytics{}, domain.ErrTestNotFound
	}
	test := ds.Tests[0]
	tasks := append([]domain.Task(nil), ds.Tasks...)
	domain.SortTasks(tasks)

	out := TestAnalytics{
		Test: TestOverview{
			ID:            test.ID,
			Title:         test.Title,
			Status:        test.Status,
			CreatedAt:     test.CreatedAt,
			TaskCount:     len(tasks),
			QuestionCount: len(ds.Questions),
		},
		TaskBreakdown: make([]TaskBreakdown, 0, len(tasks)),
		Participants:  make([]ParticipantRow, 0, len(ds.Sessions)),
	}

	var durationSum, durationN int
	for _, s := range ds.Sessions {
		out.Summary.TotalSessions++
		if s.Completed() {
			out.Summary.CompletedSessions++
		}
		if s.TotalDuration != nil {
			durationSum += *s.TotalDuration
			durationN++
		}
		if s.Flagged && s.Validity == domain.ValidityPending {
			out.Summary.PendingReviews++
		}
	}
	out.Summary.CompletionRate = completionRate(out.Summary.CompletedSessions, out.Summary.TotalSessions)
	if durationN > 0 {
		out.Summary.AvgTotalDuration = ptr(int(math.Round(float64(durationSum) / float64(durationN))))
	}

	seq := seqQuestions(ds.Questions)
	out.Summary.AvgSeqScore = seqScore(ds.Answers, seq)

	byTask := resultsByTask(ds.Results)
	for _, task := range tasks {
		results := byTask[task.ID]
		row := TaskBreakdown{
			TaskID:          task.ID,
			Order:           task.Order,
			InstructionText: task.InstructionText,
			CompletionRate:  percent(countCompleted(results), len(results)),
		}
		var durSum, durN, blurSum, blurN int
		for _, r := range results {
			if r.Completed {
				durSum += r.DurationSeconds
				durN++
			}
			if r.BlurCount != nil {
				blurSum += *r.BlurCount
				blurN++
			}
		}
		if durN > 0 {
			row.AvgDurationSeconds = ptr(int(math.Round(float64(durSum) / float64(durN))))
		}
		if blurN > 0 {
			row.AvgBlurCount = ptr(round1(float64(blurSum) / float64(blurN)))
		}
		out.TaskBreakdown = append(out.TaskBreakdown, row)
	}

	answersBySession := make(map[string][]domain.Answer)
	for _, a := range ds.Answers {
		answersBySession[a.SessionID] = append(answersBySession[a.SessionID], a)
	}
	completedBySession := make(map[string]int)
	for _, r := range ds.Results {
		if r.Completed {
			completedBySession[r.SessionID]++
		}
	}

	sessions := append([]domain.Session(nil), ds.Sessions...)
	sortByStartDesc(sessions)
	for _, s := range sessions {
		out.Participants = append(out.Participants, ParticipantRow{
			SessionID:          s.ID,
			ProlificPID:        s.ProlificPID,
			Source:             s.Source,
			StartTime:          s.StartTime,
			EndTime:            s.EndTime,
			TotalDuration:      s.TotalDuration,
			Flagged:            s.Flagged,
			Validity:           s.Validity,
			SeqScore:           seqScore(answersBySession[s.ID], seq),
			CompletedTaskCount: completedBySession[s.ID],
			TotalTaskCount:     len(tasks),
		})
	}
	return out, nil
}

// IsSEQQuestion reports whether a question feeds the Single Ease Question score.
func IsSEQQuestion(q domain.Question) bool {
	if q.Type != domain.QuestionScale1to5 {
		return false
	}
	label := strings.ToLower(q.Label)
	return strings.Contains(label, "easy") || strings.Contains(label, "difficult") || strings.Contains(label, "seq")
}

func seqQuestions(questions []domain.Question) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, q := range questions {
		if IsSEQQuestion(q) {
			ids[q.ID] = struct{}{}
		}
	}
	return ids
}

// seqScore is the mean numeric answer to SEQ questions, to one decimal.
func seqScore(answers []domain.Answer, seq map[string]struct{}) *float64 {
	var sum float64
	var n int
	for _, a := range answers {
		if _, ok := seq[a.QuestionID]; !ok {
			continue
		}
		if v, ok := a.Value.Numeric(); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return ptr(round1(sum / float64(n)))
}

func resultsByTask(results []domain.TaskResult) map[string][]domain.TaskResult {
	out := make(map[string][]domain.TaskResult)
	for _, r := range results {
		out[r.TaskID] = append(out[r.TaskID], r)
	}
	return out
}

func countCompleted(results []domain.TaskResult) int {
	n := 0
	for _, r := range results {
		if r.Completed {
			n++
		}
	}
	return n
}

func sortByStartDesc(sessions []domain.Session) {
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.After(sessions[j].StartTime) })
}

// completionRate is a whole percentage, 0 when there is nothing to divide by.
func completionRate(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// percent is like completionRate but nil when total is zero.
func percent(part, total int) *int {
	if total == 0 {
		return nil
	}
	return ptr(completionRate(part, total))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func ptr[T any](v T) *T { return &v }
