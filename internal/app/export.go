package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"hitest/internal/domain"
)

var whitespace = regexp.MustCompile(`\s+`)

// Export is a rendered results file.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders one test's results as CSV.
type ExportService struct {
	reader AnalyticsReader
}

func NewExportService(reader AnalyticsReader) *ExportService {
	return &ExportService{reader: reader}
}

func (s *ExportService) Export(ctx context.Context, testID string) (Export, error) {
	ds, err := s.reader.TestDataset(ctx, testID)
	if err != nil {
		return Export{}, err
	}
	if len(ds.Tests) == 0 {
		return Export{}, domain.ErrTestNotFound
	}
	data, err := BuildCSV(ds)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename:    fmt.Sprintf("results-%s.csv", ds.Tests[0].ID),
		ContentType: "text/csv; charset=utf-8",
		Data:        data,
	}, nil
}

// CSVHeader returns the column names for a test's tasks and questions in rank order.
func CSVHeader(tasks []domain.Task, questions []domain.Question) []string {
	header := []string{"prolificPid", "studyId", "sessionId", "totalDuration", "flagged"}
	for _, t := range tasks {
		header = append(header,
			fmt.Sprintf("task_%d_duration", t.Order),
			fmt.Sprintf("task_%d_blurs", t.Order))
	}
	for _, q := range questions {
		header = append(header, fmt.Sprintf("q_%d_%s", q.Order, whitespace.ReplaceAllString(q.Label, "_")))
	}
	return header
}

// BuildCSV flattens sessions into one row each: session fields, then a duration and
// blur column per task, then one column per question.
func BuildCSV(ds Dataset) ([]byte, error) {
	tasks := append([]domain.Task(nil), ds.Tasks...)
	domain.SortTasks(tasks)
	questions := append([]domain.Question(nil), ds.Questions...)
	domain.SortQuestions(questions)
	sessions := append([]domain.Session(nil), ds.Sessions...)
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].StartTime.Before(sessions[j].StartTime) })

	type key struct{ session, child string }
	results := make(map[key]domain.TaskResult, len(ds.Results))
	for _, r := range ds.Results {
		k := key{r.SessionID, r.TaskID}
		if _, seen := results[k]; !seen {
			results[k] = r
		}
	}
	answers := make(map[key]domain.Answer, len(ds.Answers))
	for _, a := range ds.Answers {
		k := key{a.SessionID, a.QuestionID}
		if _, seen := answers[k]; !seen {
			answers[k] = a
		}
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(CSVHeader(tasks, questions)); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		row := make([]string, 0, 5+2*len(tasks)+len(questions))
		row = append(row, s.ProlificPID, s.StudyID, s.ExternalSessionID, optionalInt(s.TotalDuration), flag(s.Flagged))
		for _, t := range tasks {
			r, ok := results[key{s.ID, t.ID}]
			if !ok {
				row = append(row, "", "")
				continue
			}
			row = append(row, strconv.Itoa(r.DurationSeconds), optionalInt(r.BlurCount))
		}
		for _, q := range questions {
			a, ok := answers[key{s.ID, q.ID}]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, a.Value.CSVString())
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
