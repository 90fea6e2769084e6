package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"hitest/internal/app"
	"hitest/internal/domain"
	"hitest/internal/infra/memory"
)

func TestCSVHeader(t *testing.T) {
	ds := sampleDataset()
	tasks := append([]domain.Task(nil), ds.Tasks...)
	domain.SortTasks(tasks)
	header := app.CSVHeader(tasks, []domain.Question{{Order: 1, Label: "How  difficult\twas it?"}})
	want := "prolificPid,studyId,sessionId,totalDuration,flagged,task_1_duration,task_1_blurs,task_2_duration,task_2_blurs,q_1_How_difficult_was_it?"
	if got := strings.Join(header, ","); got != want {
		t.Fatalf("header = %s", got)
	}
}

func TestBuildCSV(t *testing.T) {
	ds := sampleDataset()
	ds.Sessions[1].StudyID = "study, with comma"
	ds.Sessions[1].ExternalSessionID = "ext-2"
	// A duplicate answer for the same question is ignored in favour of the first.
	ds.Answers = append(ds.Answers, domain.Answer{ID: "a9", SessionID: "s2", QuestionID: "q-text", Value: domain.TextValue("later")})

	data, err := app.BuildCSV(ds)
	if err != nil {
		t.Fatalf("build csv: %v", err)
	}
	if !bytes.Contains(data, []byte(`"study, with comma"`)) {
		t.Fatalf("fields with commas must be quoted:\n%s", data)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header and 4 rows, got %d", len(records))
	}
	for _, r := range records {
		if len(r) != 11 {
			t.Fatalf("expected 11 columns, got %d: %v", len(r), r)
		}
	}

	// Rows follow start time ascending: s4, s1, s2, s3.
	order := []string{"P4", "P1", "P2", "P3"}
	for i, pid := range order {
		if records[i+1][0] != pid {
			t.Fatalf("row %d pid = %s, want %s", i+1, records[i+1][0], pid)
		}
	}

	p1 := records[2]
	if p1[3] != "100" || p1[4] != "1" || p1[5] != "30" || p1[6] != "2" || p1[7] != "" || p1[9] != "2" || p1[10] != "" {
		t.Fatalf("unexpected P1 row %v", p1)
	}
	p2 := records[3]
	if p2[1] != "study, with comma" || p2[2] != "ext-2" || p2[4] != "0" || p2[9] != `{"value":"4"}` || p2[10] != "5 stars" {
		t.Fatalf("unexpected P2 row %v", p2)
	}
	p4 := records[1]
	if p4[3] != "" || p4[6] != "" {
		t.Fatalf("open session and missing blur count should be blank: %v", p4)
	}
}

func TestExportUnknownTest(t *testing.T) {
	svc := app.NewExportService(memory.NewStore())
	if _, err := svc.Export(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExportFilename(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	tests := app.NewTestService(store, nil, "")
	test, err := tests.Create(ctx, app.CreateTestInput{Title: "Nav", DemoURL: "https://x", CompletionCode: "C"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	out, err := app.NewExportService(store).Export(ctx, test.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Filename != "results-"+test.ID+".csv" || !strings.HasPrefix(out.ContentType, "text/csv") {
		t.Fatalf("unexpected export meta %+v", out)
	}
	if strings.TrimSpace(string(out.Data)) != "prolificPid,studyId,sessionId,totalDuration,flagged" {
		t.Fatalf("test without children exports only the base header: %q", out.Data)
	}
}
