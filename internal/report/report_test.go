package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-walkthrough/internal/graph"
	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
	"github.com/p-n-ai/pai-walkthrough/internal/report"
	"github.com/p-n-ai/pai-walkthrough/internal/session"
)

const happyJSON = `{
  "start": {"question": "Are you happy?", "options": {
    "Yes": {"answer": "Great!", "next_node": "done"},
    "No": {"answer": "Sorry to hear.", "next_node": "ghost"}
  }},
  "done": {"answer": "Thanks for answering."}
}`

func happyGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Parse([]byte(happyJSON), graph.FormatJSON)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return g
}

func readRows(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", sheet, err)
	}
	return rows
}

func TestWriteGraph(t *testing.T) {
	var buf bytes.Buffer
	if err := report.WriteGraph(&buf, "happy", happyGraph(t)); err != nil {
		t.Fatalf("WriteGraph() error = %v", err)
	}

	nodes := readRows(t, buf.Bytes(), report.SheetNodes)
	wantNodes := [][]string{
		{"Node", "Kind", "Question", "Answer", "Options"},
		{"start", "question", "Are you happy?", "", "2"},
		{"done", "terminal", "", "Thanks for answering.", "0"},
	}
	if diff := cmp.Diff(wantNodes, nodes); diff != "" {
		t.Errorf("Nodes sheet mismatch (-want +got):\n%s", diff)
	}

	options := readRows(t, buf.Bytes(), report.SheetOptions)
	wantOptions := [][]string{
		{"Node", "Option", "Answer", "Next node", "Target exists"},
		{"start", "Yes", "Great!", "done", "yes"},
		{"start", "No", "Sorry to hear.", "ghost", "no"},
	}
	if diff := cmp.Diff(wantOptions, options); diff != "" {
		t.Errorf("Options sheet mismatch (-want +got):\n%s", diff)
	}

	summary := readRows(t, buf.Bytes(), report.SheetSummary)
	if len(summary) < 4 || summary[0][1] != "happy" {
		t.Errorf("Summary sheet = %v, want name and a problem row", summary)
	}
}

func TestWriteTrail(t *testing.T) {
	g := happyGraph(t)
	completed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := &session.Session{
		ID:            "s1",
		UserID:        "telegram:123",
		Questionnaire: "happy",
		GraphDigest:   g.Digest(),
		State:         navigator.State{Current: "done", History: []graph.NodeID{"start"}, LastAnswer: "Great!"},
		StartedAt:     completed.Add(-time.Minute),
		CompletedAt:   &completed,
	}

	var buf bytes.Buffer
	if err := report.WriteTrail(&buf, sess, g); err != nil {
		t.Fatalf("WriteTrail() error = %v", err)
	}

	rows := readRows(t, buf.Bytes(), report.SheetTrail)
	want := [][]string{
		{"Step", "Node", "Question", "Choice", "Answer"},
		{"1", "start", "Are you happy?", "Yes", "Great!"},
		{"current", "done", "", "", "Thanks for answering."},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Trail sheet mismatch (-want +got):\n%s", diff)
	}

	summary := readRows(t, buf.Bytes(), report.SheetSummary)
	var gotCompleted string
	for _, r := range summary {
		if len(r) == 2 && r[0] == "Completed" {
			gotCompleted = r[1]
		}
	}
	if gotCompleted != "2026-01-02T03:04:05Z" {
		t.Errorf("Completed = %q, want RFC3339 timestamp", gotCompleted)
	}
}
