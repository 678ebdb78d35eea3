// Package report exports questionnaires and answer trails as spreadsheets
// for authors reviewing them.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-walkthrough/internal/graph"
	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
	"github.com/p-n-ai/pai-walkthrough/internal/session"
)

// Sheet names.
const (
	SheetNodes   = "Nodes"
	SheetOptions = "Options"
	SheetTrail   = "Trail"
	SheetSummary = "Summary"
)

// ContentType is the MIME type of the written workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteGraph writes one row per node and one row per option, both in
// authored order. Dangling option targets are flagged.
func WriteGraph(w io.Writer, name string, g *graph.Graph) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetNodes); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetOptions); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	nodes := sheet{f: f, name: SheetNodes}
	options := sheet{f: f, name: SheetOptions}
	nodes.row("Node", "Kind", "Question", "Answer", "Options")
	options.row("Node", "Option", "Answer", "Next node", "Target exists")

	for _, id := range g.IDs() {
		n, _ := g.Node(id)
		kind := "question"
		if n.IsTerminal() {
			kind = "terminal"
		}
		nodes.row(string(n.ID), kind, n.Question, n.Answer, len(n.Options))
		for _, o := range n.Options {
			options.row(string(n.ID), o.Label, o.Answer, string(o.Next), yesNo(g.Has(o.Next)))
		}
	}

	summary := sheet{f: f, name: SheetSummary}
	summary.row("Questionnaire", name)
	summary.row("Nodes", g.Len())
	summary.row("Digest", g.Digest())
	for _, p := range g.Check() {
		summary.row("Problem", p.String())
	}

	if err := firstErr(nodes.err, options.err, summary.err); err != nil {
		return fmt.Errorf("writing graph %s: %w", name, err)
	}
	if err := styleHeader(f, SheetNodes, SheetOptions); err != nil {
		return err
	}
	return f.Write(w)
}

// WriteTrail writes the answered path of a session: one row per step and
// a final row for the node the session stands on.
func WriteTrail(w io.Writer, sess *session.Session, g *graph.Graph) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetTrail); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	trail := sheet{f: f, name: SheetTrail}
	trail.row("Step", "Node", "Question", "Choice", "Answer")
	for i, s := range navigator.Trail(g, sess.State) {
		trail.row(i+1, string(s.Node), s.Question, s.Choice, s.Answer)
	}
	if cur, ok := g.Node(sess.State.Current); ok {
		trail.row("current", string(cur.ID), cur.Question, "", cur.Answer)
	}

	summary := sheet{f: f, name: SheetSummary}
	summary.row("Session", sess.ID)
	summary.row("User", sess.UserID)
	summary.row("Questionnaire", sess.Questionnaire)
	summary.row("Started", sess.StartedAt.UTC().Format(time.RFC3339))
	if sess.CompletedAt != nil {
		summary.row("Completed", sess.CompletedAt.UTC().Format(time.RFC3339))
	}
	if sess.GraphDigest != "" && sess.GraphDigest != g.Digest() {
		summary.row("Note", "questionnaire changed since the session started")
	}

	if err := firstErr(trail.err, summary.err); err != nil {
		return fmt.Errorf("writing trail %s: %w", sess.ID, err)
	}
	if err := styleHeader(f, SheetTrail); err != nil {
		return err
	}
	return f.Write(w)
}

// sheet appends rows and keeps the first error.
type sheet struct {
	f    *excelize.File
	name string
	next int
	err  error
}

func (s *sheet) row(values ...any) {
	if s.err != nil {
		return
	}
	s.next++
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.name, cell, &values)
}

func styleHeader(f *excelize.File, sheets ...string) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	for _, name := range sheets {
		if err := f.SetRowStyle(name, 1, 1, style); err != nil {
			return fmt.Errorf("styling %s header: %w", name, err)
		}
		if err := f.SetPanes(name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freezing %s header: %w", name, err)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
