package status

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
)

// Mode controls table output.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal tables
	Markdown             // GitHub-flavoured Markdown
)

const titleWidth = 60

func newWriter(mode Mode) table.Writer {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
	}
	w.Style().Format.Footer = text.FormatDefault
	return w
}

func render(w table.Writer, mode Mode) string {
	if mode == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// FeatureTable lists features, one per row.
func FeatureTable(features []*feature.Feature, mode Mode) string {
	w := newWriter(mode)
	w.AppendHeader(table.Row{"ID", "Name", "Priority", "Status", "Stage", "Artifacts", "Issues", "Updated"})
	for _, f := range features {
		w.AppendRow(table.Row{
			f.ID, f.Name, f.Priority, f.Status, f.CurrentStage,
			len(f.Artifacts), len(f.Issues), f.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.AppendFooter(table.Row{"", fmt.Sprintf("%d features", len(features))})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return render(w, mode)
}

// StageTable lists the per-stage breakdown of a summary.
func StageTable(s Summary, mode Mode) string {
	w := newWriter(mode)
	w.AppendHeader(table.Row{"Stage", "Status", "Attempts", "Retries", "Artifacts", "Issues"})
	for _, row := range s.Stages {
		w.AppendRow(table.Row{row.Stage, row.Status, row.Attempts, row.Retries, row.Artifacts, row.Issues})
	}
	w.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d done", s.Completed, s.Total)})
	return render(w, mode)
}

// ArtifactTable lists artifacts, newest first as given.
func ArtifactTable(items []artifact.Artifact, mode Mode) string {
	w := newWriter(mode)
	w.AppendHeader(table.Row{"ID", "Type", "Name", "Version", "Status", "Review", "Creator", "Stage"})
	for _, a := range items {
		w.AppendRow(table.Row{
			a.ID, a.Type, a.Name, a.Version, a.Status, a.ReviewStatus, a.CreatedBy, a.Stage,
		})
	}
	w.AppendFooter(table.Row{"", fmt.Sprintf("%d artifacts", len(items))})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: titleWidth},
		{Number: 4, Align: text.AlignRight},
	})
	return render(w, mode)
}

// IssueTable lists issues in the order given.
func IssueTable(items []issue.Issue, mode Mode) string {
	w := newWriter(mode)
	w.AppendHeader(table.Row{"ID", "Severity", "Type", "Stage", "Attempt", "Status", "Title"})
	blocking := 0
	for _, is := range items {
		if is.Blocking() {
			blocking++
		}
		w.AppendRow(table.Row{is.ID, is.Severity, is.Type, is.Stage, is.Attempt, is.Status, is.Title})
	}
	w.AppendFooter(table.Row{"", fmt.Sprintf("%d issues", len(items)), fmt.Sprintf("%d blocking", blocking)})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: titleWidth},
	})
	return render(w, mode)
}
