package status

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type stubLister map[string][]artifact.Artifact

func (s stubLister) ByFeature(featureID string) []artifact.Artifact {
	return s[featureID]
}

func testDefinition(t *testing.T) *pipeline.Definition {
	t.Helper()
	roles, err := role.NewRegistry(role.DefaultCatalog()...)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	def, err := pipeline.Default(roles, pipeline.DefaultPolicy())
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	return def
}

func finished(n int, status feature.StageStatus) feature.Attempt {
	at := fixedNow.Add(time.Duration(n) * time.Minute)
	return feature.Attempt{Number: n, Status: status, StartedAt: at, FinishedAt: &at}
}

func sampleFeature() *feature.Feature {
	f := feature.New("feat-1", "Checkout", "One page checkout", feature.PriorityHigh, pipeline.StageRequirements, fixedNow)
	f.CurrentStage = pipeline.StageImplementation
	f.StageResults[pipeline.StageRequirements] = &feature.StageResult{
		Stage:             pipeline.StageRequirements,
		Status:            feature.StageApproved,
		RetryCount:        1,
		ArtifactsProduced: []string{"a1", "a2"},
		Attempts:          []feature.Attempt{finished(1, feature.StageFailed), finished(2, feature.StageApproved)},
	}
	f.StageResults[pipeline.StageArchitecture] = &feature.StageResult{
		Stage:             pipeline.StageArchitecture,
		Status:            feature.StageApproved,
		ArtifactsProduced: []string{"a3"},
		Attempts:          []feature.Attempt{finished(1, feature.StageApproved)},
	}
	f.StageResults[pipeline.StageUIDesign] = &feature.StageResult{Stage: pipeline.StageUIDesign, Status: feature.StageSkipped}
	f.StageResults[pipeline.StageImplementation] = &feature.StageResult{
		Stage:    pipeline.StageImplementation,
		Status:   feature.StageInProgress,
		Attempts: []feature.Attempt{{Number: 1, Status: feature.StageInProgress, StartedAt: fixedNow, Error: "senior_developer: timed out"}},
	}
	f.Artifacts = []string{"a1", "a2", "a3"}
	f.Issues = []issue.Issue{
		{ID: "i1", FeatureID: f.ID, Type: issue.TypeBug, Severity: issue.SeverityCritical, Title: "Totals wrong", Stage: pipeline.StageRequirements, Attempt: 1, Status: issue.StatusResolved},
		{ID: "i2", FeatureID: f.ID, Type: issue.TypeCodeQuality, Severity: issue.SeverityLow, Title: "Naming", Stage: pipeline.StageRequirements, Attempt: 2, Status: issue.StatusOpen},
		{ID: "i3", FeatureID: f.ID, Type: issue.TypeSecurityVulnerability, Severity: issue.SeverityHigh, Title: "Card data logged", Stage: pipeline.StageImplementation, Attempt: 1, Status: issue.StatusOpen},
	}
	return f
}

func TestSummarizeFollowsPipelineOrder(t *testing.T) {
	def := testDefinition(t)
	f := sampleFeature()
	store := stubLister{f.ID: {{ID: "a1"}, {ID: "a2"}, {ID: "a3"}, {ID: "a4"}}}

	s := Summarize(f, def, store, nil)

	if s.Total != def.Len() || s.Completed != 3 {
		t.Fatalf("progress = %d/%d, want 3/%d", s.Completed, s.Total, def.Len())
	}
	if s.ArtifactCount != 4 {
		t.Fatalf("ArtifactCount = %d, want store count 4", s.ArtifactCount)
	}
	if s.FailedStage != "" {
		t.Fatalf("FailedStage = %q", s.FailedStage)
	}
	if got := s.Stages[0].Stage; got != pipeline.StageRequirements {
		t.Fatalf("first row = %s", got)
	}
	want := StageRow{
		Stage:     pipeline.StageRequirements,
		Name:      "Requirements Gathering",
		Status:    feature.StageApproved,
		Attempts:  2,
		Retries:   1,
		Issues:    2,
		Artifacts: 2,
	}
	if diff := cmp.Diff(want, s.Stages[0]); diff != "" {
		t.Fatalf("requirements row (-want +got):\n%s", diff)
	}
	impl := s.Stages[def.Index(pipeline.StageImplementation)]
	if !impl.Current || impl.Error != "senior_developer: timed out" {
		t.Fatalf("implementation row = %+v", impl)
	}
	if last := s.Stages[len(s.Stages)-1]; last.Status != feature.StagePending || last.Current {
		t.Fatalf("untouched stage row = %+v", last)
	}
	if diff := cmp.Diff(map[issue.Severity]int{issue.SeverityCritical: 1, issue.SeverityLow: 1, issue.SeverityHigh: 1}, s.IssueCounts); diff != "" {
		t.Fatalf("issue counts (-want +got):\n%s", diff)
	}
	if len(s.Blocking) != 1 || s.Blocking[0].ID != "i3" {
		t.Fatalf("blocking = %+v, want only the open high issue", s.Blocking)
	}
	if s.IssueTotal() != 3 {
		t.Fatalf("IssueTotal = %d", s.IssueTotal())
	}
}

func TestSummarizeFailedFeature(t *testing.T) {
	def := testDefinition(t)
	f := sampleFeature()
	f.Status = feature.StatusFailed
	f.StatusReason = "retries exhausted"
	f.StageResults[pipeline.StageImplementation].Status = feature.StageFailed

	s := Summarize(f, def, nil, issue.NewLedger(f.ID))
	if s.FailedStage != pipeline.StageImplementation {
		t.Fatalf("FailedStage = %q", s.FailedStage)
	}
	if s.ArtifactCount != 3 {
		t.Fatalf("ArtifactCount = %d, want feature artifact count", s.ArtifactCount)
	}
	for _, row := range s.Stages {
		if row.Current {
			t.Fatalf("terminal feature should have no current stage, got %s", row.Stage)
		}
	}
	if s.IssueTotal() != 0 {
		t.Fatalf("explicit empty ledger should be used, got %d issues", s.IssueTotal())
	}
}

func TestRenderIncludesStagesAndBlockingIssues(t *testing.T) {
	out := Render(Summarize(sampleFeature(), testDefinition(t), nil, nil))
	for _, want := range []string{
		"Checkout",
		"[feat-1]",
		"3/11",
		"Requirements Gathering",
		"UI Design",
		"approved",
		"skipped",
		"running",
		"retries 1",
		"Blocking issues (1):",
		"Card data logged",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Totals wrong") {
		t.Fatalf("resolved issue listed as blocking:\n%s", out)
	}
}

func TestSeverityLine(t *testing.T) {
	tests := []struct {
		counts map[issue.Severity]int
		want   string
	}{
		{nil, "none"},
		{map[issue.Severity]int{issue.SeverityHigh: 2, issue.SeverityInfo: 1}, "1 info, 2 high"},
		{map[issue.Severity]int{issue.SeverityLow: 0}, "none"},
	}
	for _, tt := range tests {
		if got := severityLine(tt.counts); got != tt.want {
			t.Fatalf("severityLine(%v) = %q, want %q", tt.counts, got, tt.want)
		}
	}
}

func TestTables(t *testing.T) {
	f := sampleFeature()
	features := FeatureTable([]*feature.Feature{f}, ASCII)
	for _, want := range []string{"feat-1", "Checkout", "implementation", "1 features"} {
		if !strings.Contains(features, want) {
			t.Fatalf("feature table missing %q:\n%s", want, features)
		}
	}

	artifacts := ArtifactTable([]artifact.Artifact{{
		ID: "a1", Type: artifact.TypeRequirementsDoc, Name: "Checkout - Requirements", Version: 2,
		Status: artifact.StatusApproved, ReviewStatus: artifact.ReviewPassed, CreatedBy: role.ProductManager,
		Stage: pipeline.StageRequirements,
	}}, Markdown)
	if !strings.HasPrefix(strings.TrimSpace(artifacts), "|") || !strings.Contains(artifacts, "requirements_doc") {
		t.Fatalf("artifact markdown table unexpected:\n%s", artifacts)
	}

	issues := IssueTable(f.Issues, ASCII)
	for _, want := range []string{"Card data logged", "3 issues", "1 blocking"} {
		if !strings.Contains(issues, want) {
			t.Fatalf("issue table missing %q:\n%s", want, issues)
		}
	}

	stages := StageTable(Summarize(f, testDefinition(t), nil, nil), ASCII)
	if !strings.Contains(stages, "3/11 done") || !strings.Contains(stages, "security_review") {
		t.Fatalf("stage table unexpected:\n%s", stages)
	}
}
