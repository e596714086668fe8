// Package status derives operator-facing summaries of feature progress and
// renders them for the terminal.
package status

import (
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
)

// ArtifactLister is the slice of the artifact store a summary reads.
type ArtifactLister interface {
	ByFeature(featureID string) []artifact.Artifact
}

// StageRow is one line of the per-stage breakdown.
type StageRow struct {
	Stage     string
	Name      string
	Status    feature.StageStatus
	Current   bool
	Attempts  int
	Retries   int
	Issues    int
	Artifacts int
	Error     string
}

// Summary is a point-in-time view of one feature.
type Summary struct {
	FeatureID     string
	Name          string
	Priority      feature.Priority
	Status        feature.Status
	StatusReason  string
	CurrentStage  string
	Completed     int
	Total         int
	Stages        []StageRow
	ArtifactCount int
	IssueCounts   map[issue.Severity]int
	Blocking      []issue.Issue
	FailedStage   string
}

// Summarize builds a Summary in pipeline order. A nil store reports the
// artifact ids recorded on the feature; a nil ledger is rebuilt from the
// feature's issue list.
func Summarize(f *feature.Feature, def *pipeline.Definition, store ArtifactLister, ledger *issue.Ledger) Summary {
	if ledger == nil {
		ledger = issue.NewLedger(f.ID, f.Issues...)
	}
	s := Summary{
		FeatureID:    f.ID,
		Name:         f.Name,
		Priority:     f.Priority,
		Status:       f.Status,
		StatusReason: f.StatusReason,
		CurrentStage: f.CurrentStage,
		IssueCounts:  ledger.Counts(),
		Blocking:     ledger.Blocking(),
	}
	if store != nil {
		s.ArtifactCount = len(store.ByFeature(f.ID))
	} else {
		s.ArtifactCount = len(f.Artifacts)
	}

	for _, stage := range def.Stages() {
		row := StageRow{
			Stage:   stage.ID,
			Name:    stage.Name,
			Status:  feature.StagePending,
			Current: stage.ID == f.CurrentStage && !f.Status.Terminal(),
			Issues:  len(ledger.ByStage(stage.ID)),
		}
		if result := f.Result(stage.ID); result != nil {
			row.Status = result.Status
			row.Attempts = len(result.Attempts)
			row.Retries = result.RetryCount
			row.Artifacts = len(result.ArtifactsProduced)
			if n := len(result.Attempts); n > 0 {
				row.Error = result.Attempts[n-1].Error
			}
		}
		switch row.Status {
		case feature.StageApproved, feature.StageSkipped:
			s.Completed++
		case feature.StageFailed:
			s.FailedStage = stage.ID
		}
		s.Stages = append(s.Stages, row)
	}
	s.Total = len(s.Stages)
	return s
}

// Progress returns the completed fraction in [0, 1].
func (s Summary) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// IssueTotal totals the ledger counts across severities.
func (s Summary) IssueTotal() int {
	total := 0
	for _, n := range s.IssueCounts {
		total += n
	}
	return total
}
