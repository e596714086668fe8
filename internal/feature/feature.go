// Package feature models a unit of work moving through the pipeline and its
// per-stage results.
package feature

import (
	"fmt"
	"strings"
	"time"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
)

// Status enumerates the coarse lifecycle of a feature.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
)

// Terminal reports whether no further stages will run without intervention.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority ranks features for operators. It does not affect execution.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority resolves a priority label; empty input defaults to medium.
func ParsePriority(value string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	default:
		return "", fmt.Errorf("feature: unknown priority %q", value)
	}
}

// StageStatus is the state of one stage for one feature.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageApproved   StageStatus = "approved"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// Attempt records the outcome of a single try at a stage.
type Attempt struct {
	Number     int         `json:"number"`
	Status     StageStatus `json:"status"`
	Artifacts  []string    `json:"artifacts,omitempty"`
	IssueIDs   []string    `json:"issue_ids,omitempty"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// StageResult tracks a stage across its attempts. Issues holds only the
// issues of the latest attempt; earlier attempts live in Attempts and in
// the feature's issue list.
type StageResult struct {
	Stage             string        `json:"stage"`
	Status            StageStatus   `json:"status"`
	ArtifactsProduced []string      `json:"artifacts_produced,omitempty"`
	Issues            []issue.Issue `json:"issues,omitempty"`
	RetryCount        int           `json:"retry_count"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	FinishedAt        *time.Time    `json:"finished_at,omitempty"`
	Attempts          []Attempt     `json:"attempts,omitempty"`
}

// CurrentAttempt returns the attempt number the next or running try uses.
// An unfinished last attempt is reused; numbering never restarts, even when
// the retry budget is reset.
func (r *StageResult) CurrentAttempt() int {
	n := len(r.Attempts)
	if n == 0 {
		return 1
	}
	last := r.Attempts[n-1]
	if last.FinishedAt == nil {
		return last.Number
	}
	return last.Number + 1
}

// IssueIDs returns the ids of the latest attempt's issues.
func (r *StageResult) IssueIDs() []string {
	ids := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		ids[i] = is.ID
	}
	return ids
}

// Feature is the unit of work the orchestrator drives.
type Feature struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Priority     Priority                `json:"priority"`
	Status       Status                  `json:"status"`
	StatusReason string                  `json:"status_reason,omitempty"`
	CurrentStage string                  `json:"current_stage"`
	StageResults map[string]*StageResult `json:"stage_results"`
	Artifacts    []string                `json:"artifacts,omitempty"`
	Issues       []issue.Issue           `json:"issues,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// New builds an active feature positioned at firstStage.
func New(id, name, description string, priority Priority, firstStage string, now time.Time) *Feature {
	return &Feature{
		ID:           id,
		Name:         name,
		Description:  description,
		Priority:     priority,
		Status:       StatusActive,
		CurrentStage: firstStage,
		StageResults: make(map[string]*StageResult),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
}

// Result returns the stage result for stage, or nil.
func (f *Feature) Result(stage string) *StageResult {
	if f == nil || f.StageResults == nil {
		return nil
	}
	return f.StageResults[stage]
}

// EnsureResult returns the result for stage, creating a pending one.
func (f *Feature) EnsureResult(stage string) *StageResult {
	if f.StageResults == nil {
		f.StageResults = make(map[string]*StageResult)
	}
	result, ok := f.StageResults[stage]
	if !ok {
		result = &StageResult{Stage: stage, Status: StagePending}
		f.StageResults[stage] = result
	}
	return result
}

// AddArtifact attributes an artifact id to the feature once.
func (f *Feature) AddArtifact(id string) {
	for _, existing := range f.Artifacts {
		if existing == id {
			return
		}
	}
	f.Artifacts = append(f.Artifacts, id)
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Artifacts = append([]string(nil), f.Artifacts...)
	clone.Issues = append([]issue.Issue(nil), f.Issues...)
	clone.StageResults = make(map[string]*StageResult, len(f.StageResults))
	for stage, result := range f.StageResults {
		r := *result
		r.ArtifactsProduced = append([]string(nil), result.ArtifactsProduced...)
		r.Issues = append([]issue.Issue(nil), result.Issues...)
		r.Attempts = make([]Attempt, len(result.Attempts))
		for i, a := range result.Attempts {
			a.Artifacts = append([]string(nil), a.Artifacts...)
			a.IssueIDs = append([]string(nil), a.IssueIDs...)
			r.Attempts[i] = a
		}
		clone.StageResults[stage] = &r
	}
	return &clone
}
