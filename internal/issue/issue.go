// Package issue models the findings raised while a stage runs and the
// per-feature ledger that accumulates them.
package issue

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity ranks a finding. The order is total: info < low < medium < high < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Severities lists every severity from least to most severe.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Rank returns the position of s in the severity order, or -1 when unknown.
func (s Severity) Rank() int {
	if rank, ok := severityRank[s]; ok {
		return rank
	}
	return -1
}

// Known reports whether s is a recognised severity.
func (s Severity) Known() bool {
	_, ok := severityRank[s]
	return ok
}

// Blocking reports whether the severity gates stage approval.
func (s Severity) Blocking() bool {
	return s.Rank() >= severityRank[SeverityHigh]
}

// SeverityFrom parses a severity label case-insensitively.
func SeverityFrom(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if !s.Known() {
		return "", fmt.Errorf("issue: unknown severity %q", value)
	}
	return s, nil
}

// Type classifies a finding.
type Type string

const (
	TypeBug                    Type = "bug"
	TypeDesignFlaw             Type = "design_flaw"
	TypeSecurityVulnerability  Type = "security_vulnerability"
	TypePerformance            Type = "performance"
	TypeCodeQuality            Type = "code_quality"
	TypeMissingTest            Type = "missing_test"
	TypeDocumentationGap       Type = "documentation_gap"
	TypeDependencyIssue        Type = "dependency_issue"
	TypeArchitectureConcern    Type = "architecture_concern"
	TypeAccessibilityViolation Type = "accessibility_violation"
)

var knownTypes = map[Type]struct{}{
	TypeBug: {}, TypeDesignFlaw: {}, TypeSecurityVulnerability: {}, TypePerformance: {},
	TypeCodeQuality: {}, TypeMissingTest: {}, TypeDocumentationGap: {}, TypeDependencyIssue: {},
	TypeArchitectureConcern: {}, TypeAccessibilityViolation: {},
}

// Known reports whether t is a recognised issue type.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// TypeFrom parses an issue type label; spaces and dashes map to underscores.
func TypeFrom(value string) (Type, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	t := Type(normalized)
	if !t.Known() {
		return "", fmt.Errorf("issue: unknown type %q", value)
	}
	return t, nil
}

// Status tracks resolution separately from the immutable finding.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Issue is a single finding raised during one attempt of one stage.
type Issue struct {
	ID          string     `json:"id"`
	FeatureID   string     `json:"feature_id"`
	Type        Type       `json:"type"`
	Severity    Severity   `json:"severity"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Stage       string     `json:"stage"`
	Attempt     int        `json:"attempt"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Blocking reports whether the issue is open and gates approval.
func (i Issue) Blocking() bool {
	return i.Status != StatusResolved && i.Severity.Blocking()
}

var idNamespace = uuid.MustParse("8c0f6bd4-52b1-4f35-9c1e-3d7f0a6a2e51")

// DeterministicID derives a stable id from where and what the finding is,
// so replaying an identical attempt yields identical ids.
func DeterministicID(featureID, stage string, attempt, index int, t Type, title string) string {
	key := strings.Join([]string{featureID, stage, strconv.Itoa(attempt), strconv.Itoa(index), string(t), title}, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// Draft is an issue before it is attached to a feature attempt.
type Draft struct {
	Type        Type
	Severity    Severity
	Title       string
	Description string
}

// Attach turns drafts into issues scoped to one stage attempt.
func Attach(featureID, stage string, attempt int, at time.Time, drafts []Draft) []Issue {
	issues := make([]Issue, 0, len(drafts))
	for idx, d := range drafts {
		issues = append(issues, Issue{
			ID:          DeterministicID(featureID, stage, attempt, idx, d.Type, d.Title),
			FeatureID:   featureID,
			Type:        d.Type,
			Severity:    d.Severity,
			Title:       d.Title,
			Description: d.Description,
			Stage:       stage,
			Attempt:     attempt,
			Status:      StatusOpen,
			CreatedAt:   at.UTC(),
		})
	}
	return issues
}
