// Package artifact defines the versioned documents that pipeline stages
// exchange and the durable store that keeps them under the project's .cdm
// tree. Each artifact is identified logically by its (feature, type, name) triple
// and physically by a stable id.
package artifact

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type enumerates the artifact kinds a role can produce.
type Type string

const (
	TypeRequirementsDoc      Type = "requirements_doc"
	TypeUserStories          Type = "user_stories"
	TypeAcceptanceCriteria   Type = "acceptance_criteria"
	TypeArchitectureDoc      Type = "architecture_doc"
	TypeAPISpec              Type = "api_spec"
	TypeDataModel            Type = "data_model"
	TypeUISpec               Type = "ui_spec"
	TypeWireframes           Type = "wireframes"
	TypeAccessibilityReport  Type = "accessibility_report"
	TypeSourceCode           Type = "source_code"
	TypeCodeReviewReport     Type = "code_review_report"
	TypeTestPlan             Type = "test_plan"
	TypeUnitTests            Type = "unit_tests"
	TypeIntegrationTests     Type = "integration_tests"
	TypeTestReport           Type = "test_report"
	TypeSecurityReport       Type = "security_report"
	TypeComplianceReport     Type = "compliance_report"
	TypePerformanceReport    Type = "performance_report"
	TypeDocumentation        Type = "documentation"
	TypeAPIDocumentation     Type = "api_documentation"
	TypeUserGuide            Type = "user_guide"
	TypeDeploymentPlan       Type = "deployment_plan"
	TypeInfrastructureConfig Type = "infrastructure_config"
	TypeCICDConfig           Type = "ci_cd_config"
	TypeMonitoringConfig     Type = "monitoring_config"
	TypeReleaseNotes         Type = "release_notes"
)

var knownTypes = map[Type]string{
	TypeRequirementsDoc:      "Requirements Document",
	TypeUserStories:          "User Stories",
	TypeAcceptanceCriteria:   "Acceptance Criteria",
	TypeArchitectureDoc:      "Architecture Document",
	TypeAPISpec:              "API Specification",
	TypeDataModel:            "Data Model",
	TypeUISpec:               "UI Specification",
	TypeWireframes:           "Wireframes",
	TypeAccessibilityReport:  "Accessibility Report",
	TypeSourceCode:           "Source Code",
	TypeCodeReviewReport:     "Code Review Report",
	TypeTestPlan:             "Test Plan",
	TypeUnitTests:            "Unit Tests",
	TypeIntegrationTests:     "Integration Tests",
	TypeTestReport:           "Test Report",
	TypeSecurityReport:       "Security Report",
	TypeComplianceReport:     "Compliance Report",
	TypePerformanceReport:    "Performance Report",
	TypeDocumentation:        "Documentation",
	TypeAPIDocumentation:     "API Documentation",
	TypeUserGuide:            "User Guide",
	TypeDeploymentPlan:       "Deployment Plan",
	TypeInfrastructureConfig: "Infrastructure Config",
	TypeCICDConfig:           "CI/CD Config",
	TypeMonitoringConfig:     "Monitoring Config",
	TypeReleaseNotes:         "Release Notes",
}

// Types returns every known artifact type sorted by identifier.
func Types() []Type {
	types := make([]Type, 0, len(knownTypes))
	for t := range knownTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Known reports whether t is part of the artifact type enumeration.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Label returns the human readable name of the type.
func (t Type) Label() string {
	if label, ok := knownTypes[t]; ok {
		return label
	}
	return string(t)
}

// ParseType resolves a type label case-insensitively.
func ParseType(value string) (Type, error) {
	candidate := Type(strings.ToLower(strings.TrimSpace(value)))
	candidate = Type(strings.ReplaceAll(string(candidate), "-", "_"))
	if !candidate.Known() {
		return "", fmt.Errorf("artifact: unknown type %q", value)
	}
	return candidate, nil
}

// Status tracks review progress. The order below is total.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusInReview Status = "in_review"
	StatusRejected Status = "rejected"
	StatusApproved Status = "approved"
)

var statusRank = map[Status]int{
	StatusDraft:    0,
	StatusInReview: 1,
	StatusRejected: 2,
	StatusApproved: 3,
}

// Rank positions the status in progress order. Unknown values rank below draft.
func (s Status) Rank() int {
	if rank, ok := statusRank[s]; ok {
		return rank
	}
	return -1
}

// Known reports whether s is a recognised status.
func (s Status) Known() bool {
	_, ok := statusRank[s]
	return ok
}

// Statuses returns the statuses in progress order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusInReview, StatusRejected, StatusApproved}
}

// ReviewStatus records the outcome of the gate that accepted the artifact.
type ReviewStatus string

const (
	ReviewPending          ReviewStatus = "pending"
	ReviewPassed           ReviewStatus = "passed"
	ReviewChangesRequested ReviewStatus = "changes_requested"
	ReviewAdvisory         ReviewStatus = "advisory"
)

// Artifact is a typed document produced by one role during one stage.
type Artifact struct {
	ID           string
	Type         Type
	Name         string
	Description  string
	Content      string
	Version      int
	Status       Status
	ReviewStatus ReviewStatus
	CreatedBy    string
	Stage        string
	FeatureID    string
	FilePath     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the logical key shared by every version of an artifact.
// Artifacts of different features never share an identity.
type Identity struct {
	FeatureID string
	Type      Type
	Name      string
}

func (i Identity) String() string {
	if i.FeatureID == "" {
		return string(i.Type) + "/" + i.Name
	}
	return i.FeatureID + ":" + string(i.Type) + "/" + i.Name
}

// Identity returns the (feature, type, name) key for the artifact.
func (a Artifact) Identity() Identity {
	return Identity{FeatureID: a.FeatureID, Type: a.Type, Name: a.Name}
}

// Summary aggregates store contents for operator reporting.
type Summary struct {
	Total    int
	ByType   map[Type]int
	ByStatus map[Status]int
}

// StageCatalog resolves the artifact types a stage is declared to produce.
type StageCatalog interface {
	ArtifactTypesForStage(stage string) ([]Type, error)
}
