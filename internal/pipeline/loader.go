package pipeline

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

var _ artifact.StageCatalog = (*Definition)(nil)

// Stage identifiers of the default pipeline.
const (
	StageRequirements   = "requirements_gathering"
	StageArchitecture   = "architecture_design"
	StageUIDesign       = "ui_design"
	StageImplementation = "implementation"
	StageCodeReview     = "code_review"
	StageTesting        = "testing"
	StageSecurity       = "security_review"
	StagePerformance    = "performance_review"
	StageAccessibility  = "accessibility_review"
	StageDocumentation  = "documentation"
	StageDeployment     = "deployment"
)

// DefaultStages returns the built-in eleven stage pipeline.
func DefaultStages() []Stage {
	return []Stage{
		{ID: StageRequirements, Roles: []string{role.ProductManager, role.BusinessAnalyst}},
		{ID: StageArchitecture, Roles: []string{role.SystemArchitect, role.DatabaseSpecialist}, Consumes: []artifact.Type{artifact.TypeRequirementsDoc}},
		{ID: StageUIDesign, Name: "UI Design", Roles: []string{role.UIDesigner}, Consumes: []artifact.Type{artifact.TypeUserStories}, Skippable: true},
		{ID: StageImplementation, Roles: []string{role.SeniorDeveloper, role.JuniorDeveloper}, Consumes: []artifact.Type{artifact.TypeDataModel}},
		{ID: StageCodeReview, Roles: []string{role.CodeReviewer}},
		{ID: StageTesting, Roles: []string{role.QAEngineer, role.TestAutomationEngineer}, Consumes: []artifact.Type{artifact.TypeUnitTests}},
		{ID: StageSecurity, Roles: []string{role.SecuritySpecialist, role.ComplianceOfficer}},
		{ID: StagePerformance, Roles: []string{role.PerformanceEngineer}, Skippable: true},
		{ID: StageAccessibility, Roles: []string{role.AccessibilitySpecialist}, Skippable: true},
		{ID: StageDocumentation, Roles: []string{role.DocumentationWriter}},
		{ID: StageDeployment, Roles: []string{role.DevOpsEngineer, role.SRE}},
	}
}

// Default builds the built-in pipeline with policy p.
func Default(roles *role.Registry, p Policy) (*Definition, error) {
	return New(roles, DefaultStages(), p)
}

// definitionFile mirrors the YAML layout; pointers distinguish omitted
// policy keys from explicit zero values.
type definitionFile struct {
	Stages []Stage    `yaml:"stages"`
	Policy policyFile `yaml:"policy"`
}

type policyFile struct {
	MaxRetries        *int     `yaml:"max_retries"`
	TimeoutMinutes    *int     `yaml:"timeout_minutes"`
	AllowSkip         *bool    `yaml:"allow_skip"`
	SkipStages        []string `yaml:"skip_stages"`
	RequireApprovals  *bool    `yaml:"require_approvals"`
	ParallelExecution *bool    `yaml:"parallel_execution"`
}

func (f policyFile) apply(p Policy) Policy {
	if f.MaxRetries != nil {
		p.MaxRetries = *f.MaxRetries
	}
	if f.TimeoutMinutes != nil {
		p.TimeoutMinutes = *f.TimeoutMinutes
	}
	if f.AllowSkip != nil {
		p.AllowSkip = *f.AllowSkip
	}
	if f.SkipStages != nil {
		p.SkipStages = append([]string(nil), f.SkipStages...)
	}
	if f.RequireApprovals != nil {
		p.RequireApprovals = *f.RequireApprovals
	}
	if f.ParallelExecution != nil {
		p.ParallelExecution = *f.ParallelExecution
	}
	return p
}

// Parse decodes a YAML pipeline definition and validates it against roles.
// Policy keys left out fall back to DefaultPolicy.
func Parse(data []byte, roles *role.Registry) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: definition payload is empty", ErrConfig)
	}
	var file definitionFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode definition: %v", ErrConfig, err)
	}
	return New(roles, file.Stages, file.Policy.apply(DefaultPolicy()))
}

// Load reads a pipeline definition file.
func Load(path string, roles *role.Registry) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	def, err := Parse(data, roles)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s: %w", path, err)
	}
	return def, nil
}

// Marshal renders a definition in the file format Load accepts.
func Marshal(def *Definition) ([]byte, error) {
	p := def.Policy()
	out := struct {
		Stages []Stage `yaml:"stages"`
		Policy Policy  `yaml:"policy"`
	}{Stages: def.Stages(), Policy: p}
	return yaml.Marshal(out)
}
