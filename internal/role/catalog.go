package role

import "github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"

// Role identifiers of the built-in catalog.
const (
	EngineeringManager      = "engineering_manager"
	ProductManager          = "product_manager"
	BusinessAnalyst         = "business_analyst"
	SystemArchitect         = "system_architect"
	UIDesigner              = "ui_designer"
	DatabaseSpecialist      = "database_specialist"
	SeniorDeveloper         = "senior_developer"
	JuniorDeveloper         = "junior_developer"
	CodeReviewer            = "code_reviewer"
	QAEngineer              = "qa_engineer"
	TestAutomationEngineer  = "test_automation_engineer"
	SecuritySpecialist      = "security_specialist"
	ComplianceOfficer       = "compliance_officer"
	PerformanceEngineer     = "performance_engineer"
	AccessibilitySpecialist = "accessibility_specialist"
	DocumentationWriter     = "documentation_writer"
	DevOpsEngineer          = "devops_engineer"
	SRE                     = "sre"
)

type types = []artifact.Type

// DefaultCatalog returns the 18 built-in roles.
func DefaultCatalog() []Role {
	return []Role{
		{
			ID:    EngineeringManager,
			Title: "Engineering Manager",
			DirectReports: []string{
				ProductManager, SystemArchitect, SeniorDeveloper, CodeReviewer, QAEngineer,
				SecuritySpecialist, PerformanceEngineer, DocumentationWriter, DevOpsEngineer,
			},
		},
		{
			ID:            ProductManager,
			Title:         "Product Manager",
			Outputs:       types{artifact.TypeRequirementsDoc, artifact.TypeUserStories},
			ReportsTo:     EngineeringManager,
			DirectReports: []string{BusinessAnalyst},
		},
		{
			ID:        BusinessAnalyst,
			Title:     "Business Analyst",
			Outputs:   types{artifact.TypeAcceptanceCriteria},
			ReportsTo: ProductManager,
		},
		{
			ID:             SystemArchitect,
			Title:          "System Architect",
			RequiredInputs: types{artifact.TypeRequirementsDoc},
			Outputs:        types{artifact.TypeArchitectureDoc, artifact.TypeAPISpec},
			ReportsTo:      EngineeringManager,
			DirectReports:  []string{UIDesigner, DatabaseSpecialist},
		},
		{
			ID:             UIDesigner,
			Title:          "UI Designer",
			RequiredInputs: types{artifact.TypeRequirementsDoc, artifact.TypeUserStories},
			Outputs:        types{artifact.TypeUISpec, artifact.TypeWireframes},
			ReportsTo:      SystemArchitect,
		},
		{
			ID:             DatabaseSpecialist,
			Title:          "Database Specialist",
			RequiredInputs: types{artifact.TypeRequirementsDoc},
			Outputs:        types{artifact.TypeDataModel},
			ReportsTo:      SystemArchitect,
		},
		{
			ID:             SeniorDeveloper,
			Title:          "Senior Developer",
			RequiredInputs: types{artifact.TypeArchitectureDoc, artifact.TypeAPISpec},
			Outputs:        types{artifact.TypeSourceCode},
			ReportsTo:      EngineeringManager,
			DirectReports:  []string{JuniorDeveloper},
		},
		{
			ID:             JuniorDeveloper,
			Title:          "Junior Developer",
			RequiredInputs: types{artifact.TypeArchitectureDoc},
			Outputs:        types{artifact.TypeUnitTests},
			ReportsTo:      SeniorDeveloper,
		},
		{
			ID:             CodeReviewer,
			Title:          "Code Reviewer",
			RequiredInputs: types{artifact.TypeSourceCode},
			Outputs:        types{artifact.TypeCodeReviewReport},
			ReportsTo:      EngineeringManager,
		},
		{
			ID:             QAEngineer,
			Title:          "QA Engineer",
			RequiredInputs: types{artifact.TypeSourceCode, artifact.TypeAcceptanceCriteria},
			Outputs:        types{artifact.TypeTestPlan, artifact.TypeTestReport},
			ReportsTo:      EngineeringManager,
			DirectReports:  []string{TestAutomationEngineer, AccessibilitySpecialist},
		},
		{
			ID:             TestAutomationEngineer,
			Title:          "Test Automation Engineer",
			RequiredInputs: types{artifact.TypeSourceCode},
			Outputs:        types{artifact.TypeIntegrationTests},
			ReportsTo:      QAEngineer,
		},
		{
			ID:             SecuritySpecialist,
			Title:          "Security Specialist",
			RequiredInputs: types{artifact.TypeSourceCode, artifact.TypeArchitectureDoc},
			Outputs:        types{artifact.TypeSecurityReport},
			ReportsTo:      EngineeringManager,
			DirectReports:  []string{ComplianceOfficer},
		},
		{
			ID:             ComplianceOfficer,
			Title:          "Compliance Officer",
			RequiredInputs: types{artifact.TypeRequirementsDoc},
			Outputs:        types{artifact.TypeComplianceReport},
			ReportsTo:      SecuritySpecialist,
		},
		{
			ID:             PerformanceEngineer,
			Title:          "Performance Engineer",
			RequiredInputs: types{artifact.TypeSourceCode},
			Outputs:        types{artifact.TypePerformanceReport},
			ReportsTo:      EngineeringManager,
		},
		{
			ID:             AccessibilitySpecialist,
			Title:          "Accessibility Specialist",
			RequiredInputs: types{artifact.TypeUISpec},
			Outputs:        types{artifact.TypeAccessibilityReport},
			ReportsTo:      QAEngineer,
		},
		{
			ID:             DocumentationWriter,
			Title:          "Documentation Writer",
			RequiredInputs: types{artifact.TypeSourceCode, artifact.TypeAPISpec},
			Outputs:        types{artifact.TypeDocumentation, artifact.TypeAPIDocumentation, artifact.TypeUserGuide},
			ReportsTo:      EngineeringManager,
		},
		{
			ID:             DevOpsEngineer,
			Title:          "DevOps Engineer",
			RequiredInputs: types{artifact.TypeSourceCode, artifact.TypeArchitectureDoc},
			Outputs:        types{artifact.TypeDeploymentPlan, artifact.TypeInfrastructureConfig, artifact.TypeCICDConfig},
			ReportsTo:      EngineeringManager,
			DirectReports:  []string{SRE},
		},
		{
			ID:             SRE,
			Title:          "Site Reliability Engineer",
			RequiredInputs: types{artifact.TypeDeploymentPlan},
			Outputs:        types{artifact.TypeMonitoringConfig, artifact.TypeReleaseNotes},
			ReportsTo:      DevOpsEngineer,
		},
	}
}

// Default builds a registry from DefaultCatalog.
func Default() *Registry {
	r, err := NewRegistry(DefaultCatalog()...)
	if err != nil {
		panic(err)
	}
	return r
}
