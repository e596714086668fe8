// Package producer defines the per-role content producer contract the
// orchestrator calls during a stage, and the built-in producer variants.
package producer

import (
	"context"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/validate"
)

// FeatureBrief is the read-only view of a feature handed to producers.
type FeatureBrief struct {
	ID          string
	Name        string
	Description string
	Priority    string
}

// StageContext is everything a producer sees for one role in one attempt.
type StageContext struct {
	Feature     FeatureBrief
	Stage       pipeline.Stage
	Role        role.Role
	Inputs      []artifact.Artifact
	Handoff     validate.Handoff
	Attempt     int
	PriorIssues []issue.Issue
}

// Draft is a produced document before the store assigns identity.
type Draft struct {
	Type        artifact.Type `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Content     string        `json:"content"`
}

// Output is what one producer call returns.
type Output struct {
	Artifacts []Draft
	Issues    []issue.Draft
}

// Merge appends other to o.
func (o *Output) Merge(other Output) {
	o.Artifacts = append(o.Artifacts, other.Artifacts...)
	o.Issues = append(o.Issues, other.Issues...)
}

// Producer generates a role's documents and findings for a stage.
type Producer interface {
	Produce(ctx context.Context, sc StageContext) (Output, error)
}

// Func adapts a plain function to Producer.
type Func func(ctx context.Context, sc StageContext) (Output, error)

// Produce calls f.
func (f Func) Produce(ctx context.Context, sc StageContext) (Output, error) {
	return f(ctx, sc)
}

// Set maps role ids to their bound producers.
type Set map[string]Producer

// For returns the producer bound to roleID.
func (s Set) For(roleID string) (Producer, bool) {
	p, ok := s[roleID]
	return p, ok && p != nil
}
