// Package validate holds the pure checks the orchestrator runs on artifacts,
// handoffs, stage transitions and stage results. Every check returns
// field-tagged errors instead of failing.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

// FieldError ties a problem to the field that caused it.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Errors is the result of a check. An empty list means valid.
type Errors []FieldError

// OK reports whether no problems were found.
func (errs Errors) OK() bool {
	return len(errs) == 0
}

func (errs Errors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Err returns nil for an empty list and the list itself otherwise.
func (errs Errors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (errs *Errors) add(field, format string, args ...any) {
	*errs = append(*errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Handoff carries context and instructions from one role to another at a
// stage boundary.
type Handoff struct {
	FromRole     string
	ToRole       string
	Stage        string
	Context      string
	Instructions string
}

// Validator checks shapes against the immutable role catalog and pipeline.
type Validator struct {
	roles *role.Registry
	def   *pipeline.Definition
}

// New builds a validator.
func New(roles *role.Registry, def *pipeline.Definition) *Validator {
	return &Validator{roles: roles, def: def}
}

// Artifact checks an artifact is complete enough to store and consume.
func (v *Validator) Artifact(a artifact.Artifact) Errors {
	var errs Errors
	if strings.TrimSpace(a.ID) == "" {
		errs.add("id", "is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		errs.add("name", "is required")
	}
	if !a.Type.Known() {
		errs.add("type", "unknown artifact type %q", a.Type)
	}
	if !v.roles.Has(a.CreatedBy) {
		errs.add("created_by", "unknown role %q", a.CreatedBy)
	}
	if strings.TrimSpace(a.Content) == "" {
		errs.add("content", "is required")
	}
	return errs
}

// Handoff checks a handoff can be acted upon.
func (v *Validator) Handoff(h Handoff) Errors {
	var errs Errors
	if !v.roles.Has(h.FromRole) {
		errs.add("from_role", "unknown role %q", h.FromRole)
	}
	if !v.roles.Has(h.ToRole) {
		errs.add("to_role", "unknown role %q", h.ToRole)
	}
	if h.FromRole != "" && h.FromRole == h.ToRole {
		errs.add("to_role", "must differ from from_role")
	}
	if !v.def.Has(h.Stage) {
		errs.add("stage", "unknown stage %q", h.Stage)
	}
	if strings.TrimSpace(h.Context) == "" {
		errs.add("context", "is required")
	}
	if strings.TrimSpace(h.Instructions) == "" {
		errs.add("instructions", "is required")
	}
	return errs
}

// StageTransition checks that f may move from one stage to another: to
// must follow from directly, or only across stages the policy skips, and
// from must already be approved or skipped.
func (v *Validator) StageTransition(f *feature.Feature, from, to string) Errors {
	var errs Errors
	fromIdx, toIdx := v.def.Index(from), v.def.Index(to)
	if fromIdx < 0 {
		errs.add("from", "unknown stage %q", from)
	}
	if toIdx < 0 {
		errs.add("to", "unknown stage %q", to)
	}
	if !errs.OK() {
		return errs
	}
	if toIdx <= fromIdx {
		errs.add("to", "%s does not come after %s", to, from)
	} else if toIdx > fromIdx+1 {
		policy := v.def.Policy()
		stages := v.def.IDs()
		for _, between := range stages[fromIdx+1 : toIdx] {
			if !policy.AllowSkip || !v.def.IsSkipped(between) {
				errs.add("to", "cannot skip stage %s", between)
			}
		}
	}
	result := f.Result(from)
	switch {
	case result == nil:
		errs.add("from", "stage %s has no result", from)
	case result.Status != feature.StageApproved && result.Status != feature.StageSkipped:
		errs.add("from", "stage %s is %s, want approved or skipped", from, result.Status)
	}
	return errs
}

// HasBlockingIssues reports whether any issue on the result is critical or high.
func HasBlockingIssues(result *feature.StageResult) bool {
	if result == nil {
		return false
	}
	for _, is := range result.Issues {
		if is.Severity.Blocking() {
			return true
		}
	}
	return false
}

// Presence is the outcome of a required-artifact check.
type Presence struct {
	Satisfied bool
	Missing   []artifact.Type
}

// RequiredArtifactsPresent reports which required types are absent from available.
func RequiredArtifactsPresent(required []artifact.Type, available []artifact.Artifact) Presence {
	have := make(map[artifact.Type]struct{}, len(available))
	for _, a := range available {
		have[a.Type] = struct{}{}
	}
	missing := []artifact.Type{}
	seen := map[artifact.Type]struct{}{}
	for _, t := range required {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := have[t]; !ok {
			missing = append(missing, t)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return Presence{Satisfied: len(missing) == 0, Missing: missing}
}
