// Package pipeline declares the ordered stages a feature moves through and
// the policy governing retries, skips, approvals and timeouts.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

// ErrConfig marks configuration mistakes that must abort startup.
var ErrConfig = errors.New("pipeline: invalid configuration")

// Stage is one ordered step of the pipeline.
type Stage struct {
	ID           string          `yaml:"id"`
	Name         string          `yaml:"name,omitempty"`
	Roles        []string        `yaml:"roles"`
	Consumes     []artifact.Type `yaml:"consumes,omitempty"`
	Produces     []artifact.Type `yaml:"produces,omitempty"`
	Skippable    bool            `yaml:"skippable,omitempty"`
	Instructions string          `yaml:"instructions,omitempty"`
}

// Lead returns the first responsible role.
func (s Stage) Lead() string {
	if len(s.Roles) == 0 {
		return ""
	}
	return s.Roles[0]
}

func (s Stage) clone() Stage {
	s.Roles = append([]string(nil), s.Roles...)
	s.Consumes = append([]artifact.Type(nil), s.Consumes...)
	s.Produces = append([]artifact.Type(nil), s.Produces...)
	return s
}

// Policy governs how the orchestrator treats every stage.
type Policy struct {
	MaxRetries        int      `yaml:"max_retries"`
	TimeoutMinutes    int      `yaml:"timeout_minutes"`
	AllowSkip         bool     `yaml:"allow_skip"`
	SkipStages        []string `yaml:"skip_stages,omitempty"`
	RequireApprovals  bool     `yaml:"require_approvals"`
	ParallelExecution bool     `yaml:"parallel_execution"`
}

// Default policy values.
const (
	DefaultMaxRetries     = 2
	DefaultTimeoutMinutes = 30
)

// DefaultPolicy returns the policy used when no overrides are configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:       DefaultMaxRetries,
		TimeoutMinutes:   DefaultTimeoutMinutes,
		AllowSkip:        true,
		RequireApprovals: true,
	}
}

// Timeout converts TimeoutMinutes; zero disables the producer deadline.
func (p Policy) Timeout() time.Duration {
	return time.Duration(p.TimeoutMinutes) * time.Minute
}

func (p Policy) clone() Policy {
	p.SkipStages = append([]string(nil), p.SkipStages...)
	return p
}

// Definition is a validated, immutable pipeline.
type Definition struct {
	stages []Stage
	index  map[string]int
	skip   map[string]struct{}
	policy Policy
}

// New validates stages and policy against the role catalog. Every
// configuration problem is reported and wrapped with ErrConfig.
func New(roles *role.Registry, stages []Stage, policy Policy) (*Definition, error) {
	if roles == nil {
		return nil, fmt.Errorf("%w: role registry is required", ErrConfig)
	}
	def := &Definition{
		index:  make(map[string]int, len(stages)),
		skip:   make(map[string]struct{}),
		policy: policy.clone(),
	}
	var errs []error
	if len(stages) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one stage is required", ErrConfig))
	}
	for idx, raw := range stages {
		stage := normalizeStage(raw, roles)
		if stage.ID == "" {
			errs = append(errs, fmt.Errorf("%w: stage[%d] id is required", ErrConfig, idx))
			continue
		}
		if _, dup := def.index[stage.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate stage %s", ErrConfig, stage.ID))
			continue
		}
		errs = append(errs, checkStage(stage, roles)...)
		def.index[stage.ID] = len(def.stages)
		def.stages = append(def.stages, stage)
	}
	errs = append(errs, def.checkPolicy()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return def, nil
}

func normalizeStage(stage Stage, roles *role.Registry) Stage {
	stage = stage.clone()
	stage.ID = strings.TrimSpace(stage.ID)
	if stage.Name == "" {
		stage.Name = humanize(stage.ID)
	}
	if len(stage.Produces) == 0 {
		stage.Produces = roles.OutputsFor(stage.Roles...)
	}
	if strings.TrimSpace(stage.Instructions) == "" {
		stage.Instructions = fmt.Sprintf("Complete the %s stage.", stage.Name)
		if len(stage.Produces) > 0 {
			labels := make([]string, 0, len(stage.Produces))
			for _, t := range stage.Produces {
				labels = append(labels, t.Label())
			}
			stage.Instructions = fmt.Sprintf("Produce the %s for the %s stage.", strings.Join(labels, ", "), stage.Name)
		}
	}
	return stage
}

func checkStage(stage Stage, roles *role.Registry) []error {
	var errs []error
	if len(stage.Roles) == 0 {
		errs = append(errs, fmt.Errorf("%w: stage %s has no responsible roles", ErrConfig, stage.ID))
	}
	for _, id := range stage.Roles {
		if !roles.Has(id) {
			errs = append(errs, fmt.Errorf("%w: stage %s references unknown role %s", ErrConfig, stage.ID, id))
		}
	}
	for _, t := range append(append([]artifact.Type{}, stage.Consumes...), stage.Produces...) {
		if !t.Known() {
			errs = append(errs, fmt.Errorf("%w: stage %s references unknown artifact type %q", ErrConfig, stage.ID, t))
		}
	}
	return errs
}

func (def *Definition) checkPolicy() []error {
	var errs []error
	p := def.policy
	if p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: max_retries must be >= 0", ErrConfig))
	}
	if p.TimeoutMinutes < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout_minutes must be >= 0", ErrConfig))
	}
	if len(p.SkipStages) > 0 && !p.AllowSkip {
		errs = append(errs, fmt.Errorf("%w: skip_stages set while allow_skip is false", ErrConfig))
	}
	for _, id := range p.SkipStages {
		idx, ok := def.index[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: skip_stages references unknown stage %s", ErrConfig, id))
			continue
		}
		if !def.stages[idx].Skippable {
			errs = append(errs, fmt.Errorf("%w: stage %s is not skippable", ErrConfig, id))
			continue
		}
		def.skip[id] = struct{}{}
	}
	return errs
}

// WithPolicy returns a copy of the definition governed by p.
func (def *Definition) WithPolicy(roles *role.Registry, p Policy) (*Definition, error) {
	return New(roles, def.stages, p)
}

// Policy returns a copy of the pipeline policy.
func (def *Definition) Policy() Policy {
	return def.policy.clone()
}

// Stages returns the stages in pipeline order.
func (def *Definition) Stages() []Stage {
	out := make([]Stage, len(def.stages))
	for i, s := range def.stages {
		out[i] = s.clone()
	}
	return out
}

// IDs returns the stage ids in pipeline order.
func (def *Definition) IDs() []string {
	ids := make([]string, len(def.stages))
	for i, s := range def.stages {
		ids[i] = s.ID
	}
	return ids
}

// Len returns the number of stages.
func (def *Definition) Len() int {
	return len(def.stages)
}

// Stage returns the stage with id.
func (def *Definition) Stage(id string) (Stage, bool) {
	idx, ok := def.index[id]
	if !ok {
		return Stage{}, false
	}
	return def.stages[idx].clone(), true
}

// Has reports whether id is a defined stage.
func (def *Definition) Has(id string) bool {
	_, ok := def.index[id]
	return ok
}

// Index returns the pipeline position of id, or -1 when undefined.
func (def *Definition) Index(id string) int {
	if idx, ok := def.index[id]; ok {
		return idx
	}
	return -1
}

// First returns the first stage.
func (def *Definition) First() Stage {
	return def.stages[0].clone()
}

// Last returns the final stage.
func (def *Definition) Last() Stage {
	return def.stages[len(def.stages)-1].clone()
}

// Next returns the stage after id; false at the end or for unknown ids.
func (def *Definition) Next(id string) (Stage, bool) {
	idx, ok := def.index[id]
	if !ok || idx+1 >= len(def.stages) {
		return Stage{}, false
	}
	return def.stages[idx+1].clone(), true
}

// Previous returns the stage before id; false at the start or for unknown ids.
func (def *Definition) Previous(id string) (Stage, bool) {
	idx, ok := def.index[id]
	if !ok || idx == 0 {
		return Stage{}, false
	}
	return def.stages[idx-1].clone(), true
}

// IsSkipped reports whether policy skips id.
func (def *Definition) IsSkipped(id string) bool {
	_, ok := def.skip[id]
	return ok
}

// ArtifactTypesForStage returns the types stage id is declared to produce.
// It is total over defined stages; an undefined stage is a configuration error.
func (def *Definition) ArtifactTypesForStage(id string) ([]artifact.Type, error) {
	stage, ok := def.Stage(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %s", ErrConfig, id)
	}
	if stage.Produces == nil {
		return []artifact.Type{}, nil
	}
	return stage.Produces, nil
}

// InputTypesForStage returns the types stage id declares it consumes.
func (def *Definition) InputTypesForStage(id string) ([]artifact.Type, error) {
	stage, ok := def.Stage(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %s", ErrConfig, id)
	}
	if stage.Consumes == nil {
		return []artifact.Type{}, nil
	}
	return stage.Consumes, nil
}

func humanize(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
