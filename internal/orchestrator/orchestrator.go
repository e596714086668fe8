package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logbook"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logging"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/producer"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/validate"
)

var (
	// ErrFeatureFailed reports a feature that halted in the failed state.
	ErrFeatureFailed = errors.New("orchestrator: feature failed")
	// ErrPaused reports a feature that stopped because a pause was requested.
	ErrPaused = errors.New("orchestrator: feature paused")
)

// ArtifactStore is the slice of the artifact store the orchestrator needs.
type ArtifactStore interface {
	Save(a artifact.Artifact) (artifact.Artifact, error)
	LatestForFeature(featureID string, t artifact.Type) (artifact.Artifact, bool)
}

// FeatureRepository persists feature state and pause requests.
type FeatureRepository interface {
	Load(id string) (*feature.Feature, error)
	Save(f *feature.Feature) error
	RequestPause(id string) error
	PauseRequested(id string) bool
	ClearPause(id string) error
}

// HandoffBuilder assembles the handoff delivered to a stage's lead role.
type HandoffBuilder func(f *feature.Feature, stage pipeline.Stage, from, to string) validate.Handoff

// DefaultHandoff carries the feature brief as context and the stage
// instructions.
func DefaultHandoff(f *feature.Feature, stage pipeline.Stage, from, to string) validate.Handoff {
	brief := f.Name
	if desc := strings.TrimSpace(f.Description); desc != "" {
		brief = fmt.Sprintf("%s: %s", f.Name, desc)
	}
	return validate.Handoff{
		FromRole:     from,
		ToRole:       to,
		Stage:        stage.ID,
		Context:      brief,
		Instructions: stage.Instructions,
	}
}

// Config holds the orchestrator's collaborators. Logbooks and Logger are
// optional.
type Config struct {
	Definition *pipeline.Definition
	Roles      *role.Registry
	Store      ArtifactStore
	Producers  producer.Set
	Features   FeatureRepository
	Logbooks   logbook.Factory
	Logger     *logging.Logger
}

// Orchestrator drives features through the pipeline one stage at a time.
type Orchestrator struct {
	def       *pipeline.Definition
	roles     *role.Registry
	store     ArtifactStore
	producers producer.Set
	features  FeatureRepository
	logbooks  logbook.Factory
	logger    *logging.Logger
	validator *validate.Validator

	clock   func() time.Time
	newID   func() string
	timeout time.Duration
	handoff HandoffBuilder
}

// Option customizes the orchestrator instance.
type Option func(*Orchestrator)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithIDGenerator overrides how feature and artifact ids are minted.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithProducerTimeout overrides the policy's per-call producer deadline.
func WithProducerTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithHandoffBuilder replaces DefaultHandoff.
func WithHandoffBuilder(b HandoffBuilder) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.handoff = b
		}
	}
}

// New validates the configuration and wires an orchestrator. Every role of
// every stage must have a bound producer.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if cfg.Definition == nil || cfg.Definition.Len() == 0 {
		errs = append(errs, fmt.Errorf("orchestrator: pipeline definition is required"))
	}
	if cfg.Roles == nil {
		errs = append(errs, fmt.Errorf("orchestrator: role registry is required"))
	}
	if cfg.Store == nil {
		errs = append(errs, fmt.Errorf("orchestrator: artifact store is required"))
	}
	if cfg.Features == nil {
		errs = append(errs, fmt.Errorf("orchestrator: feature repository is required"))
	}
	if len(errs) == 0 {
		for _, stage := range cfg.Definition.Stages() {
			for _, id := range stage.Roles {
				if !cfg.Roles.Has(id) {
					errs = append(errs, fmt.Errorf("orchestrator: stage %s: %w: %s", stage.ID, role.ErrUnknownRole, id))
					continue
				}
				if _, ok := cfg.Producers.For(id); !ok {
					errs = append(errs, fmt.Errorf("orchestrator: stage %s: no producer bound for role %s", stage.ID, id))
				}
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	o := &Orchestrator{
		def:       cfg.Definition,
		roles:     cfg.Roles,
		store:     cfg.Store,
		producers: cfg.Producers,
		features:  cfg.Features,
		logbooks:  cfg.Logbooks,
		logger:    logger,
		validator: validate.New(cfg.Roles, cfg.Definition),
		clock:     time.Now,
		newID:     uuid.NewString,
		timeout:   cfg.Definition.Policy().Timeout(),
		handoff:   DefaultHandoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := CheckHandoffs(o.def, o.roles, o.handoff); err != nil {
		return nil, err
	}
	return o, nil
}

// CheckHandoffs builds every stage's handoff for a placeholder feature and
// reports, joined and wrapped with pipeline.ErrConfig, the ones that could
// never pass validation. A nil build uses DefaultHandoff.
func CheckHandoffs(def *pipeline.Definition, roles *role.Registry, build HandoffBuilder) error {
	if build == nil {
		build = DefaultHandoff
	}
	v := validate.New(roles, def)
	placeholder := &feature.Feature{ID: "handoff-check", Name: "handoff check", Description: "construction check"}
	var errs []error
	for _, stage := range def.Stages() {
		from, to := handoffSource(def, roles, stage), stage.Lead()
		if problems := v.Handoff(build(placeholder, stage, from, to)); !problems.OK() {
			errs = append(errs, fmt.Errorf("orchestrator: stage %s: %w: handoff %s -> %s: %s",
				stage.ID, pipeline.ErrConfig, from, to, problems.Error()))
		}
	}
	return errors.Join(errs...)
}

// Definition returns the pipeline the orchestrator runs.
func (o *Orchestrator) Definition() *pipeline.Definition {
	return o.def
}

// NewFeature describes a feature to create.
type NewFeature struct {
	Name        string
	Description string
	Priority    string
}

// Start creates and persists a feature, then runs it. The feature is
// returned even when the run ends in failure or pause.
func (o *Orchestrator) Start(ctx context.Context, req NewFeature) (*feature.Feature, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("orchestrator: feature name is required")
	}
	priority, err := feature.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	f := feature.New(o.newID(), name, strings.TrimSpace(req.Description), priority, o.def.First().ID, o.now())
	if err := o.features.Save(f); err != nil {
		return nil, fmt.Errorf("orchestrator: create feature: %w", err)
	}
	o.logger.WithFeature(f.ID).Info("feature created", "name", f.Name, "priority", string(f.Priority))
	return f, o.Run(ctx, f)
}

// ResumeOptions controls how Resume treats a failed feature.
type ResumeOptions struct {
	// RetryFailed resets the failed stage's retry budget and re-runs it.
	RetryFailed bool
}

// Resume reloads a persisted feature and continues it from its current
// stage. A stage interrupted mid-attempt is re-attempted from scratch.
func (o *Orchestrator) Resume(ctx context.Context, id string, opts ResumeOptions) (*feature.Feature, error) {
	f, err := o.features.Load(id)
	if err != nil {
		return nil, err
	}
	switch f.Status {
	case feature.StatusCompleted:
		return f, nil
	case feature.StatusFailed:
		if !opts.RetryFailed {
			return f, fmt.Errorf("orchestrator: feature %s: %w (%s)", f.ID, ErrFeatureFailed, f.StatusReason)
		}
		if result := f.Result(f.CurrentStage); result != nil && result.Status == feature.StageFailed {
			result.RetryCount = 0
			result.Status = feature.StagePending
		}
	}
	if err := o.features.ClearPause(f.ID); err != nil {
		return f, err
	}
	f.Status = feature.StatusActive
	f.StatusReason = ""
	return f, o.Run(ctx, f)
}

// Pause asks a running feature to stop before its next stage.
func (o *Orchestrator) Pause(id string) error {
	return o.features.RequestPause(id)
}

// Run drives f until it completes, fails, pauses, or ctx is cancelled.
// Run owns f for its duration.
func (o *Orchestrator) Run(ctx context.Context, f *feature.Feature) error {
	if f == nil {
		return fmt.Errorf("orchestrator: feature is required")
	}
	r := o.newRun(f)
	if f.Status == feature.StatusPaused {
		f.Status = feature.StatusActive
		f.StatusReason = ""
	}
	r.note(logbook.LevelInfo, "run started at stage %s", f.CurrentStage)
	for !f.Status.Terminal() {
		if err := ctx.Err(); err != nil {
			return r.interrupt(ctx, f.CurrentStage)
		}
		if o.features.PauseRequested(f.ID) {
			return r.pause()
		}
		stage, ok := o.def.Stage(f.CurrentStage)
		if !ok {
			return r.fail(nil, "unknown stage "+f.CurrentStage, nil)
		}
		if err := r.runStage(ctx, stage); err != nil {
			return err
		}
	}
	if f.Status == feature.StatusFailed {
		return fmt.Errorf("orchestrator: feature %s: %w (%s)", f.ID, ErrFeatureFailed, f.StatusReason)
	}
	return nil
}

// Outcome is the result of one feature in RunAll.
type Outcome struct {
	Feature *feature.Feature
	Err     error
}

// RunAll runs features concurrently, at most limit at a time (unbounded
// when limit <= 0). Each feature is cloned before running. Outcomes are
// returned in input order.
func (o *Orchestrator) RunAll(ctx context.Context, features []*feature.Feature, limit int) []Outcome {
	outcomes := make([]Outcome, len(features))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for idx, f := range features {
		own := f.Clone()
		g.Go(func() error {
			outcomes[idx] = Outcome{Feature: own, Err: o.Run(ctx, own)}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) now() time.Time {
	return o.clock().UTC()
}

func (o *Orchestrator) brief(f *feature.Feature) producer.FeatureBrief {
	return producer.FeatureBrief{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Priority:    string(f.Priority),
	}
}

// handoffSource picks the role handing work to stage's lead.
func (o *Orchestrator) handoffSource(stage pipeline.Stage) string {
	return handoffSource(o.def, o.roles, stage)
}

func handoffSource(def *pipeline.Definition, roles *role.Registry, stage pipeline.Stage) string {
	lead := stage.Lead()
	from := roles.Root()
	if prev, ok := def.Previous(stage.ID); ok {
		from = prev.Lead()
	}
	if from == lead {
		if manager := roles.Manager(lead); manager != "" {
			from = manager
		}
	}
	return from
}
