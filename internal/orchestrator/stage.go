package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logbook"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logging"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/producer"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/validate"
)

// Status reasons recorded on failed features.
const (
	ReasonRetriesExhausted = "retries exhausted"
	ReasonPersistence      = "persistence"
	ReasonTransition       = "invalid transition"
	ReasonInterrupted      = "interrupted"
	ReasonPauseRequested   = "pause requested"
)

// run is the mutable state of one feature for one Run call.
type run struct {
	o      *Orchestrator
	f      *feature.Feature
	ledger *issue.Ledger
	book   *logbook.Logbook
	logger *logging.Logger
}

func (o *Orchestrator) newRun(f *feature.Feature) *run {
	r := &run{
		o:      o,
		f:      f,
		ledger: issue.NewLedger(f.ID, f.Issues...),
		logger: o.logger.WithFeature(f.ID),
	}
	if o.logbooks != nil {
		book, err := o.logbooks(f.ID)
		if err != nil {
			r.logger.Warn("logbook unavailable", "error", err)
		}
		r.book = book
	}
	return r
}

// note appends to the feature's logbook; a failing logbook never halts a run.
func (r *run) note(level logbook.Level, format string, args ...any) {
	if err := r.book.Append(level, fmt.Sprintf(format, args...)); err != nil {
		r.logger.Warn("logbook append failed", "error", err)
	}
}

func (r *run) persist() error {
	r.f.UpdatedAt = r.o.now()
	if err := r.o.features.Save(r.f); err != nil {
		r.logger.Error("feature persist failed", "error", err)
		return fmt.Errorf("orchestrator: persist feature %s: %w", r.f.ID, err)
	}
	return nil
}

// interrupt returns the stage to pending and parks the feature as paused.
func (r *run) interrupt(ctx context.Context, stageID string) error {
	if result := r.f.Result(stageID); result != nil && result.Status == feature.StageInProgress {
		result.Status = feature.StagePending
		if n := len(result.Attempts); n > 0 && result.Attempts[n-1].FinishedAt == nil {
			result.Attempts[n-1].Error = ReasonInterrupted
		}
	}
	r.f.Status = feature.StatusPaused
	r.f.StatusReason = ReasonInterrupted
	r.note(logbook.LevelWarn, "stage %s interrupted: %v", stageID, ctx.Err())
	r.logger.Warn("run interrupted", "stage", stageID, "error", ctx.Err())
	if err := r.persist(); err != nil {
		return errors.Join(ctx.Err(), err)
	}
	return ctx.Err()
}

func (r *run) pause() error {
	if err := r.o.features.ClearPause(r.f.ID); err != nil {
		return err
	}
	r.f.Status = feature.StatusPaused
	r.f.StatusReason = ReasonPauseRequested
	r.note(logbook.LevelInfo, "paused before stage %s", r.f.CurrentStage)
	r.logger.Info("feature paused", "stage", r.f.CurrentStage)
	if err := r.persist(); err != nil {
		return err
	}
	return fmt.Errorf("orchestrator: feature %s: %w", r.f.ID, ErrPaused)
}

// fail halts the feature. cause, when set, is wrapped into the returned error.
func (r *run) fail(result *feature.StageResult, reason string, cause error) error {
	now := r.o.now()
	if result != nil {
		result.Status = feature.StageFailed
		result.FinishedAt = &now
	}
	r.f.Status = feature.StatusFailed
	r.f.StatusReason = reason
	r.note(logbook.LevelError, "feature failed at stage %s: %s", r.f.CurrentStage, reason)
	r.logger.Error("feature failed", "stage", r.f.CurrentStage, "reason", reason)
	failure := fmt.Errorf("orchestrator: feature %s: %w (%s)", r.f.ID, ErrFeatureFailed, reason)
	if cause != nil {
		failure = fmt.Errorf("%w: %w", failure, cause)
	}
	if err := r.persist(); err != nil {
		return errors.Join(failure, err)
	}
	return failure
}

// runStage runs one stage to approval, skip, or failure. Only cancellation
// and persistence problems surface as errors; a failed stage also fails
// the feature.
func (r *run) runStage(ctx context.Context, stage pipeline.Stage) error {
	result := r.f.EnsureResult(stage.ID)
	logger := r.logger.WithStage(stage.ID)
	if r.o.def.IsSkipped(stage.ID) {
		now := r.o.now()
		result.Status = feature.StageSkipped
		result.FinishedAt = &now
		r.note(logbook.LevelInfo, "stage %s skipped by policy", stage.ID)
		logger.Info("stage skipped")
		return r.advance(stage, result)
	}
	policy := r.o.def.Policy()
	for {
		blocked, err := r.attempt(ctx, stage, result)
		if err != nil {
			return err
		}
		if !blocked {
			now := r.o.now()
			result.Status = feature.StageApproved
			result.FinishedAt = &now
			r.note(logbook.LevelInfo, "stage %s approved after %d attempt(s)", stage.ID, len(result.Attempts))
			logger.Info("stage approved", "retries", result.RetryCount)
			return r.advance(stage, result)
		}
		if result.RetryCount < policy.MaxRetries {
			result.RetryCount++
			result.Status = feature.StagePending
			r.note(logbook.LevelWarn, "stage %s blocked, retry %d of %d", stage.ID, result.RetryCount, policy.MaxRetries)
			logger.Warn("stage blocked, retrying", "retry", result.RetryCount, "max_retries", policy.MaxRetries)
			if err := r.persist(); err != nil {
				return err
			}
			continue
		}
		return r.fail(result, ReasonRetriesExhausted, nil)
	}
}

// advance moves the feature past stage, completing it after the last one.
func (r *run) advance(stage pipeline.Stage, result *feature.StageResult) error {
	next, ok := r.o.def.Next(stage.ID)
	if !ok {
		r.f.Status = feature.StatusCompleted
		r.f.StatusReason = ""
		r.note(logbook.LevelInfo, "feature completed")
		r.logger.Info("feature completed", "artifacts", len(r.f.Artifacts), "issues", len(r.f.Issues))
		return r.persist()
	}
	if errs := r.o.validator.StageTransition(r.f, stage.ID, next.ID); !errs.OK() {
		return r.fail(result, ReasonTransition+": "+errs.Error(), nil)
	}
	r.f.CurrentStage = next.ID
	r.note(logbook.LevelInfo, "advanced to stage %s", next.ID)
	return r.persist()
}

// roleOutput pairs a role with what its producer returned.
type roleOutput struct {
	role string
	out  producer.Output
	err  error
}

// attempt performs one try at stage and reports whether it was blocked.
func (r *run) attempt(ctx context.Context, stage pipeline.Stage, result *feature.StageResult) (bool, error) {
	o := r.o
	policy := o.def.Policy()
	number := result.CurrentAttempt()
	logger := r.logger.WithStage(stage.ID).With("attempt", number)

	start := o.now()
	result.Status = feature.StageInProgress
	if result.StartedAt == nil {
		result.StartedAt = &start
	}
	result.FinishedAt = nil
	current := feature.Attempt{Number: number, Status: feature.StageInProgress, StartedAt: start}
	if n := len(result.Attempts); n > 0 && result.Attempts[n-1].Number == number {
		result.Attempts[n-1] = current
	} else {
		result.Attempts = append(result.Attempts, current)
	}
	att := &result.Attempts[len(result.Attempts)-1]
	r.note(logbook.LevelInfo, "stage %s attempt %d started", stage.ID, number)
	logger.Info("stage attempt started")
	if err := r.persist(); err != nil {
		return false, err
	}

	var drafts []issue.Draft
	inputs, missing := r.gatherInputs(stage)
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, t := range missing {
			names[i] = string(t)
		}
		drafts = append(drafts, issue.Draft{
			Type:        issue.TypeDependencyIssue,
			Severity:    issue.SeverityMedium,
			Title:       fmt.Sprintf("Missing inputs for %s", stage.Name),
			Description: "Required artifacts not found: " + strings.Join(names, ", "),
		})
		logger.Warn("stage inputs missing", "types", names)
	}

	from, to := o.handoffSource(stage), stage.Lead()
	handoff := o.handoff(r.f, stage, from, to)
	var failures []string
	handoffOK := true
	if errs := o.validator.Handoff(handoff); !errs.OK() {
		handoffOK = false
		failures = append(failures, "handoff: "+errs.Error())
		logger.Warn("handoff rejected", "from", from, "to", to, "error", errs.Error())
	}

	var outputs []roleOutput
	if handoffOK {
		sc := producer.StageContext{
			Feature:     o.brief(r.f),
			Stage:       stage,
			Inputs:      inputs,
			Handoff:     handoff,
			Attempt:     number,
			PriorIssues: append([]issue.Issue(nil), result.Issues...),
		}
		var err error
		outputs, err = r.produce(ctx, stage, sc, policy.ParallelExecution)
		if err != nil {
			return false, r.interrupt(ctx, stage.ID)
		}
	}

	var candidates []artifact.Artifact
	for _, ro := range outputs {
		if ro.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", ro.role, ro.err))
			logger.Warn("producer failed", "role", ro.role, "error", ro.err)
			continue
		}
		for _, d := range ro.out.Artifacts {
			a := artifact.Artifact{
				ID:          o.newID(),
				Type:        d.Type,
				Name:        strings.TrimSpace(d.Name),
				Description: d.Description,
				Content:     d.Content,
				CreatedBy:   ro.role,
				Stage:       stage.ID,
				FeatureID:   r.f.ID,
			}
			if errs := o.validator.Artifact(a); !errs.OK() {
				drafts = append(drafts, issue.Draft{
					Type:        issue.TypeDocumentationGap,
					Severity:    issue.SeverityHigh,
					Title:       fmt.Sprintf("Invalid %s from %s", d.Type, ro.role),
					Description: errs.Error(),
				})
				continue
			}
			candidates = append(candidates, a)
		}
		drafts = append(drafts, ro.out.Issues...)
	}

	issues := issue.Attach(r.f.ID, stage.ID, number, o.now(), drafts)
	blockingFound := validate.HasBlockingIssues(&feature.StageResult{Issues: issues})
	blocked := (blockingFound && policy.RequireApprovals) || !handoffOK

	status, review := artifact.StatusApproved, artifact.ReviewPassed
	switch {
	case blocked:
		status, review = artifact.StatusRejected, artifact.ReviewChangesRequested
	case blockingFound:
		review = artifact.ReviewAdvisory
	}
	candidates = append(candidates, r.fallbacks(stage, candidates)...)
	var stored []string
	for _, a := range candidates {
		if a.Status == "" {
			a.Status, a.ReviewStatus = status, review
		}
		saved, err := o.store.Save(a)
		if err != nil {
			att.Status = feature.StageFailed
			att.Error = err.Error()
			finished := o.now()
			att.FinishedAt = &finished
			return false, r.fail(result, ReasonPersistence, err)
		}
		stored = append(stored, saved.ID)
		r.f.AddArtifact(saved.ID)
		if !contains(result.ArtifactsProduced, saved.ID) {
			result.ArtifactsProduced = append(result.ArtifactsProduced, saved.ID)
		}
	}

	r.ledger.Record(issues...)
	r.f.Issues = r.ledger.All()
	result.Issues = issues

	finished := o.now()
	att.Artifacts = stored
	att.IssueIDs = result.IssueIDs()
	att.Error = strings.Join(failures, "; ")
	att.FinishedAt = &finished
	att.Status = feature.StageApproved
	if blocked {
		att.Status = feature.StageFailed
	}
	r.note(logbook.LevelInfo, "stage %s attempt %d finished: %d artifact(s), %d issue(s), blocked=%t",
		stage.ID, number, len(stored), len(issues), blocked)
	logger.Info("stage attempt finished", "artifacts", len(stored), "issues", len(issues), "blocked", blocked)
	return blocked, nil
}

// gatherInputs collects the latest feature artifacts for every type the
// stage's roles require or the stage consumes.
func (r *run) gatherInputs(stage pipeline.Stage) ([]artifact.Artifact, []artifact.Type) {
	wanted := r.o.roles.RequiredInputsFor(stage.Roles...)
	for _, t := range stage.Consumes {
		if !containsType(wanted, t) {
			wanted = append(wanted, t)
		}
	}
	var inputs []artifact.Artifact
	for _, t := range wanted {
		if a, ok := r.o.store.LatestForFeature(r.f.ID, t); ok {
			inputs = append(inputs, a)
		}
	}
	return inputs, validate.RequiredArtifactsPresent(wanted, inputs).Missing
}

// produce calls every role's producer, sequentially or concurrently. A
// per-role failure is carried in the output; only parent cancellation is
// returned as an error.
func (r *run) produce(ctx context.Context, stage pipeline.Stage, sc producer.StageContext, parallel bool) ([]roleOutput, error) {
	outputs := make([]roleOutput, len(stage.Roles))
	call := func(idx int, roleID string) {
		p, _ := r.o.producers.For(roleID)
		rc := sc
		rc.Role, _ = r.o.roles.Get(roleID)
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.o.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.o.timeout)
		}
		defer cancel()
		out, err := p.Produce(callCtx, rc)
		if err == nil {
			err = callCtx.Err()
		}
		outputs[idx] = roleOutput{role: roleID, out: out, err: err}
		if err != nil {
			outputs[idx].out = producer.Output{}
		}
	}
	if parallel {
		var g errgroup.Group
		for idx, roleID := range stage.Roles {
			g.Go(func() error {
				call(idx, roleID)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for idx, roleID := range stage.Roles {
			if ctx.Err() != nil {
				break
			}
			call(idx, roleID)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// fallbacks synthesizes a draft artifact for each declared output type no
// candidate covered.
func (r *run) fallbacks(stage pipeline.Stage, candidates []artifact.Artifact) []artifact.Artifact {
	covered := make(map[artifact.Type]struct{}, len(candidates))
	for _, a := range candidates {
		covered[a.Type] = struct{}{}
	}
	brief := r.o.brief(r.f)
	var out []artifact.Artifact
	for _, t := range stage.Produces {
		if _, ok := covered[t]; ok {
			continue
		}
		creator := stage.Lead()
		for _, id := range stage.Roles {
			if role, ok := r.o.roles.Get(id); ok && containsType(role.Outputs, t) {
				creator = id
				break
			}
		}
		out = append(out, artifact.Artifact{
			ID:           r.o.newID(),
			Type:         t,
			Name:         producer.DraftName(brief, t),
			Description:  fmt.Sprintf("Placeholder %s for %s", t.Label(), stage.Name),
			Content:      fmt.Sprintf("# %s: %s\n\nNo content was produced during %s. This placeholder awaits a producer.\n", t.Label(), r.f.Name, stage.Name),
			Status:       artifact.StatusDraft,
			ReviewStatus: artifact.ReviewPending,
			CreatedBy:    creator,
			Stage:        stage.ID,
			FeatureID:    r.f.ID,
		})
		r.logger.WithStage(stage.ID).Warn("fallback artifact synthesized", "type", string(t))
	}
	return out
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func containsType(items []artifact.Type, want artifact.Type) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
