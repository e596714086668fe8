package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logbook"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/producer"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/validate"
)

const (
	stageAlpha = "alpha"
	stageBeta  = "beta"
	stageGamma = "gamma"
)

func threeStages() []pipeline.Stage {
	return []pipeline.Stage{
		{ID: stageAlpha, Roles: []string{role.ProductManager}},
		{ID: stageBeta, Roles: []string{role.SystemArchitect}, Skippable: true},
		{ID: stageGamma, Roles: []string{role.SeniorDeveloper}},
	}
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type sequence struct {
	n atomic.Int64
}

func (s *sequence) Next() string {
	return fmt.Sprintf("%08d", s.n.Add(1))
}

type harness struct {
	t     *testing.T
	fs    afero.Fs
	roles *role.Registry
	def   *pipeline.Definition
	store *artifact.Store
	repo  *feature.Repository
	clock *stepClock
	ids   *sequence
}

func newHarness(t *testing.T, policy pipeline.Policy) *harness {
	t.Helper()
	roles := role.Default()
	def, err := pipeline.New(roles, threeStages(), policy)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	fs := afero.NewMemMapFs()
	clock := &stepClock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	store, err := artifact.NewStore(fs, "/proj/.cdm/artifacts", artifact.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return &harness{
		t:     t,
		fs:    fs,
		roles: roles,
		def:   def,
		store: store,
		repo:  feature.NewRepository(fs, "/proj/.cdm/features"),
		clock: clock,
		ids:   &sequence{},
	}
}

// documents emits one draft per output type of the called role.
func documents(sc producer.StageContext) []producer.Draft {
	var drafts []producer.Draft
	for _, t := range sc.Role.Outputs {
		drafts = append(drafts, producer.Draft{
			Type:    t,
			Name:    producer.DraftName(sc.Feature, t),
			Content: fmt.Sprintf("%s for %s (attempt %d)", t, sc.Feature.Name, sc.Attempt),
		})
	}
	return drafts
}

var standard = producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
	return producer.Output{Artifacts: documents(sc)}, nil
})

func withIssues(sc producer.StageContext, drafts ...issue.Draft) producer.Output {
	return producer.Output{Artifacts: documents(sc), Issues: drafts}
}

func critical(title string) issue.Draft {
	return issue.Draft{Type: issue.TypeDesignFlaw, Severity: issue.SeverityCritical, Title: title}
}

func medium(title string) issue.Draft {
	return issue.Draft{Type: issue.TypeCodeQuality, Severity: issue.SeverityMedium, Title: title}
}

func (h *harness) producers(overrides map[string]producer.Producer) producer.Set {
	set := producer.Set{}
	for _, stage := range h.def.Stages() {
		for _, id := range stage.Roles {
			set[id] = standard
		}
	}
	for id, p := range overrides {
		set[id] = p
	}
	return set
}

func (h *harness) orchestrator(set producer.Set, store ArtifactStore, opts ...Option) *Orchestrator {
	h.t.Helper()
	if store == nil {
		store = h.store
	}
	opts = append([]Option{WithClock(h.clock.Now), WithIDGenerator(h.ids.Next)}, opts...)
	o, err := New(Config{
		Definition: h.def,
		Roles:      h.roles,
		Store:      store,
		Producers:  set,
		Features:   h.repo,
		Logbooks:   logbook.DirFactory(h.fs, "/proj/.cdm/features"),
	}, opts...)
	if err != nil {
		h.t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func policy(maxRetries int) pipeline.Policy {
	p := pipeline.DefaultPolicy()
	p.MaxRetries = maxRetries
	return p
}

func start(t *testing.T, o *Orchestrator) (*feature.Feature, error) {
	t.Helper()
	f, err := o.Start(context.Background(), NewFeature{Name: "Checkout", Description: "One page checkout", Priority: "high"})
	if f == nil {
		t.Fatalf("start returned no feature: %v", err)
	}
	return f, err
}

func issuesForStage(f *feature.Feature, stage string) []issue.Issue {
	var out []issue.Issue
	for _, is := range f.Issues {
		if is.Stage == stage {
			out = append(out, is)
		}
	}
	return out
}

func TestBlockingIssueRetriesThenApproves(t *testing.T) {
	h := newHarness(t, policy(1))
	var calls atomic.Int32
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		if calls.Add(1) == 1 {
			return withIssues(sc, critical("no service boundaries")), nil
		}
		if len(sc.PriorIssues) != 1 || sc.PriorIssues[0].Title != "no service boundaries" {
			t.Errorf("retry should see prior issues, got %+v", sc.PriorIssues)
		}
		return withIssues(sc, medium("naming drift")), nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil)

	f, err := start(t, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Status != feature.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", f.Status, f.StatusReason)
	}
	result := f.Result(stageBeta)
	if result.Status != feature.StageApproved || result.RetryCount != 1 {
		t.Fatalf("beta = %s retries %d, want approved with 1 retry", result.Status, result.RetryCount)
	}
	if len(result.Issues) != 1 || result.Issues[0].Severity != issue.SeverityMedium {
		t.Fatalf("latest attempt issues = %+v", result.Issues)
	}
	if got := issuesForStage(f, stageBeta); len(got) != 2 {
		t.Fatalf("beta ledger issues = %d, want 2", len(got))
	}
	wantAttempts := []feature.StageStatus{feature.StageFailed, feature.StageApproved}
	var gotAttempts []feature.StageStatus
	for _, a := range result.Attempts {
		gotAttempts = append(gotAttempts, a.Status)
	}
	if diff := cmp.Diff(wantAttempts, gotAttempts); diff != "" {
		t.Fatalf("attempt statuses (-want +got):\n%s", diff)
	}
	doc, ok := h.store.LatestForFeature(f.ID, artifact.TypeArchitectureDoc)
	if !ok {
		t.Fatalf("architecture doc missing")
	}
	if doc.Version != 2 || doc.Status != artifact.StatusApproved || doc.ReviewStatus != artifact.ReviewPassed {
		t.Fatalf("architecture doc = v%d %s/%s, want v2 approved/passed", doc.Version, doc.Status, doc.ReviewStatus)
	}
	history, err := h.store.History(doc.ID)
	if err != nil || len(history) != 1 || history[0].Status != artifact.StatusRejected {
		t.Fatalf("history = %+v, %v", history, err)
	}
	persisted, err := h.repo.Load(f.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(f, persisted, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("persisted state mismatch (-memory +disk):\n%s", diff)
	}
}

// recordingRepo notes the status of one stage on every save.
type recordingRepo struct {
	*feature.Repository
	stage string
	seen  []feature.StageStatus
}

func (r *recordingRepo) Save(f *feature.Feature) error {
	if result := f.Result(r.stage); result != nil {
		if n := len(r.seen); n == 0 || r.seen[n-1] != result.Status {
			r.seen = append(r.seen, result.Status)
		}
	}
	return r.Repository.Save(f)
}

func TestBlockedStageReturnsToPendingBeforeRetry(t *testing.T) {
	h := newHarness(t, policy(1))
	var calls atomic.Int32
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		if calls.Add(1) == 1 {
			return withIssues(sc, critical("missing cache layer")), nil
		}
		return producer.Output{Artifacts: documents(sc)}, nil
	})
	repo := &recordingRepo{Repository: h.repo, stage: stageBeta}
	o, err := New(Config{
		Definition: h.def,
		Roles:      h.roles,
		Store:      h.store,
		Producers:  h.producers(map[string]producer.Producer{role.SystemArchitect: beta}),
		Features:   repo,
	}, WithClock(h.clock.Now), WithIDGenerator(h.ids.Next))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if _, err := start(t, o); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []feature.StageStatus{
		feature.StageInProgress,
		feature.StagePending,
		feature.StageInProgress,
		feature.StageApproved,
	}
	if diff := cmp.Diff(want, repo.seen); diff != "" {
		t.Fatalf("persisted beta statuses (-want +got):\n%s", diff)
	}
}

func TestExhaustedRetriesFailFeature(t *testing.T) {
	h := newHarness(t, policy(1))
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		return withIssues(sc, critical("unsound design")), nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil)

	f, err := start(t, o)
	if !errors.Is(err, ErrFeatureFailed) {
		t.Fatalf("expected ErrFeatureFailed, got %v", err)
	}
	if f.Status != feature.StatusFailed || f.StatusReason != ReasonRetriesExhausted || f.CurrentStage != stageBeta {
		t.Fatalf("feature = %s %q at %s", f.Status, f.StatusReason, f.CurrentStage)
	}
	result := f.Result(stageBeta)
	if result.Status != feature.StageFailed || result.RetryCount != 1 || len(result.Attempts) != 2 {
		t.Fatalf("beta = %s retries %d attempts %d", result.Status, result.RetryCount, len(result.Attempts))
	}
	if f.Result(stageGamma) != nil {
		t.Fatalf("gamma must not have run")
	}
	doc, _ := h.store.LatestForFeature(f.ID, artifact.TypeAPISpec)
	if doc.Status != artifact.StatusRejected || doc.ReviewStatus != artifact.ReviewChangesRequested {
		t.Fatalf("api spec = %s/%s, want rejected/changes_requested", doc.Status, doc.ReviewStatus)
	}
	if _, err := o.Resume(context.Background(), f.ID, ResumeOptions{}); !errors.Is(err, ErrFeatureFailed) {
		t.Fatalf("resume without retry should report failure, got %v", err)
	}
}

func TestResumeRetryFailedResetsBudget(t *testing.T) {
	h := newHarness(t, policy(1))
	var calls atomic.Int32
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		if calls.Add(1) <= 2 {
			return withIssues(sc, critical("unsound design")), nil
		}
		return producer.Output{Artifacts: documents(sc)}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil)
	f, err := start(t, o)
	if !errors.Is(err, ErrFeatureFailed) {
		t.Fatalf("expected failure, got %v", err)
	}

	resumed, err := o.Resume(context.Background(), f.ID, ResumeOptions{RetryFailed: true})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != feature.StatusCompleted {
		t.Fatalf("status = %s, want completed", resumed.Status)
	}
	result := resumed.Result(stageBeta)
	var numbers []int
	for _, a := range result.Attempts {
		numbers = append(numbers, a.Number)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, numbers); diff != "" {
		t.Fatalf("attempt numbers (-want +got):\n%s", diff)
	}
	if result.RetryCount != 0 || len(result.Issues) != 0 {
		t.Fatalf("beta retries %d issues %d, want a fresh budget and clean attempt", result.RetryCount, len(result.Issues))
	}
	if got := issuesForStage(resumed, stageBeta); len(got) != 2 {
		t.Fatalf("ledger should keep both failed attempts' issues, got %d", len(got))
	}
}

func TestSkippedStageAndMissingInputs(t *testing.T) {
	p := policy(0)
	p.SkipStages = []string{stageBeta}
	h := newHarness(t, p)
	var betaCalls atomic.Int32
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		betaCalls.Add(1)
		return producer.Output{}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil)

	f, err := start(t, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Status != feature.StatusCompleted {
		t.Fatalf("status = %s", f.Status)
	}
	if betaCalls.Load() != 0 {
		t.Fatalf("skipped stage producer was called")
	}
	if got := f.Result(stageBeta); got.Status != feature.StageSkipped || len(got.Attempts) != 0 {
		t.Fatalf("beta = %+v, want skipped with no attempts", got)
	}
	gamma := issuesForStage(f, stageGamma)
	if len(gamma) != 1 || gamma[0].Type != issue.TypeDependencyIssue || gamma[0].Severity != issue.SeverityMedium {
		t.Fatalf("gamma issues = %+v, want one medium dependency issue", gamma)
	}
	for _, want := range []string{"api_spec", "architecture_doc"} {
		if !strings.Contains(gamma[0].Description, want) {
			t.Fatalf("dependency issue %q should list %s", gamma[0].Description, want)
		}
	}
}

func TestFallbackArtifactForUncoveredOutput(t *testing.T) {
	h := newHarness(t, policy(0))
	alpha := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		return producer.Output{Artifacts: []producer.Draft{{
			Type:    artifact.TypeRequirementsDoc,
			Name:    producer.DraftName(sc.Feature, artifact.TypeRequirementsDoc),
			Content: "requirements",
		}}}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.ProductManager: alpha}), nil)
	f, err := start(t, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	stories, ok := h.store.LatestForFeature(f.ID, artifact.TypeUserStories)
	if !ok {
		t.Fatalf("fallback user stories missing")
	}
	if stories.Status != artifact.StatusDraft || stories.CreatedBy != role.ProductManager || stories.Stage != stageAlpha {
		t.Fatalf("fallback = %+v", stories)
	}
	if len(f.Result(stageAlpha).ArtifactsProduced) != 2 {
		t.Fatalf("alpha should record both artifacts, got %v", f.Result(stageAlpha).ArtifactsProduced)
	}
}

func TestInvalidDraftRaisesDocumentationGap(t *testing.T) {
	h := newHarness(t, policy(0))
	alpha := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		return producer.Output{Artifacts: []producer.Draft{{Type: artifact.TypeRequirementsDoc, Name: "Empty", Content: "  "}}}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.ProductManager: alpha}), nil)
	f, err := start(t, o)
	if !errors.Is(err, ErrFeatureFailed) {
		t.Fatalf("expected failure, got %v", err)
	}
	got := issuesForStage(f, stageAlpha)
	if len(got) != 1 || got[0].Type != issue.TypeDocumentationGap || got[0].Severity != issue.SeverityHigh {
		t.Fatalf("alpha issues = %+v", got)
	}
	if len(h.store.ByName("Empty")) != 0 {
		t.Fatalf("invalid draft must not be stored")
	}
}

func TestInvalidHandoffConsumesRetries(t *testing.T) {
	h := newHarness(t, policy(1))
	var betaCalls atomic.Int32
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		betaCalls.Add(1)
		return producer.Output{Artifacts: documents(sc)}, nil
	})
	builder := func(f *feature.Feature, stage pipeline.Stage, from, to string) validate.Handoff {
		hand := DefaultHandoff(f, stage, from, to)
		if stage.ID == stageBeta && f.Name == "Checkout" {
			hand.Instructions = ""
		}
		return hand
	}
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil, WithHandoffBuilder(builder))
	f, err := start(t, o)
	if !errors.Is(err, ErrFeatureFailed) {
		t.Fatalf("expected failure, got %v", err)
	}
	if betaCalls.Load() != 0 {
		t.Fatalf("producer must not run after an invalid handoff")
	}
	result := f.Result(stageBeta)
	if len(result.Attempts) != 2 || !strings.Contains(result.Attempts[0].Error, "handoff") {
		t.Fatalf("attempts = %+v", result.Attempts)
	}
}

func TestProducerErrorAndTimeoutYieldEmptyOutput(t *testing.T) {
	h := newHarness(t, policy(0))
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		return withIssues(sc, critical("ignored")), errors.New("boom")
	})
	gamma := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		<-ctx.Done()
		return producer.Output{}, ctx.Err()
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{
		role.SystemArchitect: beta,
		role.SeniorDeveloper: gamma,
	}), nil, WithProducerTimeout(20*time.Millisecond))
	f, err := start(t, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Status != feature.StatusCompleted {
		t.Fatalf("status = %s (%s)", f.Status, f.StatusReason)
	}
	if msg := f.Result(stageBeta).Attempts[0].Error; !strings.Contains(msg, "boom") {
		t.Fatalf("beta attempt error = %q", msg)
	}
	if msg := f.Result(stageGamma).Attempts[0].Error; !strings.Contains(msg, context.DeadlineExceeded.Error()) {
		t.Fatalf("gamma attempt error = %q", msg)
	}
	if len(issuesForStage(f, stageBeta)) != 0 {
		t.Fatalf("issues from a failed producer call must be discarded")
	}
	code, _ := h.store.LatestForFeature(f.ID, artifact.TypeSourceCode)
	if code.Status != artifact.StatusDraft {
		t.Fatalf("timed out role should get a fallback draft, got %s", code.Status)
	}
}

func TestCancellationPausesAndResumeReattempts(t *testing.T) {
	h := newHarness(t, policy(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	beta := producer.Func(func(callCtx context.Context, sc producer.StageContext) (producer.Output, error) {
		if calls.Add(1) == 1 {
			cancel()
			<-callCtx.Done()
			return producer.Output{}, callCtx.Err()
		}
		return producer.Output{Artifacts: documents(sc)}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil)
	f, err := o.Start(ctx, NewFeature{Name: "Checkout"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	persisted, err := h.repo.Load(f.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if persisted.Status != feature.StatusPaused || persisted.Result(stageBeta).Status != feature.StagePending {
		t.Fatalf("persisted = %s / %s, want paused / pending", persisted.Status, persisted.Result(stageBeta).Status)
	}

	resumed, err := o.Resume(context.Background(), f.ID, ResumeOptions{})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != feature.StatusCompleted {
		t.Fatalf("status = %s", resumed.Status)
	}
	result := resumed.Result(stageBeta)
	if len(result.Attempts) != 1 || result.Attempts[0].Number != 1 || result.RetryCount != 0 {
		t.Fatalf("interrupted attempt should be redone in place, got %+v", result.Attempts)
	}
}

func TestPauseMarkerStopsBeforeNextStage(t *testing.T) {
	h := newHarness(t, policy(0))
	alpha := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		if err := h.repo.RequestPause(sc.Feature.ID); err != nil {
			return producer.Output{}, err
		}
		return producer.Output{Artifacts: documents(sc)}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.ProductManager: alpha}), nil)
	f, err := start(t, o)
	if !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if f.Status != feature.StatusPaused || f.CurrentStage != stageBeta {
		t.Fatalf("feature = %s at %s", f.Status, f.CurrentStage)
	}
	if h.repo.PauseRequested(f.ID) {
		t.Fatalf("pause marker should be consumed")
	}
	if f.Result(stageBeta) != nil {
		t.Fatalf("beta must not begin after a pause")
	}
}

func TestGatingDisabledStoresAdvisory(t *testing.T) {
	p := policy(0)
	p.RequireApprovals = false
	h := newHarness(t, p)
	beta := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		return withIssues(sc, critical("single region")), nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{role.SystemArchitect: beta}), nil)
	f, err := start(t, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Status != feature.StatusCompleted {
		t.Fatalf("status = %s", f.Status)
	}
	doc, _ := h.store.LatestForFeature(f.ID, artifact.TypeArchitectureDoc)
	if doc.Status != artifact.StatusApproved || doc.ReviewStatus != artifact.ReviewAdvisory {
		t.Fatalf("doc = %s/%s, want approved/advisory", doc.Status, doc.ReviewStatus)
	}
	if !validate.HasBlockingIssues(f.Result(stageBeta)) {
		t.Fatalf("blocking issue should still be recorded")
	}
}

var errDisk = errors.New("disk full")

type failingStore struct {
	*artifact.Store
	stage string
}

func (s failingStore) Save(a artifact.Artifact) (artifact.Artifact, error) {
	if a.Stage == s.stage {
		return artifact.Artifact{}, errDisk
	}
	return s.Store.Save(a)
}

func TestStoreFailureFailsFeature(t *testing.T) {
	h := newHarness(t, policy(2))
	o := h.orchestrator(h.producers(nil), failingStore{Store: h.store, stage: stageBeta})
	f, err := start(t, o)
	if !errors.Is(err, ErrFeatureFailed) || !errors.Is(err, errDisk) {
		t.Fatalf("expected wrapped persistence failure, got %v", err)
	}
	if f.Status != feature.StatusFailed || f.StatusReason != ReasonPersistence {
		t.Fatalf("feature = %s %q", f.Status, f.StatusReason)
	}
	if got := f.Result(stageBeta); got.Status != feature.StageFailed || got.RetryCount != 0 {
		t.Fatalf("persistence failures must not be retried, got %+v", got)
	}
}

func TestRunAllIsolatesFeatures(t *testing.T) {
	p := policy(0)
	p.ParallelExecution = true
	h := newHarness(t, p)
	o := h.orchestrator(h.producers(nil), nil)
	var features []*feature.Feature
	for i := 0; i < 4; i++ {
		f := feature.New(fmt.Sprintf("feat-%04d", i), fmt.Sprintf("Feature %d", i), "", feature.PriorityLow, stageAlpha, h.clock.Now())
		if err := h.repo.Save(f); err != nil {
			t.Fatalf("save: %v", err)
		}
		features = append(features, f)
	}
	outcomes := o.RunAll(context.Background(), features, 2)
	if len(outcomes) != len(features) {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Err != nil || out.Feature.Status != feature.StatusCompleted {
			t.Fatalf("feature %d: %v %s", i, out.Err, out.Feature.Status)
		}
		if out.Feature.ID != features[i].ID {
			t.Fatalf("outcome order mismatch at %d", i)
		}
		if got := len(h.store.ByFeature(out.Feature.ID)); got != 5 {
			t.Fatalf("feature %d artifacts = %d, want 5", i, got)
		}
	}
	if features[0].Status != feature.StatusActive {
		t.Fatalf("RunAll must not mutate caller features")
	}
}

func TestLogbookRecordsTransitions(t *testing.T) {
	h := newHarness(t, policy(0))
	o := h.orchestrator(h.producers(nil), nil)
	f, err := start(t, o)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	book, err := logbook.DirFactory(h.fs, "/proj/.cdm/features")(f.ID)
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	lines, _ := book.Tail(100)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"advanced to stage beta", "stage gamma approved", "feature completed"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("logbook missing %q:\n%s", want, joined)
		}
	}
}

func TestNewRejectsUnboundRoles(t *testing.T) {
	h := newHarness(t, policy(0))
	set := h.producers(nil)
	delete(set, role.SeniorDeveloper)
	_, err := New(Config{Definition: h.def, Roles: h.roles, Store: h.store, Producers: set, Features: h.repo})
	if err == nil || !strings.Contains(err.Error(), role.SeniorDeveloper) {
		t.Fatalf("expected unbound role error, got %v", err)
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing dependency errors")
	}
}

func TestNewRejectsHandoffsThatCannotValidate(t *testing.T) {
	h := newHarness(t, policy(0))
	def, err := pipeline.New(h.roles, []pipeline.Stage{
		{ID: "kickoff", Roles: []string{role.EngineeringManager}},
		{ID: "build", Roles: []string{role.SeniorDeveloper}},
	}, policy(0))
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	set := producer.Set{role.EngineeringManager: standard, role.SeniorDeveloper: standard}
	_, err = New(Config{Definition: def, Roles: h.roles, Store: h.store, Producers: set, Features: h.repo})
	if !errors.Is(err, pipeline.ErrConfig) || !strings.Contains(err.Error(), "kickoff") {
		t.Fatalf("expected a configuration error for the root-led stage, got %v", err)
	}
	if strings.Contains(err.Error(), "stage build") {
		t.Fatalf("valid stage reported: %v", err)
	}
	if features, _ := h.repo.List(); len(features) != 0 {
		t.Fatalf("no feature may be created, got %d", len(features))
	}
}

func TestNewRejectsBuilderWithoutInstructions(t *testing.T) {
	h := newHarness(t, policy(0))
	blank := func(f *feature.Feature, stage pipeline.Stage, from, to string) validate.Handoff {
		hand := DefaultHandoff(f, stage, from, to)
		hand.Instructions = ""
		return hand
	}
	_, err := New(Config{Definition: h.def, Roles: h.roles, Store: h.store, Producers: h.producers(nil), Features: h.repo},
		WithHandoffBuilder(blank))
	if !errors.Is(err, pipeline.ErrConfig) || !strings.Contains(err.Error(), "instructions") {
		t.Fatalf("expected instructions error, got %v", err)
	}
}

func TestHandoffSource(t *testing.T) {
	h := newHarness(t, policy(0))
	o := h.orchestrator(h.producers(nil), nil)
	tests := []struct {
		stage string
		want  string
	}{
		{stageAlpha, role.EngineeringManager},
		{stageBeta, role.ProductManager},
		{stageGamma, role.SystemArchitect},
	}
	for _, tt := range tests {
		stage, _ := h.def.Stage(tt.stage)
		if got := o.handoffSource(stage); got != tt.want {
			t.Fatalf("handoffSource(%s) = %s, want %s", tt.stage, got, tt.want)
		}
	}
}

func TestFeaturesProducingSameNameKeepTheirOwnArtifacts(t *testing.T) {
	h := newHarness(t, policy(0))
	fixed := producer.Func(func(ctx context.Context, sc producer.StageContext) (producer.Output, error) {
		drafts := documents(sc)
		for i := range drafts {
			drafts[i].Name = "Design"
		}
		return producer.Output{Artifacts: drafts}, nil
	})
	o := h.orchestrator(h.producers(map[string]producer.Producer{
		role.ProductManager:  fixed,
		role.SystemArchitect: fixed,
		role.SeniorDeveloper: fixed,
	}), nil)

	ctx := context.Background()
	a, err := o.Start(ctx, NewFeature{Name: "Checkout", Description: "One page checkout", Priority: "high"})
	if err != nil {
		t.Fatalf("start A: %v", err)
	}
	b, err := o.Start(ctx, NewFeature{Name: "Search", Description: "Full text search", Priority: "low"})
	if err != nil {
		t.Fatalf("start B: %v", err)
	}
	for _, f := range []*feature.Feature{a, b} {
		for _, id := range f.Artifacts {
			got, ok := h.store.Get(id)
			if !ok || got.FeatureID != f.ID {
				t.Fatalf("artifact %s listed by %s belongs to %q", id, f.ID, got.FeatureID)
			}
			if got.Version != 1 {
				t.Fatalf("artifact %s was overwritten across features: version %d", id, got.Version)
			}
		}
	}
	arch, _ := h.roles.Get(role.SystemArchitect)
	for _, typ := range arch.Outputs {
		if _, ok := h.store.LatestForFeature(a.ID, typ); !ok {
			t.Fatalf("feature A has no %s after B ran", typ)
		}
	}
}
