// Package wiring assembles the runtime graph (roles, pipeline, stores,
// producers, orchestrator) from a loaded configuration.
package wiring

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/config"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logbook"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logging"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/orchestrator"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/producer"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

// App carries the shared runtime dependencies of one cdm invocation.
type App struct {
	Config       *config.Config
	Roles        *role.Registry
	Definition   *pipeline.Definition
	Store        *artifact.Store
	Features     *feature.Repository
	Logbooks     logbook.Factory
	Logger       *logging.Logger
	Orchestrator *orchestrator.Orchestrator
}

// Overrides are per-invocation adjustments from command-line flags.
type Overrides struct {
	// Mode replaces producers.mode when set.
	Mode string
	// SkipStages are added to the pipeline policy's skip set.
	SkipStages []string
	// Fs replaces the OS filesystem (tests).
	Fs afero.Fs
	// Logger replaces the file logger (tests).
	Logger *logging.Logger
}

// Build wires an App. Configuration problems abort before any feature runs.
func Build(cfg *config.Config, ov Overrides) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("wiring: config is required")
	}
	logger := ov.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.LogsDir(), cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}
	app, err := build(cfg, ov, logger)
	if err != nil {
		if ov.Logger == nil {
			_ = logger.Close()
		}
		return nil, err
	}
	return app, nil
}

func build(cfg *config.Config, ov Overrides, logger *logging.Logger) (*App, error) {
	roles, err := LoadRoles(cfg)
	if err != nil {
		return nil, err
	}
	def, err := LoadDefinition(cfg, roles, ov.SkipStages)
	if err != nil {
		return nil, err
	}
	fs := ov.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	store, err := artifact.NewStore(fs, cfg.ArtifactsDir(), artifact.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	features := feature.NewRepository(fs, cfg.FeaturesDir())
	logbooks := logbook.DirFactory(fs, cfg.FeaturesDir())

	mode := cfg.Producers.Mode
	if ov.Mode != "" {
		mode = ov.Mode
	}
	factory, err := producer.DefaultRegistry().Resolve(mode)
	if err != nil {
		return nil, err
	}
	parser, err := producer.ParserFor(cfg.Producers.Format)
	if err != nil {
		return nil, err
	}
	set, err := producer.Bind(roles, stageRoles(def), factory, producer.Options{
		PluginDir: cfg.Producers.PluginDir,
		Parser:    parser,
	})
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Definition: def,
		Roles:      roles,
		Store:      store,
		Producers:  set,
		Features:   features,
		Logbooks:   logbooks,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("runtime wired", "mode", mode, "stages", def.Len(), "artifacts", store.Len())
	return &App{
		Config:       cfg,
		Roles:        roles,
		Definition:   def,
		Store:        store,
		Features:     features,
		Logbooks:     logbooks,
		Logger:       logger,
		Orchestrator: orch,
	}, nil
}

// LoadRoles returns the configured role catalog, or the built-in one.
func LoadRoles(cfg *config.Config) (*role.Registry, error) {
	if cfg.Roles.File == "" {
		return role.NewRegistry(role.DefaultCatalog()...)
	}
	return role.LoadFile(cfg.Roles.File)
}

// LoadDefinition returns the configured pipeline, or the built-in one under
// the config policy, with extra stages added to the skip set.
func LoadDefinition(cfg *config.Config, roles *role.Registry, skip []string) (*pipeline.Definition, error) {
	var (
		def *pipeline.Definition
		err error
	)
	if cfg.Pipeline.File != "" {
		def, err = pipeline.Load(cfg.Pipeline.File, roles)
	} else {
		def, err = pipeline.Default(roles, cfg.Policy())
	}
	if err != nil || len(skip) == 0 {
		return def, err
	}
	policy := def.Policy()
	policy.AllowSkip = true
	for _, id := range skip {
		if !contains(policy.SkipStages, id) {
			policy.SkipStages = append(policy.SkipStages, id)
		}
	}
	return def.WithPolicy(roles, policy)
}

// Close releases the log file.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.Logger.Close()
}

func stageRoles(def *pipeline.Definition) []string {
	var ids []string
	for _, stage := range def.Stages() {
		ids = append(ids, stage.Roles...)
	}
	return ids
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
