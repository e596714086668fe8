// internal/config/config.go
//
// This package handles configuration and the .cdm directory structure.
// Every project that uses cdm gets a .cdm/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
)

const (
	// DirName is the name of the directory we create in each project.
	DirName = ".cdm"
	// FileName is the project configuration file inside DirName.
	FileName = "config.yaml"
	// EnvPrefix namespaces environment overrides, e.g. CDM_PIPELINE_MAX_RETRIES.
	EnvPrefix = "CDM"
)

// Subdirectories of .cdm/.
const (
	ArtifactsDir = "artifacts"
	FeaturesDir  = "features"
	LogsDir      = "logs"
	ProducersDir = "producers"
)

// Producer modes.
const (
	ModeTemplate = "template"
	ModePlugin   = "plugin"
)

// Config holds the runtime configuration for cdm.
type Config struct {
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Roles     RolesConfig     `mapstructure:"roles" yaml:"roles"`
	Producers ProducersConfig `mapstructure:"producers" yaml:"producers"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Run       RunConfig       `mapstructure:"run" yaml:"run"`

	// ProjectDir is the directory cdm was pointed at.
	ProjectDir string `mapstructure:"-" yaml:"-"`
}

// PipelineConfig selects the stage pipeline and its policy. When File is
// set, the policy section of that file governs instead of these keys.
type PipelineConfig struct {
	File              string   `mapstructure:"file" yaml:"file"`
	MaxRetries        int      `mapstructure:"max_retries" yaml:"max_retries"`
	TimeoutMinutes    int      `mapstructure:"timeout_minutes" yaml:"timeout_minutes"`
	AllowSkip         bool     `mapstructure:"allow_skip" yaml:"allow_skip"`
	SkipStages        []string `mapstructure:"skip_stages" yaml:"skip_stages"`
	RequireApprovals  bool     `mapstructure:"require_approvals" yaml:"require_approvals"`
	ParallelExecution bool     `mapstructure:"parallel_execution" yaml:"parallel_execution"`
}

// RolesConfig points at an optional role catalog replacing the built-in one.
type RolesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// ProducersConfig selects how role content is produced.
type ProducersConfig struct {
	// Mode is "template" or "plugin".
	Mode string `mapstructure:"mode" yaml:"mode"`
	// PluginDir holds <role>.go scripts for plugin mode.
	PluginDir string `mapstructure:"plugin_dir" yaml:"plugin_dir"`
	// Format is the plugin response format: "markdown" or "json".
	Format string `mapstructure:"format" yaml:"format"`
}

// LoggingConfig controls the structured debug log.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// RunConfig controls batch execution.
type RunConfig struct {
	// Concurrency bounds how many features resume at once.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	policy := pipeline.DefaultPolicy()
	return &Config{
		Pipeline: PipelineConfig{
			MaxRetries:        policy.MaxRetries,
			TimeoutMinutes:    policy.TimeoutMinutes,
			AllowSkip:         policy.AllowSkip,
			SkipStages:        []string{},
			RequireApprovals:  policy.RequireApprovals,
			ParallelExecution: policy.ParallelExecution,
		},
		Producers: ProducersConfig{
			Mode:      ModeTemplate,
			PluginDir: filepath.Join(DirName, ProducersDir),
			Format:    "markdown",
		},
		Logging: LoggingConfig{Level: "info"},
		Run:     RunConfig{Concurrency: 2},
	}
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("pipeline.file", defaults.Pipeline.File)
	v.SetDefault("pipeline.max_retries", defaults.Pipeline.MaxRetries)
	v.SetDefault("pipeline.timeout_minutes", defaults.Pipeline.TimeoutMinutes)
	v.SetDefault("pipeline.allow_skip", defaults.Pipeline.AllowSkip)
	v.SetDefault("pipeline.skip_stages", defaults.Pipeline.SkipStages)
	v.SetDefault("pipeline.require_approvals", defaults.Pipeline.RequireApprovals)
	v.SetDefault("pipeline.parallel_execution", defaults.Pipeline.ParallelExecution)

	v.SetDefault("roles.file", defaults.Roles.File)

	v.SetDefault("producers.mode", defaults.Producers.Mode)
	v.SetDefault("producers.plugin_dir", defaults.Producers.PluginDir)
	v.SetDefault("producers.format", defaults.Producers.Format)

	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetDefault("run.concurrency", defaults.Run.Concurrency)
}

// Load reads <projectDir>/.cdm/config.yaml when present, applies CDM_*
// environment overrides, resolves relative paths against projectDir, and
// validates the result.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(projectDir, DirName, FileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.ProjectDir = projectDir
	cfg.normalize()
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Producers.Mode = strings.ToLower(strings.TrimSpace(c.Producers.Mode))
	c.Producers.Format = strings.ToLower(strings.TrimSpace(c.Producers.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Pipeline.File = resolvePath(c.ProjectDir, c.Pipeline.File)
	c.Roles.File = resolvePath(c.ProjectDir, c.Roles.File)
	c.Producers.PluginDir = resolvePath(c.ProjectDir, c.Producers.PluginDir)
	stages := c.Pipeline.SkipStages[:0]
	for _, s := range c.Pipeline.SkipStages {
		if s = strings.TrimSpace(s); s != "" {
			stages = append(stages, s)
		}
	}
	c.Pipeline.SkipStages = stages
}

// Policy converts the pipeline keys to a pipeline policy.
func (c *Config) Policy() pipeline.Policy {
	return pipeline.Policy{
		MaxRetries:        c.Pipeline.MaxRetries,
		TimeoutMinutes:    c.Pipeline.TimeoutMinutes,
		AllowSkip:         c.Pipeline.AllowSkip,
		SkipStages:        append([]string(nil), c.Pipeline.SkipStages...),
		RequireApprovals:  c.Pipeline.RequireApprovals,
		ParallelExecution: c.Pipeline.ParallelExecution,
	}
}

// Dir returns ProjectDir/.cdm.
func (c *Config) Dir() string {
	return filepath.Join(c.ProjectDir, DirName)
}

// ArtifactsDir returns the directory holding artifact records.
func (c *Config) ArtifactsDir() string {
	return filepath.Join(c.Dir(), ArtifactsDir)
}

// FeaturesDir returns the directory holding per-feature state.
func (c *Config) FeaturesDir() string {
	return filepath.Join(c.Dir(), FeaturesDir)
}

// LogsDir returns the directory for the structured log.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Dir(), LogsDir)
}

// Path returns the config file location.
func (c *Config) Path() string {
	return filepath.Join(c.Dir(), FileName)
}

// Init creates the .cdm directory structure in the given project directory
// and writes a default config.yaml unless one exists.
//
// Structure created:
// .cdm/
// ├── artifacts/   <- Versioned artifact records and history
// ├── features/    <- One directory per feature: state.json, history.log
// ├── logs/        <- Structured debug log
// └── producers/   <- Plugin producer scripts
func Init(projectDir string) (string, error) {
	return InitWith(projectDir, Default())
}

// InitWith is Init writing cfg instead of the defaults.
func InitWith(projectDir string, cfg *Config) (string, error) {
	if cfg == nil {
		cfg = Default()
	}
	dir := filepath.Join(projectDir, DirName)
	for _, sub := range []string{ArtifactsDir, FeaturesDir, LogsDir, ProducersDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("config: create %s: %w", sub, err)
		}
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("config: encode defaults: %w", err)
	}
	header := []byte("# cdm project configuration. Environment variables prefixed CDM_ override these keys.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
