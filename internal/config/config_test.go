package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	cfg, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Pipeline.MaxRetries != 2 || cfg.Pipeline.TimeoutMinutes != 30 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if !cfg.Pipeline.RequireApprovals || !cfg.Pipeline.AllowSkip {
		t.Fatalf("approvals and skipping should default on: %+v", cfg.Pipeline)
	}
	if cfg.Producers.Mode != ModeTemplate {
		t.Fatalf("Producers.Mode = %q, want %q", cfg.Producers.Mode, ModeTemplate)
	}
	if want := filepath.Join(projectDir, DirName, ProducersDir); cfg.Producers.PluginDir != want {
		t.Fatalf("PluginDir = %q, want %q", cfg.Producers.PluginDir, want)
	}
	if cfg.ArtifactsDir() != filepath.Join(projectDir, ".cdm", "artifacts") {
		t.Fatalf("ArtifactsDir = %s", cfg.ArtifactsDir())
	}
}

func TestLoadParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(projectDir, DirName), 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
pipeline:
  file: pipelines/custom.yaml
  max_retries: 4
  skip_stages:
    - ui_design
    - performance_testing
  parallel_execution: true
roles:
  file: /etc/cdm/roles.yaml
producers:
  mode: Plugin
  plugin_dir: scripts
logging:
  level: debug
run:
  concurrency: 8
`)
	if err := os.WriteFile(filepath.Join(projectDir, DirName, FileName), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Pipeline.File != filepath.Join(projectDir, "pipelines", "custom.yaml") {
		t.Fatalf("pipeline file not resolved: %s", cfg.Pipeline.File)
	}
	if cfg.Roles.File != "/etc/cdm/roles.yaml" {
		t.Fatalf("absolute roles file changed: %s", cfg.Roles.File)
	}
	if cfg.Producers.Mode != ModePlugin || cfg.Producers.PluginDir != filepath.Join(projectDir, "scripts") {
		t.Fatalf("producers = %+v", cfg.Producers)
	}
	policy := cfg.Policy()
	if policy.MaxRetries != 4 || !policy.ParallelExecution || policy.TimeoutMinutes != 30 {
		t.Fatalf("policy = %+v", policy)
	}
	if diff := cmp.Diff([]string{"ui_design", "performance_testing"}, policy.SkipStages); diff != "" {
		t.Fatalf("skip stages (-want +got):\n%s", diff)
	}
	if cfg.Run.Concurrency != 8 || cfg.Logging.Level != "debug" {
		t.Fatalf("run/logging = %+v %+v", cfg.Run, cfg.Logging)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CDM_PIPELINE_MAX_RETRIES", "5")
	t.Setenv("CDM_PIPELINE_REQUIRE_APPROVALS", "false")
	t.Setenv("CDM_LOGGING_LEVEL", "warn")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Pipeline.MaxRetries != 5 || cfg.Pipeline.RequireApprovals || cfg.Logging.Level != "warn" {
		t.Fatalf("environment overrides not applied: %+v %+v", cfg.Pipeline, cfg.Logging)
	}
}

func TestLoadValidation(t *testing.T) {
	projectDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(projectDir, DirName), 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
pipeline:
  max_retries: -1
  allow_skip: false
  skip_stages: [ui_design]
producers:
  mode: oracle
logging:
  level: loud
run:
  concurrency: 0
`)
	if err := os.WriteFile(filepath.Join(projectDir, DirName, FileName), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(projectDir)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	var fields []string
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	want := []string{"pipeline.max_retries", "pipeline.skip_stages", "producers.mode", "logging.level", "run.concurrency"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("validation fields (-want +got):\n%s", diff)
	}
}

func TestInitCreatesLayoutOnce(t *testing.T) {
	projectDir := t.TempDir()
	path, err := Init(projectDir)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	for _, sub := range []string{ArtifactsDir, FeaturesDir, LogsDir, ProducersDir} {
		if info, err := os.Stat(filepath.Join(projectDir, DirName, sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", sub, err)
		}
	}
	cfg, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load after Init: %v", err)
	}
	if cfg.Producers.Mode != ModeTemplate || cfg.Run.Concurrency != 2 {
		t.Fatalf("written defaults did not load back: %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("run:\n  concurrency: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Init(projectDir); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "run:\n  concurrency: 3\n" {
		t.Fatalf("Init must not overwrite an existing config, got:\n%s", data)
	}
}
