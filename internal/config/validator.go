package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidModes returns the producer modes.
func ValidModes() []string {
	return []string{ModeTemplate, ModePlugin}
}

// ValidFormats returns the plugin response formats.
func ValidFormats() []string {
	return []string{"markdown", "json"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	if c.Pipeline.MaxRetries < 0 {
		errors = append(errors, ValidationError{Field: "pipeline.max_retries", Value: c.Pipeline.MaxRetries, Message: "must be non-negative"})
	}
	if c.Pipeline.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{Field: "pipeline.timeout_minutes", Value: c.Pipeline.TimeoutMinutes, Message: "must be non-negative"})
	}
	if len(c.Pipeline.SkipStages) > 0 && !c.Pipeline.AllowSkip {
		errors = append(errors, ValidationError{Field: "pipeline.skip_stages", Value: c.Pipeline.SkipStages, Message: "requires pipeline.allow_skip"})
	}
	if !slices.Contains(ValidModes(), c.Producers.Mode) {
		errors = append(errors, ValidationError{
			Field:   "producers.mode",
			Value:   c.Producers.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}
	if c.Producers.Mode == ModePlugin && c.Producers.PluginDir == "" {
		errors = append(errors, ValidationError{Field: "producers.plugin_dir", Value: c.Producers.PluginDir, Message: "is required in plugin mode"})
	}
	if c.Producers.Format != "" && !slices.Contains(ValidFormats(), c.Producers.Format) {
		errors = append(errors, ValidationError{
			Field:   "producers.format",
			Value:   c.Producers.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidFormats(), ", ")),
		})
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errors = append(errors, ValidationError{Field: "logging.level", Value: c.Logging.Level, Message: "must be one of: debug, info, warn, error"})
	}
	if c.Run.Concurrency < 1 {
		errors = append(errors, ValidationError{Field: "run.concurrency", Value: c.Run.Concurrency, Message: "must be at least 1"})
	}
	return errors
}
