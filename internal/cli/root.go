// Package cli defines the cdm command tree.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/config"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/logging"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/status"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/wiring"
)

// ErrInvalid is returned when a validated file has problems. The details
// are already printed.
var ErrInvalid = errors.New("validation failed")

// options are shared by every subcommand.
type options struct {
	projectDir string
	markdown   bool

	// logger replaces the file logger (tests).
	logger *logging.Logger
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "cdm",
		Short: "Drive features through a multi-stage development pipeline",
		Long: `cdm moves each feature through an ordered pipeline of stages
(requirements, architecture, implementation, review, testing, ...).
Every stage is owned by roles that produce typed artifacts and raise
issues; blocking issues send the stage back for another attempt.

State lives in the project's .cdm directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.projectDir, "project", "C", "", "project directory (default is the current directory)")
	root.PersistentFlags().BoolVar(&opts.markdown, "markdown", false, "render tables as Markdown")

	root.AddCommand(
		newInitCommand(opts),
		newStartCommand(opts),
		newResumeCommand(opts),
		newPauseCommand(opts),
		newRunCommand(opts),
		newStatusCommand(opts),
		newArtifactsCommand(opts),
		newIssuesCommand(opts),
		newValidateCommand(opts),
		newWatchCommand(opts),
	)
	return root
}

// Execute runs the command tree. SIGINT and SIGTERM cancel the context,
// which pauses a running feature at its current stage.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *options) dir() (string, error) {
	if o.projectDir != "" {
		return filepath.Abs(o.projectDir)
	}
	return os.Getwd()
}

func (o *options) config() (*config.Config, error) {
	dir, err := o.dir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

func (o *options) app(ov wiring.Overrides) (*wiring.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	if ov.Logger == nil {
		ov.Logger = o.logger
	}
	return wiring.Build(cfg, ov)
}

func (o *options) tableMode() status.Mode {
	if o.markdown {
		return status.Markdown
	}
	return status.ASCII
}
