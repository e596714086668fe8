package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/feature"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/orchestrator"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/status"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/wiring"
)

func newStartCommand(opts *options) *cobra.Command {
	var (
		req            orchestrator.NewFeature
		mode           string
		skip           []string
		nonInteractive bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create a feature and run it through the pipeline",
		Long: `Create a feature and run it through every stage of the pipeline.
The run stops when the feature completes, fails, is paused, or the
command is interrupted; an interrupted feature can be resumed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Name == "" && !nonInteractive {
				if err := promptFeature(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), &req); err != nil {
					return err
				}
			}
			if req.Name == "" {
				return errors.New("--name is required")
			}
			app, err := opts.app(wiring.Overrides{Mode: mode, SkipStages: skip})
			if err != nil {
				return err
			}
			defer app.Close()
			f, err := app.Orchestrator.Start(cmd.Context(), req)
			return report(cmd.OutOrStdout(), app, f, err)
		},
	}
	cmd.Flags().StringVarP(&req.Name, "name", "n", "", "feature name")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "feature description")
	cmd.Flags().StringVarP(&req.Priority, "priority", "p", string(feature.PriorityMedium), "low, medium, high or critical")
	cmd.Flags().StringVar(&mode, "mode", "", "producer mode for this run: template or plugin")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "skippable stages to skip for this run")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "fail instead of prompting for missing values")
	return cmd
}

func promptFeature(p *prompter, req *orchestrator.NewFeature) error {
	var err error
	if req.Name, err = p.ask("Feature name", ""); err != nil {
		return err
	}
	if req.Description == "" {
		if req.Description, err = p.ask("Description", ""); err != nil {
			return err
		}
	}
	choices := []string{
		string(feature.PriorityLow), string(feature.PriorityMedium),
		string(feature.PriorityHigh), string(feature.PriorityCritical),
	}
	req.Priority, err = p.choose("Priority", choices, req.Priority)
	return err
}

func newResumeCommand(opts *options) *cobra.Command {
	var resume orchestrator.ResumeOptions
	cmd := &cobra.Command{
		Use:   "resume <feature-id>",
		Short: "Continue a paused, interrupted or failed feature",
		Long: `Continue a feature from its current stage. A stage that was
interrupted mid-attempt is re-attempted from scratch. A failed feature
is only re-run with --retry-failed, which resets the failed stage's
retry budget.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			f, err := app.Orchestrator.Resume(cmd.Context(), args[0], resume)
			return report(cmd.OutOrStdout(), app, f, err)
		},
	}
	cmd.Flags().BoolVar(&resume.RetryFailed, "retry-failed", false, "re-run a failed stage with a fresh retry budget")
	return cmd
}

func newPauseCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <feature-id>",
		Short: "Ask a running feature to stop before its next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.Orchestrator.Pause(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pause requested for %s. It stops before its next stage.\n", args[0])
			return nil
		},
	}
}

func newRunCommand(opts *options) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resume every unfinished feature concurrently",
		Long: `Resume every active or paused feature, at most run.concurrency at
a time. Completed and failed features are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			all, err := app.Features.List()
			if err != nil {
				return err
			}
			var pending []*feature.Feature
			for _, f := range all {
				if f.Status.Terminal() {
					continue
				}
				if err := app.Features.ClearPause(f.ID); err != nil {
					return err
				}
				pending = append(pending, f)
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "No unfinished features.")
				return nil
			}
			limit := app.Config.Run.Concurrency
			if concurrency > 0 {
				limit = concurrency
			}
			outcomes := app.Orchestrator.RunAll(cmd.Context(), pending, limit)
			finished := make([]*feature.Feature, 0, len(outcomes))
			var errs []error
			for _, o := range outcomes {
				finished = append(finished, o.Feature)
				if o.Err != nil && !stopped(o.Err) {
					errs = append(errs, fmt.Errorf("%s: %w", o.Feature.ID, o.Err))
				}
			}
			fmt.Fprintln(out, status.FeatureTable(finished, opts.tableMode()))
			return errors.Join(errs...)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override run.concurrency")
	return cmd
}

// report prints the feature after a run. Pauses and interruptions are not
// errors; the feature can be resumed.
func report(out io.Writer, app *wiring.App, f *feature.Feature, err error) error {
	if f != nil {
		fmt.Fprintln(out, status.Render(status.Summarize(f, app.Definition, app.Store, nil)))
	}
	switch {
	case err == nil:
		return nil
	case stopped(err):
		if f != nil {
			fmt.Fprintf(out, "Paused. Resume with: cdm resume %s\n", f.ID)
		}
		return nil
	case errors.Is(err, orchestrator.ErrFeatureFailed) && f != nil:
		return fmt.Errorf("%w; retry with: cdm resume --retry-failed %s", err, f.ID)
	default:
		return err
	}
}

func stopped(err error) bool {
	return errors.Is(err, orchestrator.ErrPaused) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
