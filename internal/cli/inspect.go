package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/artifact"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/issue"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/status"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/wiring"
)

func newStatusCommand(opts *options) *cobra.Command {
	var stages bool
	cmd := &cobra.Command{
		Use:   "status [feature-id]",
		Short: "Show one feature in detail, or list every feature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				features, err := app.Features.List()
				if len(features) == 0 && err == nil {
					fmt.Fprintln(out, "No features yet. Start one with: cdm start --name <name>")
					return nil
				}
				fmt.Fprintln(out, status.FeatureTable(features, opts.tableMode()))
				return err
			}

			f, err := app.Features.Load(args[0])
			if err != nil {
				return err
			}
			summary := status.Summarize(f, app.Definition, app.Store, nil)
			if stages {
				fmt.Fprintln(out, status.StageTable(summary, opts.tableMode()))
				return nil
			}
			fmt.Fprintln(out, status.Render(summary))
			return nil
		},
	}
	cmd.Flags().BoolVar(&stages, "stages", false, "print the per-stage table instead of the summary")
	return cmd
}

type artifactFilter struct {
	typ     string
	stage   string
	feature string
	creator string
	status  string
}

func (f artifactFilter) apply(store *artifact.Store) ([]artifact.Artifact, error) {
	var items []artifact.Artifact
	if f.feature != "" {
		items = store.ByFeature(f.feature)
	} else {
		items = store.All()
	}
	var typ artifact.Type
	if f.typ != "" {
		parsed, err := artifact.ParseType(f.typ)
		if err != nil {
			return nil, err
		}
		typ = parsed
	}
	kept := items[:0]
	for _, a := range items {
		switch {
		case typ != "" && a.Type != typ:
		case f.stage != "" && a.Stage != f.stage:
		case f.creator != "" && a.CreatedBy != f.creator:
		case f.status != "" && !strings.EqualFold(string(a.Status), f.status):
		default:
			kept = append(kept, a)
		}
	}
	return kept, nil
}

func newArtifactsCommand(opts *options) *cobra.Command {
	var filter artifactFilter
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List stored artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			items, err := filter.apply(app.Store)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.ArtifactTable(items, opts.tableMode()))
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.typ, "type", "", "artifact type, e.g. requirements_doc")
	cmd.Flags().StringVar(&filter.stage, "stage", "", "producing stage id")
	cmd.Flags().StringVar(&filter.feature, "feature", "", "feature id")
	cmd.Flags().StringVar(&filter.creator, "creator", "", "creating role id")
	cmd.Flags().StringVar(&filter.status, "status", "", "draft, in_review, rejected or approved")
	cmd.AddCommand(newArtifactShowCommand(opts))
	return cmd
}

func newArtifactShowCommand(opts *options) *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "show <artifact-id>",
		Short: "Print one artifact, or all of its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()
			if history {
				versions, err := app.Store.History(args[0])
				if err != nil {
					return err
				}
				if current, ok := app.Store.Get(args[0]); ok {
					versions = append(versions, current)
				}
				fmt.Fprintln(out, status.ArtifactTable(versions, opts.tableMode()))
				return nil
			}
			a, ok := app.Store.Get(args[0])
			if !ok {
				return fmt.Errorf("artifact %s: %w", args[0], artifact.ErrNotFound)
			}
			fmt.Fprintf(out, "%s (%s) v%d\n", a.Name, a.Type, a.Version)
			fmt.Fprintf(out, "Status: %s, review %s\n", a.Status, a.ReviewStatus)
			fmt.Fprintf(out, "Created by %s during %s for feature %s\n", a.CreatedBy, a.Stage, a.FeatureID)
			if a.FilePath != "" {
				fmt.Fprintf(out, "File: %s\n", a.FilePath)
			}
			fmt.Fprintf(out, "\n%s\n", strings.TrimRight(a.Content, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "list every stored version")
	return cmd
}

func newIssuesCommand(opts *options) *cobra.Command {
	var (
		stage    string
		severity string
		blocking bool
	)
	cmd := &cobra.Command{
		Use:   "issues <feature-id>",
		Short: "List the issues raised for a feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			f, err := app.Features.Load(args[0])
			if err != nil {
				return err
			}
			ledger := issue.NewLedger(f.ID, f.Issues...)
			var items []issue.Issue
			switch {
			case blocking:
				items = ledger.Blocking()
			case stage != "":
				items = ledger.ByStage(stage)
			case severity != "":
				sev, err := issue.SeverityFrom(severity)
				if err != nil {
					return err
				}
				items = ledger.BySeverity(sev)
			default:
				items = ledger.All()
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.IssueTable(items, opts.tableMode()))
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "only issues raised in this stage")
	cmd.Flags().StringVar(&severity, "severity", "", "only issues of this severity")
	cmd.Flags().BoolVar(&blocking, "blocking", false, "only open high and critical issues")
	cmd.MarkFlagsMutuallyExclusive("stage", "severity", "blocking")
	return cmd
}
