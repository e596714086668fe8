package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/orchestrator"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/pipeline"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/wiring"
)

func newValidateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline or role catalog file without running anything",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "pipeline <file>",
			Short: "Validate a pipeline definition against the configured roles",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := opts.config()
				if err != nil {
					return err
				}
				roles, err := wiring.LoadRoles(cfg)
				if err != nil {
					return err
				}
				def, err := pipeline.Load(args[0], roles)
				if err == nil {
					err = orchestrator.CheckHandoffs(def, roles, nil)
				}
				if err != nil {
					return printInvalid(cmd.OutOrStdout(), args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%d stages: %s)\n", args[0], def.Len(), strings.Join(def.IDs(), ", "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "roles <file>",
			Short: "Validate a role catalog",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				roles, err := role.LoadFile(args[0])
				if err != nil {
					return printInvalid(cmd.OutOrStdout(), args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%d roles)\n", args[0], len(roles.IDs()))
				return nil
			},
		},
	)
	return cmd
}

// printInvalid lists each joined error on its own line.
func printInvalid(out io.Writer, path string, err error) error {
	fmt.Fprintf(out, "Invalid: %s\n", path)
	for _, e := range flatten(err) {
		fmt.Fprintf(out, "- %v\n", e)
	}
	return ErrInvalid
}

func flatten(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
