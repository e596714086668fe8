package cli

import (
	"github.com/spf13/cobra"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/tui"
	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/wiring"
)

func newWatchCommand(opts *options) *cobra.Command {
	var exitOnDone bool
	cmd := &cobra.Command{
		Use:   "watch <feature-id>",
		Short: "Follow a feature live while another cdm process runs it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app(wiring.Overrides{})
			if err != nil {
				return err
			}
			defer app.Close()
			id := args[0]
			if _, err := app.Features.Load(id); err != nil {
				return err
			}
			appOpts := []tui.AppOption{}
			if lb, err := app.Logbooks(id); err == nil {
				appOpts = append(appOpts, tui.WithLogbook(lb))
			}
			if exitOnDone {
				appOpts = append(appOpts, tui.WithExitOnDone())
			}
			model := tui.NewApp(app.Features, app.Definition, id, appOpts...)
			return tui.Run(cmd.Context(), model, app.Features.Dir(id))
		},
	}
	cmd.Flags().BoolVar(&exitOnDone, "exit-on-done", false, "quit when the feature completes or fails")
	return cmd
}
