package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/config"
)

func newInitCommand(opts *options) *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize cdm in the current project",
		Long: `Initialize cdm in the project directory.
This creates a .cdm directory for artifacts, feature state, logs and
producer scripts, and writes a default config.yaml. An existing
config.yaml is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.dir()
			if err != nil {
				return fmt.Errorf("failed to get project directory: %w", err)
			}
			cfg := config.Default()
			existing := filepath.Join(dir, config.DirName, config.FileName)
			if _, err := os.Stat(existing); err == nil {
				nonInteractive = true
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if !nonInteractive {
				if err := promptConfig(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), cfg); err != nil {
					return err
				}
			}
			path, err := config.InitWith(dir, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "cdm initialized successfully!")
			fmt.Fprintf(out, "Project directory: %s\n", filepath.Join(dir, config.DirName))
			fmt.Fprintf(out, "Config: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "write the defaults without prompting")
	return cmd
}

func promptConfig(p *prompter, cfg *config.Config) error {
	mode, err := p.choose("Producer mode", config.ValidModes(), cfg.Producers.Mode)
	if err != nil {
		return err
	}
	cfg.Producers.Mode = mode

	retries, err := p.ask("Max retries per stage", strconv.Itoa(cfg.Pipeline.MaxRetries))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(retries)
	if err != nil || n < 0 {
		return fmt.Errorf("max retries must be a non-negative number, got %q", retries)
	}
	cfg.Pipeline.MaxRetries = n
	return nil
}
