package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/strix/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without dissecting anything.

The file is loaded with environment overrides applied, and every protocol
preference is decoded against its dissector.

Examples:
  strix validate -c strix.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), configFile)
	},
}

func runValidate(w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	enabled := 0
	for _, p := range reg.Protocols() {
		if reg.Enabled(p.Filter) {
			enabled++
		}
	}
	fmt.Fprintf(w, "VALID: %d protocol(s) enabled, %d disabled, output %s, %d worker(s)\n",
		enabled,
		len(reg.Protocols())-enabled,
		cfg.Output.Format,
		cfg.Dissect.Workers,
	)
	return nil
}
