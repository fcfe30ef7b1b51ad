package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/timewarp/internal/timewarp/federation"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a federation manifest",
		Long:  "Load the manifest named by --config and run its struct-tag and cross-field validation without starting any component.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("validate: --config is required")
			}

			cfg, err := federation.Load(configPath)
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}

			fmt.Printf("manifest valid: %d component(s), bind_addr=%s\n", len(cfg.Components), cfg.BindAddr)
			return nil
		},
	}
	return cmd
}
