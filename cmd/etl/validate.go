package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline configuration and exit",
		Long: `Loads the configuration, applies environment overrides and reports every
issue found. Warnings do not fail validation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := root.loadPipeline(cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", root.ConfigPath)
			return nil
		},
	}
}
