package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shopetl/internal/storage"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, partitions, indexes and views",
		Long: `Applies the schema of the configured storage kind. Every statement is
idempotent, so migrate is safe against an existing warehouse. With --print the
statements are written to stdout instead of executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := root.loadPipeline(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			scfg := storageConfig(p)
			if printOnly {
				stmts, err := storage.SchemaStatements(scfg)
				if err != nil {
					return err
				}
				for _, s := range stmts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", strings.TrimRight(strings.TrimSpace(s), ";"))
				}
				return nil
			}
			repo, err := storage.New(cmd.Context(), scfg)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer repo.Close()
			return storage.EnsureSchema(cmd.Context(), repo, scfg)
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL instead of applying it")
	return cmd
}
