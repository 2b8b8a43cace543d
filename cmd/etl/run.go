package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shopetl/internal/etl"
	"shopetl/internal/pipeline"
	"shopetl/internal/storage"
)

type runOptions struct {
	ChunkSize   int
	MaxParallel int
	NoMigrate   bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the pipeline once",
		Long: `Extracts every source, loads the base tables in dependency order, rebuilds
daily_sales for the dates seen and refreshes the product sales summary.
Exits non-zero when any task fails or is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err := runPipeline(ctx, root, opts, cmd)
			return err
		},
	}
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "records per batch (overrides config and ETL_CHUNK_SIZE)")
	cmd.Flags().IntVar(&opts.MaxParallel, "max-parallel", 0, "tasks run at once (overrides config and ETL_MAX_PARALLEL)")
	cmd.Flags().BoolVar(&opts.NoMigrate, "no-migrate", false, "skip schema creation even when storage.auto_migrate is set")
	return cmd
}

func runPipeline(ctx context.Context, root *rootOptions, opts *runOptions, cmd *cobra.Command) (pipeline.Report, error) {
	p, err := root.loadPipeline(cmd.ErrOrStderr())
	if err != nil {
		return pipeline.Report{}, err
	}
	if opts.ChunkSize > 0 {
		p.Runtime.ChunkSize = opts.ChunkSize
	}
	if opts.MaxParallel > 0 {
		p.Runtime.MaxParallel = opts.MaxParallel
	}

	flush := root.setupMetrics(p.Job)
	defer flush()

	if root.Verbose {
		log.Printf("pipeline: job=%s storage=%s chunk_size=%d max_parallel=%d",
			p.Job, p.Storage.Kind, p.Runtime.ChunkSize, p.Runtime.MaxParallel)
	}

	scfg := storageConfig(p)
	repo, err := storage.New(ctx, scfg)
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	if p.Storage.AutoMigrate && !opts.NoMigrate {
		if err := storage.EnsureSchema(ctx, repo, scfg); err != nil {
			return pipeline.Report{}, fmt.Errorf("migrate: %w", err)
		}
	}

	job, err := etl.New(p, repo)
	if err != nil {
		return pipeline.Report{}, err
	}
	start := time.Now()
	rep, err := job.Run(ctx)
	if err != nil {
		return rep, err
	}
	if root.Verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	if rep.State != pipeline.Succeeded {
		return rep, fmt.Errorf("run %s %s: %w", rep.RunID, rep.State, rep.Err)
	}
	return rep, nil
}
