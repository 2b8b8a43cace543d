package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"shopetl/internal/query"
	"shopetl/internal/queryapi"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Serves product sales, purchase history, top sellers, sales trends and
product updates as JSON. Requires postgres storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := root.loadPipeline(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if p.Storage.Kind != "postgres" {
				return fmt.Errorf("serve: storage kind %q is not supported, want postgres", p.Storage.Kind)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := pgxpool.New(ctx, p.Storage.DSN)
			if err != nil {
				return fmt.Errorf("serve: connect: %w", err)
			}
			defer pool.Close()
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("serve: ping: %w", err)
			}

			srv := queryapi.NewServer(queryapi.Config{Addr: addr}, query.NewPGStore(pool))
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
