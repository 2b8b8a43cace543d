package main

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"shopetl/internal/config"
	"shopetl/internal/metrics"
	"shopetl/internal/metrics/datadog"
	"shopetl/internal/metrics/prompush"
	"shopetl/internal/storage"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	ConfigPath     string
	Verbose        bool
	MetricsBackend string
	PushGatewayURL string
	StatsdAddr     string

	getenv config.Getenv
}

// newRootCommand builds the command tree. getenv is os.Getenv outside tests.
func newRootCommand(getenv config.Getenv) *cobra.Command {
	opts := &rootOptions{getenv: getenv}

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Batch ETL for the shop data warehouse",
		Long: `Loads categories, products, customers, orders and order items from flat
files into the warehouse, then builds daily_sales and the product sales
summary. Also serves the read-only query API.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			log.SetOutput(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "configs/pipeline.yaml", "pipeline config path (.yaml, .yml or .json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose logs")
	cmd.PersistentFlags().StringVar(&opts.MetricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	cmd.PersistentFlags().StringVar(&opts.PushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	cmd.PersistentFlags().StringVar(&opts.StatsdAddr, "statsd-addr", "", "DogStatsD address (overrides env STATSD_ADDR)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// loadPipeline reads the config file and overlays the environment. Issues
// are printed to w; an error is returned when any of them is an error.
func (o *rootOptions) loadPipeline(w io.Writer) (config.Pipeline, error) {
	p, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Pipeline{}, err
	}
	if err := p.ApplyEnv(o.getenv); err != nil {
		return config.Pipeline{}, fmt.Errorf("env: %w", err)
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, fmt.Errorf("configuration is invalid: %s", o.ConfigPath)
	}
	return p, nil
}

func storageConfig(p config.Pipeline) storage.Config {
	return storage.Config{
		Kind:     p.Storage.Kind,
		DSN:      p.Storage.DSN,
		FromYear: p.Storage.Partitions.FromYear,
		ToYear:   p.Storage.Partitions.ToYear,
	}
}

// firstNonEmpty implements flag → env → default resolution.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// setupMetrics installs the selected metrics backend and returns a function
// that flushes it. The nop backend stays in place when the backend cannot be
// built; metrics never fail a run.
func (o *rootOptions) setupMetrics(job string) (flush func()) {
	backend := strings.ToLower(firstNonEmpty(o.MetricsBackend, o.getenv("METRICS_BACKEND"), "none"))
	if job == "" {
		job = "shopetl"
	}
	nop := func() {}

	switch backend {
	case "pushgateway":
		gwURL := firstNonEmpty(o.PushGatewayURL, o.getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return nop
		}
		log.Printf("metrics: backend=%s url=%s job=%s", backend, gwURL, job)
		metrics.SetBackend(b)

	case "datadog":
		addr := firstNonEmpty(o.StatsdAddr, o.getenv("STATSD_ADDR"), "127.0.0.1:8125")
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "shopetl.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop
		}
		log.Printf("metrics: backend=%s addr=%s job=%s", backend, addr, job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics: flush error: %v", err)
			}
			if err := b.Close(); err != nil {
				log.Printf("metrics: close error: %v", err)
			}
		}

	case "none":
		if o.Verbose {
			log.Printf("metrics: disabled")
		}
		return nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backend)
		return nop
	}

	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}
