// Package etl assembles the e-commerce load as a task graph and runs it.
//
// The graph mirrors the relation dependencies of the store:
//
//	extract:<relation>            (one per source file, no deps)
//	load:categories               <- extract:categories
//	load:products                 <- load:categories, extract:products
//	load:customers                <- load:products, extract:customers, extract:orders
//	load:orders                   <- load:customers, extract:orders
//	load:order_items              <- load:orders, load:products, extract:order_items
//	aggregate:daily_sales         <- load:{order_items,products,orders}
//	refresh:product_sales_summary <- aggregate:daily_sales
//	load:dim_time                 (independent)
//
// Every load is skip-on-conflict, so re-running a job over the same files
// inserts nothing new. The product, order and order item loads hand the rows
// they wrote to aggregate:daily_sales, so the rollup only sees what the
// store holds.
package etl

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"shopetl/internal/aggregate"
	"shopetl/internal/config"
	"shopetl/internal/datasource"
	"shopetl/internal/datasource/file"
	"shopetl/internal/datasource/httpds"
	"shopetl/internal/extract"
	"shopetl/internal/metrics"
	"shopetl/internal/pipeline"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/transform"
)

// Task names that are not derived from a relation.
const (
	TaskDailySales     = "aggregate:daily_sales"
	TaskRefreshSummary = "refresh:product_sales_summary"
)

// ExtractTask is the name of the extract task of r.
func ExtractTask(r schema.Relation) string { return "extract:" + r.Key() }

// LoadTask is the name of the load task of r.
func LoadTask(r schema.Relation) string { return "load:" + r.Key() }

// defaultResources are the hints reported when the configuration has none.
var defaultResources = map[string]pipeline.Resources{
	"extract":   {CPU: "1", Memory: "1Gi"},
	"load":      {CPU: "1", Memory: "2Gi"},
	"aggregate": {CPU: "1", Memory: "2Gi"},
	"refresh":   {CPU: "1", Memory: "1Gi"},
}

// Job binds a pipeline configuration to an open repository.
type Job struct {
	cfg    config.Pipeline
	loader storage.Loader
	repo   storage.Repository

	datasets map[schema.Relation]extract.Dataset
	dimStart time.Time
	dimEnd   time.Time
}

// New prepares a job. The configuration should already have passed
// config.ValidatePipeline; New only re-checks what it needs to build tasks.
func New(cfg config.Pipeline, repo storage.Repository) (*Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("etl: nil repository")
	}
	cfg.ApplyDefaults()
	j := &Job{
		cfg:      cfg,
		loader:   storage.Loader{Repo: repo},
		repo:     repo,
		datasets: make(map[schema.Relation]extract.Dataset, len(schema.SourceRelations)),
	}
	for _, r := range schema.SourceRelations {
		src, ok := cfg.Sources[r.Key()]
		if !ok || src.Path == "" {
			return nil, fmt.Errorf("etl: no source configured for %s", r.Key())
		}
		j.datasets[r] = extract.Dataset{
			Source:    newSource(src),
			ChunkSize: cfg.Runtime.ChunkSize,
			Options:   extract.OptionsFrom(src.Options),
		}
	}
	var err error
	if j.dimStart, err = time.Parse(transform.DateLayout, cfg.DimTime.Start); err != nil {
		return nil, fmt.Errorf("etl: dim_time.start: %w", err)
	}
	if j.dimEnd, err = time.Parse(transform.DateLayout, cfg.DimTime.End); err != nil {
		return nil, fmt.Errorf("etl: dim_time.end: %w", err)
	}
	if j.dimEnd.Before(j.dimStart) {
		return nil, fmt.Errorf("etl: dim_time end %s is before start %s", cfg.DimTime.End, cfg.DimTime.Start)
	}
	return j, nil
}

// newSource picks the datasource for a configured path: http(s) URLs are
// downloaded, anything else is a local file.
func newSource(src config.Source) datasource.Source {
	if httpds.IsURL(src.Path) {
		return httpds.New(src.Path, httpds.Config{
			InsecureSkipVerify: src.Options.Bool("insecure_skip_verify", false),
		})
	}
	return file.NewLocal(src.Path)
}

// Tasks returns the task set of the job, in declaration order.
func (j *Job) Tasks() []pipeline.Task {
	var tasks []pipeline.Task
	for _, r := range schema.SourceRelations {
		tasks = append(tasks, j.task(ExtractTask(r), nil, j.extractTask(r)))
	}
	tasks = append(tasks,
		j.task(LoadTask(schema.Categories),
			[]string{ExtractTask(schema.Categories)},
			j.loadCategories),
		j.task(LoadTask(schema.Products),
			[]string{LoadTask(schema.Categories), ExtractTask(schema.Products)},
			j.streamTask(schema.Products, func(context.Context, pipeline.Inputs) (transform.Rule, error) {
				return transform.ProductRule{}, nil
			}, func() sink {
				p := aggregate.Products{}
				return sink{add: p.AddProducts, out: p}
			})),
		j.task(LoadTask(schema.Customers),
			[]string{LoadTask(schema.Products), ExtractTask(schema.Customers), ExtractTask(schema.Orders)},
			j.streamTask(schema.Customers, j.customerRule, nil)),
		j.task(LoadTask(schema.Orders),
			[]string{LoadTask(schema.Customers), ExtractTask(schema.Orders)},
			j.streamTask(schema.Orders, func(context.Context, pipeline.Inputs) (transform.Rule, error) {
				return transform.OrderRule{}, nil
			}, func() sink {
				o := aggregate.Orders{}
				return sink{add: o.AddOrders, out: o}
			})),
		j.task(LoadTask(schema.OrderItems),
			[]string{LoadTask(schema.Orders), LoadTask(schema.Products), ExtractTask(schema.OrderItems)},
			j.streamTask(schema.OrderItems, func(context.Context, pipeline.Inputs) (transform.Rule, error) {
				return transform.OrderItemRule{}, nil
			}, func() sink {
				it := &aggregate.Items{}
				return sink{add: it.AddItems, out: it}
			})),
		j.task(TaskDailySales,
			[]string{LoadTask(schema.OrderItems), LoadTask(schema.Products), LoadTask(schema.Orders)},
			j.aggregateDailySales),
		j.task(TaskRefreshSummary,
			[]string{TaskDailySales},
			j.refreshSummary),
		j.task(LoadTask(schema.DimTime), nil, j.loadDimTime),
	)
	return tasks
}

// Graph builds the validated task graph.
func (j *Job) Graph() (*pipeline.Graph, error) {
	return pipeline.New(j.Tasks()...)
}

// Run builds the graph and executes it. Task failures are reported in the
// returned Report; the error is non-nil only when the graph cannot be built.
func (j *Job) Run(ctx context.Context) (pipeline.Report, error) {
	g, err := j.Graph()
	if err != nil {
		return pipeline.Report{}, err
	}
	rep := g.Run(ctx, pipeline.Options{Job: j.cfg.Job, MaxParallel: j.cfg.Runtime.MaxParallel})
	LogSummary(rep)
	return rep, nil
}

func (j *Job) task(name string, deps []string, run pipeline.Func) pipeline.Task {
	return pipeline.Task{Name: name, Deps: deps, Resources: j.resources(name), Run: run}
}

func (j *Job) resources(name string) pipeline.Resources {
	if r, ok := j.cfg.Resources[name]; ok {
		return pipeline.Resources{CPU: r.CPU, Memory: r.Memory}
	}
	stage, _, _ := strings.Cut(name, ":")
	return defaultResources[stage]
}

// extractTask probes the source so an unreadable file fails here rather than
// inside a load, then hands the dataset downstream.
func (j *Job) extractTask(r schema.Relation) pipeline.Func {
	return func(ctx context.Context, _ pipeline.Inputs) (pipeline.Result, error) {
		ds := j.datasets[r]
		header, err := ds.Probe(ctx)
		if err != nil {
			return pipeline.Result{}, err
		}
		if missing := missingColumns(header, r.Table().Required()); len(missing) > 0 {
			log.Printf("extract: source=%s relation=%s missing required columns %v; every record will be dropped",
				ds.Name(), r.Key(), missing)
		}
		log.Printf("extract: source=%s relation=%s columns=%d", ds.Name(), r.Key(), len(header))
		return pipeline.Result{Output: ds}, nil
	}
}

func missingColumns(header, required []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var out []string
	for _, c := range required {
		if !have[c] {
			out = append(out, c)
		}
	}
	return out
}

// dataset returns the dataset handed down by the extract task of r.
func dataset(in pipeline.Inputs, r schema.Relation) (extract.Dataset, error) {
	v, ok := in.Output(ExtractTask(r))
	if !ok {
		return extract.Dataset{}, fmt.Errorf("etl: %s did not run", ExtractTask(r))
	}
	ds, ok := v.(extract.Dataset)
	if !ok {
		return extract.Dataset{}, fmt.Errorf("etl: %s produced %T, want extract.Dataset", ExtractTask(r), v)
	}
	return ds, nil
}

func (j *Job) customerRule(ctx context.Context, in pipeline.Inputs) (transform.Rule, error) {
	orders, err := dataset(in, schema.Orders)
	if err != nil {
		return nil, err
	}
	ltv, skipped, err := transform.ComputeLifetimeValues(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("lifetime values: %w", err)
	}
	log.Printf("etl: lifetime values customers=%d unloadable_orders=%d", len(ltv), skipped)
	return transform.CustomerRule{LifetimeValues: ltv}, nil
}

// recordCounts publishes the record-level counts of a finished task.
func (j *Job) recordCounts(relation string, c pipeline.Counts) {
	job := j.cfg.Job
	metrics.RecordRows(job, relation, metrics.KindExtracted, c.Extracted)
	metrics.RecordRows(job, relation, metrics.KindDropped, c.Dropped)
	metrics.RecordRows(job, relation, metrics.KindRejected, c.Rejected)
	metrics.RecordRows(job, relation, metrics.KindGap, c.Gaps)
	metrics.RecordRows(job, relation, metrics.KindInserted, c.Inserted)
	metrics.RecordRows(job, relation, metrics.KindSkipped, c.Skipped())
}
