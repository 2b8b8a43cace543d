package etl

import (
	"context"
	"fmt"
	"log"

	"shopetl/internal/aggregate"
	"shopetl/internal/pipeline"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
)

// aggregateDailySales rolls up the items, products and orders the load tasks
// wrote and replaces every date it covers.
func (j *Job) aggregateDailySales(ctx context.Context, in pipeline.Inputs) (pipeline.Result, error) {
	var inputs aggregate.Inputs
	var err error
	if inputs.Items, err = loaded[*aggregate.Items](in, schema.OrderItems); err != nil {
		return pipeline.Result{}, err
	}
	if inputs.Products, err = loaded[aggregate.Products](in, schema.Products); err != nil {
		return pipeline.Result{}, err
	}
	if inputs.Orders, err = loaded[aggregate.Orders](in, schema.Orders); err != nil {
		return pipeline.Result{}, err
	}

	rows, st := aggregate.DailySales(inputs)
	counts := pipeline.Counts{
		Extracted: int64(st.Items),
		Gaps:      int64(st.Gaps),
	}
	table := schema.DailySales.String()
	var res storage.LoadResult
	if len(rows) > 0 {
		res, err = j.loader.Replace(ctx, table, "date", aggregate.Dates(rows), aggregate.Columns, aggregate.Rows(rows))
	}
	counts.Attempted, counts.Inserted = res.Attempted, res.Inserted
	j.recordCounts(schema.DailySales.Key(), counts)
	if err != nil {
		return pipeline.Result{Counts: counts}, err
	}
	log.Printf("etl: table=%s items=%d rows=%d dates=%d gaps=%d",
		table, st.Items, st.Rows, len(aggregate.Dates(rows)), st.Gaps)
	return pipeline.Result{Counts: counts, Output: st}, nil
}

// loaded returns the rows handed down by the load task of r.
func loaded[T any](in pipeline.Inputs, r schema.Relation) (T, error) {
	var zero T
	v, ok := in.Output(LoadTask(r))
	if !ok {
		return zero, fmt.Errorf("etl: %s did not run", LoadTask(r))
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("etl: %s produced %T, want %T", LoadTask(r), v, zero)
	}
	return out, nil
}

// refreshSummary rebuilds product_sales_summary. The order-items inserted
// count is passed along for the refresh log line.
func (j *Job) refreshSummary(ctx context.Context, in pipeline.Inputs) (pipeline.Result, error) {
	inserted := in[LoadTask(schema.OrderItems)].Counts.Inserted
	ref := storage.Refresher{Repo: j.repo}
	if err := ref.Refresh(ctx, schema.ProductSalesSummary.String(), inserted); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{}, nil
}
