package etl

import (
	"context"
	"fmt"
	"log"
	"slices"

	"shopetl/internal/extract"
	"shopetl/internal/pipeline"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/transform"
)

// loadCategories loads the category tree top-down. The first round writes
// the root categories together with any category whose parent is already
// stored; each following round writes the categories whose parent the
// previous round made resolvable. Categories still pending when a round
// makes no progress are referential gaps.
func (j *Job) loadCategories(ctx context.Context, in pipeline.Inputs) (pipeline.Result, error) {
	ds, err := dataset(in, schema.Categories)
	if err != nil {
		return pipeline.Result{}, err
	}
	rule := transform.CategoryRule{}
	tbl := schema.Categories.Table()
	table := tbl.Name()
	columns := tbl.LoadColumns()
	required := transform.RequiredFor(rule)
	policy := transform.Policy{FailOnEmptyBatch: j.cfg.Policy.FailOnEmptyBatch}
	parentCol := slices.Index(columns, "parent_id")
	if parentCol < 0 {
		return pipeline.Result{}, fmt.Errorf("etl: %s has no parent_id column", table)
	}

	var (
		counts  pipeline.Counts
		pending [][]any
		rejects = newErrAgg(rejectSample)
	)
	err = ds.Each(ctx, func(b extract.Batch) error {
		counts.Extracted += int64(b.Len())
		clean, cst, err := transform.Clean(b, required, policy)
		counts.Dropped += int64(cst.Dropped)
		if err != nil {
			return err
		}
		out, err := transform.Apply(rule, clean, columns)
		if err != nil {
			return err
		}
		counts.Rejected += int64(out.Rejected)
		for _, reason := range out.Reasons {
			rejects.add(reason)
		}
		pending = append(pending, out.Rows...)
		return nil
	})
	logRejects(table, "transform rejects", rejects)
	if err != nil {
		j.recordCounts(schema.Categories.Key(), counts)
		return pipeline.Result{Counts: counts}, err
	}

	var loaded storage.LoadResult
	for round := 1; len(pending) > 0; round++ {
		ready, waiting, err := j.splitResolvable(ctx, table, parentCol, pending)
		if err != nil {
			return pipeline.Result{Counts: counts}, err
		}
		if len(ready) == 0 {
			break
		}
		res, err := j.loadChunks(ctx, table, columns, ready)
		loaded.Add(res)
		counts.Attempted, counts.Inserted = loaded.Attempted, loaded.Inserted
		if err != nil {
			j.recordCounts(schema.Categories.Key(), counts)
			return pipeline.Result{Counts: counts}, err
		}
		log.Printf("etl: table=%s round=%d inserted=%d skipped=%d waiting=%d",
			table, round, res.Inserted, res.Skipped(), len(waiting))
		pending = waiting
	}

	counts.Gaps = int64(len(pending))
	if len(pending) > 0 {
		gaps := newErrAgg(rejectSample)
		for _, row := range pending {
			gaps.add(fmt.Sprintf("category_id=%v parent_id=%v does not resolve", row[0], row[parentCol]))
		}
		logRejects(table, "referential gaps", gaps)
	}
	j.recordCounts(schema.Categories.Key(), counts)
	return pipeline.Result{Counts: counts}, nil
}

// splitResolvable partitions rows into those whose parent is NULL or already
// stored and those still waiting for their parent.
func (j *Job) splitResolvable(ctx context.Context, table string, parentCol int, rows [][]any) (ready, waiting [][]any, err error) {
	var ids []int64
	seen := map[int64]struct{}{}
	for _, row := range rows {
		if id, ok := refID(row[parentCol]); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	found, err := j.loader.Existing(ctx, table, "category_id", ids)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		id, ok := refID(row[parentCol])
		if !ok {
			ready = append(ready, row)
			continue
		}
		if _, hit := found[id]; hit {
			ready = append(ready, row)
		} else {
			waiting = append(waiting, row)
		}
	}
	return ready, waiting, nil
}
