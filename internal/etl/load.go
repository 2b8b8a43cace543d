package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"shopetl/internal/extract"
	"shopetl/internal/metrics"
	"shopetl/internal/pipeline"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/transform"
)

// ruleFunc builds the transformation of a load task from its ancestors.
type ruleFunc func(ctx context.Context, in pipeline.Inputs) (transform.Rule, error)

// rejectSample bounds the reject and gap messages kept per task.
const rejectSample = 10

// sink collects the rows a load task wrote, in source order. out becomes the
// task output.
type sink struct {
	add func(columns []string, rows [][]any) error
	out any
}

// streamTask loads relation r batch by batch. Batch N+1 is read, cleaned and
// transformed while batch N is resolved and written; batches are written in
// source order. newSink may be nil.
func (j *Job) streamTask(r schema.Relation, rule ruleFunc, newSink func() sink) pipeline.Func {
	return func(ctx context.Context, in pipeline.Inputs) (pipeline.Result, error) {
		ds, err := dataset(in, r)
		if err != nil {
			return pipeline.Result{}, err
		}
		rl, err := rule(ctx, in)
		if err != nil {
			return pipeline.Result{}, err
		}
		var sk sink
		if newSink != nil {
			sk = newSink()
		}
		counts, err := j.stream(ctx, ds, rl, sk.add)
		j.recordCounts(r.Key(), counts)
		return pipeline.Result{Counts: counts, Output: sk.out}, err
	}
}

func (j *Job) stream(ctx context.Context, ds extract.Dataset, rule transform.Rule, keep func([]string, [][]any) error) (pipeline.Counts, error) {
	tbl := rule.Relation().Table()
	table := tbl.Name()
	columns := tbl.LoadColumns()
	required := transform.RequiredFor(rule)
	policy := transform.Policy{FailOnEmptyBatch: j.cfg.Policy.FailOnEmptyBatch}
	res, err := newResolver(j.loader, tbl, columns)
	if err != nil {
		return pipeline.Counts{}, err
	}

	// produced is only written by the producer and read after Wait.
	var produced pipeline.Counts
	rejects := newErrAgg(rejectSample)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan storage.RowBatch, 1)

	g.Go(func() error {
		defer close(batches)
		rd, err := ds.Open(gctx)
		if err != nil {
			return err
		}
		defer rd.Close()
		for {
			b, err := rd.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			produced.Extracted += int64(b.Len())
			clean, cst, err := transform.Clean(b, required, policy)
			produced.Dropped += int64(cst.Dropped)
			metrics.RecordRows(j.cfg.Job, rule.Relation().Key(), metrics.KindMalformed, int64(cst.Malformed))
			if err != nil {
				return err
			}
			out, err := transform.Apply(rule, clean, columns)
			if err != nil {
				return err
			}
			produced.Rejected += int64(out.Rejected)
			for _, reason := range out.Reasons {
				rejects.add(reason)
			}
			rb := storage.RowBatch{Seq: b.Seq, Columns: out.Columns, Rows: out.Rows}
			select {
			case batches <- rb:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var loaded storage.LoadResult
	g.Go(func() error {
		var err error
		loaded, err = storage.LoadBatches(gctx, table, batches, func(ctx context.Context, b storage.RowBatch) (storage.LoadResult, error) {
			rows, err := res.resolve(ctx, b.Rows)
			if err != nil {
				return storage.LoadResult{}, err
			}
			metrics.RecordBatches(j.cfg.Job, rule.Relation().Key(), 1)
			lr, err := j.loader.Load(ctx, table, b.Columns, rows)
			if err != nil || keep == nil {
				return lr, err
			}
			return lr, keep(b.Columns, rows)
		})
		return err
	})
	err = g.Wait()

	counts := produced
	counts.Gaps = res.gaps
	counts.Attempted = loaded.Attempted
	counts.Inserted = loaded.Inserted
	logRejects(table, "transform rejects", rejects)
	logRejects(table, "referential gaps", res.samples)
	log.Printf("etl: table=%s extracted=%d dropped=%d rejected=%d gaps=%d inserted=%d skipped=%d elapsed=%s",
		table, counts.Extracted, counts.Dropped, counts.Rejected, counts.Gaps, counts.Inserted, counts.Skipped(),
		time.Since(start).Truncate(time.Millisecond))
	return counts, err
}

// resolver drops rows whose parent references are not in the store. Rows
// with a NULL reference are kept. Self references are not checked here.
type resolver struct {
	loader storage.Loader
	refs   []schema.Reference
	index  []int

	gaps    int64
	samples *errAgg
}

func newResolver(l storage.Loader, tbl schema.Table, columns []string) (*resolver, error) {
	r := &resolver{loader: l, samples: newErrAgg(rejectSample)}
	for _, ref := range tbl.References {
		if ref.Parent == tbl.Relation {
			continue
		}
		i := slices.Index(columns, ref.Column)
		if i < 0 {
			return nil, fmt.Errorf("etl: %s: reference column %s is not loaded", tbl.Name(), ref.Column)
		}
		r.refs = append(r.refs, ref)
		r.index = append(r.index, i)
	}
	return r, nil
}

func (r *resolver) resolve(ctx context.Context, rows [][]any) ([][]any, error) {
	keep := make([]bool, len(rows))
	for i := range keep {
		keep[i] = true
	}
	for k, ref := range r.refs {
		col := r.index[k]
		ids := make([]int64, 0, len(rows))
		seen := map[int64]struct{}{}
		for _, row := range rows {
			id, ok := refID(row[col])
			if !ok {
				continue
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		found, err := r.loader.Existing(ctx, ref.Parent.String(), ref.ParentColumn, ids)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			if !keep[i] {
				continue
			}
			id, ok := refID(row[col])
			if !ok {
				continue
			}
			if _, hit := found[id]; !hit {
				keep[i] = false
				r.gaps++
				r.samples.add(fmt.Sprintf("%s=%d not found in %s", ref.Column, id, ref.Parent))
			}
		}
	}
	out := rows[:0:0]
	for i, row := range rows {
		if keep[i] {
			out = append(out, row)
		}
	}
	return out, nil
}

// refID reads a reference value from a transformed row. NULL references
// resolve trivially.
func refID(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, false
	}
	id, err := transform.ParseInt(s)
	if err != nil {
		return 0, false
	}
	return id, true
}

// loadChunks writes rows in chunks of the configured size, one transaction
// per chunk.
func (j *Job) loadChunks(ctx context.Context, table string, columns []string, rows [][]any) (storage.LoadResult, error) {
	var total storage.LoadResult
	size := j.cfg.Runtime.ChunkSize
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		res, err := j.loader.Load(ctx, table, columns, rows[start:end])
		total.Add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
