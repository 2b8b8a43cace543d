package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"shopetl/internal/etlerr"
)

// Loader is the pipeline's write path. It wraps a Repository, classifies
// every storage error as etlerr.ErrLoadFailed and logs per-call progress.
type Loader struct {
	Repo Repository
}

// Load bulk-inserts rows into table with skip-on-conflict semantics.
func (l Loader) Load(ctx context.Context, table string, columns []string, rows [][]any) (LoadResult, error) {
	if len(rows) == 0 {
		return LoadResult{}, nil
	}
	res, err := l.Repo.CopyFrom(ctx, table, columns, rows)
	if err != nil {
		return LoadResult{Attempted: int64(len(rows))}, etlerr.LoadFailed(table, err)
	}
	return res, nil
}

// Replace deletes the rows of table keyed by keys and inserts rows in one
// transaction.
func (l Loader) Replace(ctx context.Context, table, keyColumn string, keys []string, columns []string, rows [][]any) (LoadResult, error) {
	res, err := l.Repo.Replace(ctx, table, keyColumn, keys, columns, rows)
	if err != nil {
		return LoadResult{Attempted: int64(len(rows))}, etlerr.LoadFailed(table, err)
	}
	return res, nil
}

// Existing returns which ids are present in table.column.
func (l Loader) Existing(ctx context.Context, table, column string, ids []int64) (map[int64]struct{}, error) {
	if len(ids) == 0 {
		return map[int64]struct{}{}, nil
	}
	got, err := l.Repo.ExistingKeys(ctx, table, column, ids)
	if err != nil {
		return nil, etlerr.LoadFailed(table, fmt.Errorf("resolve %s: %w", column, err))
	}
	return got, nil
}

// RowBatch is one unit of work for LoadBatches. Rows are already transformed.
type RowBatch struct {
	Seq     int
	Columns []string
	Rows    [][]any
}

// FlushFn writes one batch. Implementations are usually Loader.Load bound to
// a table, possibly preceded by reference resolution.
type FlushFn func(ctx context.Context, b RowBatch) (LoadResult, error)

// LoadBatches drains batches from in and flushes each one in arrival order.
// It returns the accumulated result and the first error; on error the
// remaining input is drained so the producer never blocks.
//
// Cancellation: returns (total, ctx.Err()) when canceled. Progress is logged
// on each successful flush.
func LoadBatches(ctx context.Context, table string, in <-chan RowBatch, flush FlushFn) (LoadResult, error) {
	if flush == nil {
		return LoadResult{}, fmt.Errorf("flush must not be nil")
	}

	var (
		total       LoadResult
		batches     int64
		start       = time.Now()
		lastFlushTS = start
	)
	drain := func() {
		for range in {
		}
	}

	for {
		select {
		case <-ctx.Done():
			go drain()
			return total, ctx.Err()

		case b, ok := <-in:
			if !ok {
				log.Printf("loader: table=%s input closed batches=%d attempted=%d inserted=%d skipped=%d",
					table, batches, total.Attempted, total.Inserted, total.Skipped())
				return total, nil
			}
			res, err := flush(ctx, b)
			total.Add(res)
			if err != nil {
				log.Printf("loader: table=%s batch=%d failed attempted=%d err=%v", table, b.Seq, res.Attempted, err)
				go drain()
				return total, err
			}

			batches++
			now := time.Now()
			sinceLast := now.Sub(lastFlushTS)
			rps := float64(0)
			if sinceLast > 0 {
				rps = float64(res.Attempted) / sinceLast.Seconds()
			}
			log.Printf(
				"batch #%d: table=%s rps=%.0f inserted=%d skipped=%d total_inserted=%d elapsed=%s",
				b.Seq, table, rps, res.Inserted, res.Skipped(), total.Inserted,
				now.Sub(start).Truncate(time.Millisecond),
			)
			lastFlushTS = now
		}
	}
}
