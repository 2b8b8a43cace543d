// Package transform validates extracted batches and turns records into
// load-ready rows. Every function here is pure: the same batch and rule always
// yield the same rows, which is what makes re-running a task safe.
package transform

import (
	"fmt"

	"shopetl/internal/etlerr"
	"shopetl/internal/extract"
)

// Policy controls how empty batches are treated.
type Policy struct {
	FailOnEmptyBatch bool
}

// CleanStats counts what Clean removed.
type CleanStats struct {
	In        int
	Dropped   int
	Malformed int
}

// Clean drops malformed records and records with an empty value in any of
// the required columns. The surviving records keep their source order.
//
// A batch that was non-empty and is emptied by cleaning is an error only when
// policy.FailOnEmptyBatch is set; otherwise the empty batch is returned.
func Clean(b extract.Batch, required []string, policy Policy) (extract.Batch, CleanStats, error) {
	st := CleanStats{In: len(b.Records)}
	out := b
	out.Records = make([]extract.Record, 0, len(b.Records))
	for _, rec := range b.Records {
		if rec.Malformed != nil {
			st.Malformed++
			st.Dropped++
			continue
		}
		if !hasAll(rec, required) {
			st.Dropped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	if policy.FailOnEmptyBatch && st.In > 0 && len(out.Records) == 0 {
		return out, st, fmt.Errorf("%w: batch %d dropped all %d records", etlerr.ErrEmptyBatchAfterValidation, b.Seq, st.In)
	}
	return out, st, nil
}

func hasAll(rec extract.Record, required []string) bool {
	for _, c := range required {
		if rec.Values[c] == "" {
			return false
		}
	}
	return true
}
