package etl

import (
	"context"
	"strconv"
	"time"

	"shopetl/internal/pipeline"
	"shopetl/internal/schema"
	"shopetl/internal/transform"
)

// DimTimeColumns is the column order of DimTimeRows.
var DimTimeColumns = schema.DimTime.Table().LoadColumns()

// DimTimeRows generates one calendar row per day from start to end
// inclusive. Weeks start on Monday (day_of_week 1) and week_of_year is the
// ISO week. No holiday calendar is applied.
func DimTimeRows(start, end time.Time) [][]any {
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		return nil
	}
	out := make([][]any, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		wd := int(d.Weekday())
		if wd == 0 {
			wd = 7
		}
		_, week := d.ISOWeek()
		out = append(out, []any{
			d.Format(transform.DateLayout),
			strconv.Itoa(wd),
			strconv.Itoa(d.Day()),
			strconv.Itoa(d.YearDay()),
			strconv.Itoa(week),
			strconv.Itoa(int(d.Month())),
			d.Month().String(),
			strconv.Itoa((int(d.Month())-1)/3 + 1),
			strconv.Itoa(d.Year()),
			strconv.FormatBool(wd >= 6),
			"false",
		})
	}
	return out
}

func (j *Job) loadDimTime(ctx context.Context, _ pipeline.Inputs) (pipeline.Result, error) {
	rows := DimTimeRows(j.dimStart, j.dimEnd)
	res, err := j.loadChunks(ctx, schema.DimTime.String(), DimTimeColumns, rows)
	counts := pipeline.Counts{
		Extracted: int64(len(rows)),
		Attempted: res.Attempted,
		Inserted:  res.Inserted,
	}
	j.recordCounts(schema.DimTime.Key(), counts)
	return pipeline.Result{Counts: counts}, err
}
