// Package extract turns a flat file into a restartable sequence of fixed-size
// record batches. Opening a Dataset twice yields the same batches with the
// same fingerprints, so a failed task can simply re-read its input.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"shopetl/internal/datasource"
	"shopetl/internal/etlerr"
)

// DefaultChunkSize is used when a Dataset has no positive ChunkSize.
const DefaultChunkSize = 10000

// Record is one source line keyed by canonical column name.
type Record struct {
	// Line is the 1-based line in the source where the record starts.
	Line   int
	Values map[string]string

	// Malformed is set when the line could not be parsed; Values is then
	// incomplete and the record must be dropped by validation.
	Malformed error
}

// Get returns the value of column, or "" when absent.
func (r Record) Get(column string) string { return r.Values[column] }

// Batch is an ordered run of at most ChunkSize records.
type Batch struct {
	// Seq is the 0-based position of the batch in the source.
	Seq     int
	Records []Record

	// Fingerprint is an xxh3 hash of the batch content. Identical input
	// always produces identical fingerprints.
	Fingerprint uint64
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }

// Dataset is a restartable handle on one source file.
type Dataset struct {
	Source    datasource.Source
	ChunkSize int
	Options   Options
}

// Name returns the source name for logs.
func (d Dataset) Name() string {
	if d.Source == nil {
		return "<nil>"
	}
	return d.Source.Name()
}

// Open starts a fresh pass over the source. Failure to open or to read the
// header is reported as etlerr.ErrSourceUnreadable.
func (d Dataset) Open(ctx context.Context) (*Reader, error) {
	if d.Source == nil {
		return nil, etlerr.SourceUnreadable("<nil>", errors.New("no source configured"))
	}
	rc, err := d.Source.Open(ctx)
	if err != nil {
		return nil, etlerr.SourceUnreadable(d.Name(), err)
	}
	cr := csv.NewReader(rc)
	cr.Comma = d.Options.Comma
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.LazyQuotes = d.Options.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	r := &Reader{
		ctx:   ctx,
		name:  d.Name(),
		rc:    rc,
		cr:    cr,
		chunk: d.ChunkSize,
		opt:   d.Options,
	}
	if r.chunk <= 0 {
		r.chunk = DefaultChunkSize
	}
	if d.Options.HasHeader {
		h, err := cr.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			_ = rc.Close()
			return nil, etlerr.SourceUnreadable(d.Name(), fmt.Errorf("read header: %w", err))
		}
		r.header = normalizeHeaders(h, d.Options)
	} else {
		if len(d.Options.Columns) == 0 {
			_ = rc.Close()
			return nil, etlerr.SourceUnreadable(d.Name(), errors.New("no header and no column names"))
		}
		r.header = append([]string(nil), d.Options.Columns...)
	}
	return r, nil
}

// Each reads the dataset from the start and calls fn for every batch in order.
// It stops at the first error returned by fn.
func (d Dataset) Each(ctx context.Context, fn func(Batch) error) error {
	r, err := d.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		b, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
}

// Probe opens the dataset and reads its header, surfacing unreadable sources
// before any work depends on them. It returns the canonical column names.
func (d Dataset) Probe(ctx context.Context) ([]string, error) {
	r, err := d.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Header(), nil
}

// Reader yields the batches of one pass over a Dataset. It is not safe for
// concurrent use.
type Reader struct {
	ctx    context.Context
	name   string
	rc     io.ReadCloser
	cr     *csv.Reader
	header []string
	chunk  int
	opt    Options

	seq     int
	lines   int
	done    bool
	emitted int
}

// Header returns the canonical column names in source order.
func (r *Reader) Header() []string { return r.header }

// Next returns the next batch, or io.EOF once the source is exhausted. The
// final batch may hold fewer than ChunkSize records; an empty source yields
// io.EOF immediately. A line that fails to parse is returned as a Malformed
// record. Any other read error aborts the pass as SourceUnreadable.
func (r *Reader) Next() (Batch, error) {
	if r.done {
		return Batch{}, io.EOF
	}
	h := xxh3.New()
	recs := make([]Record, 0, r.chunk)
	for len(recs) < r.chunk {
		if err := r.ctx.Err(); err != nil {
			return Batch{}, err
		}
		fields, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		var pe *csv.ParseError
		switch {
		case errors.As(err, &pe):
			rec := Record{Line: pe.StartLine, Malformed: err}
			recs = append(recs, rec)
			fmt.Fprintf(h, "!%d\x1e", pe.StartLine)
			continue
		case err != nil:
			return Batch{}, etlerr.SourceUnreadable(r.name, err)
		}
		line, _ := r.cr.FieldPos(0)
		recs = append(recs, r.record(line, fields, h))
	}
	if len(recs) == 0 {
		return Batch{}, io.EOF
	}
	b := Batch{Seq: r.seq, Records: recs, Fingerprint: h.Sum64()}
	r.seq++
	r.emitted += len(recs)
	if r.seq%100 == 0 {
		log.Printf("extract: source=%s batches=%d records=%d", r.name, r.seq, r.emitted)
	}
	return b, nil
}

func (r *Reader) record(line int, fields []string, h *xxh3.Hasher) Record {
	rec := Record{Line: line, Values: make(map[string]string, len(r.header))}
	if len(fields) != len(r.header) {
		rec.Malformed = fmt.Errorf("line %d: %d fields, header has %d", line, len(fields), len(r.header))
	}
	for i, f := range fields {
		if r.opt.TrimSpace {
			f = strings.TrimSpace(f)
		}
		if !norm.NFC.IsNormalString(f) {
			f = norm.NFC.String(f)
		}
		_, _ = h.WriteString(f)
		_, _ = h.Write([]byte{0x1f})
		if i < len(r.header) {
			rec.Values[r.header[i]] = f
		}
	}
	_, _ = h.Write([]byte{0x1e})
	return rec
}

// Close releases the underlying source.
func (r *Reader) Close() error {
	r.done = true
	return r.rc.Close()
}
