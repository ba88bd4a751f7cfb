// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package streamreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/rowstream/internal/cloudstorage"
	"github.com/cardinalhq/rowstream/internal/logctx"
)

// Row is one parsed record. Values are string, []byte for binary table
// columns read with BinaryAsText disabled, or nil for a table null.
type Row []any

type readerState int

const (
	stateUnopened readerState = iota
	stateStreaming
	stateClosed
)

// Stats summarizes what a Reader has done so far.
type Stats struct {
	RowsReturned      int64
	Records           int64
	BatchesFlushed    int64
	RowsDropped       int64
	CompressedBytes   int64
	DecompressedBytes int64
	Spilled           bool
}

// Reader turns a ChunkSource into rows. Delimited text is streamed through
// the line splitter and batch assembler; parquet and ORC are buffered whole
// and decoded as tables. Either way Next yields one row at a time.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	opts   Options
	src    ChunkSource
	logger *slog.Logger

	dec     *Decompressor
	lines   *LineSplitter
	batches *BatchAssembler
	loader  *TableLoader
	rows    rowSource

	state      readerState
	header     Row
	headerDone bool
	rowsOut    int64
	err        error
}

// NewReader validates opts and builds the pipeline over src. No input is
// consumed until the first call to Next or Header. If src implements
// io.Closer it is closed by Close.
func NewReader(src ChunkSource, opts Options) (*Reader, error) {
	if opts.Dialect == (Dialect{}) {
		opts.Dialect = ExcelDialect()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dec, err := NewDecompressor(src, opts.Compression)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		opts:   opts,
		src:    src,
		logger: opts.Logger,
		dec:    dec,
	}

	if opts.Encoding.Table() {
		r.loader = NewTableLoader(opts.Decoder(), opts.Table.Spill(), opts.Logger)
		r.rows = newTableRows(r.loader, dec, opts.Table.BinaryAsText, !opts.IgnoreHeader)
		return r, nil
	}

	r.lines = NewLineSplitter(dec, opts.MaxRecordBytes)
	r.batches, err = NewBatchAssembler(r.lines, BatchOptions{
		BufferSize:      opts.BufferSize,
		Dialect:         opts.Dialect,
		SkipInvalidRows: opts.SkipInvalidRows,
		Logger:          opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	r.rows = r.batches
	return r, nil
}

// NewReaderFromIO is NewReader over an io.Reader read in opts.ChunkSize chunks.
func NewReaderFromIO(rd io.Reader, opts Options) (*Reader, error) {
	return NewReader(NewReaderSource(rd, opts.ChunkSize), opts)
}

// Open parses uri, opens the object through opener and returns a Reader over
// its body. Closing the Reader closes the body. Without opts.Logger the
// reader logs to the logger carried by ctx.
func Open(ctx context.Context, opener cloudstorage.Opener, uri string, opts Options) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = logctx.FromContext(ctx)
	}
	loc, err := cloudstorage.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	body, _, err := opener.Open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	r, err := NewReaderFromIO(body, opts)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	return r, nil
}

// Next returns the next data row, or io.EOF at the end of input. The first
// error ends iteration and is returned again by later calls.
func (r *Reader) Next(ctx context.Context) (Row, error) {
	if r.state == stateClosed {
		return nil, ErrReaderClosed
	}
	r.state = stateStreaming
	if !r.opts.IgnoreHeader && !r.headerDone {
		if err := r.captureHeader(ctx); err != nil {
			return nil, err
		}
	}
	row, err := r.pull(ctx)
	if err != nil {
		return nil, err
	}
	r.rowsOut++
	rowsOutCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("encoding", r.opts.Encoding.String()),
	))
	return row, nil
}

// Header returns the first row of the input, reading it if necessary. It
// fails with ErrHeaderUnavailable when the reader ignores headers and with
// io.EOF when the input has no rows.
func (r *Reader) Header(ctx context.Context) (Row, error) {
	if r.opts.IgnoreHeader {
		return nil, ErrHeaderUnavailable
	}
	if r.headerDone {
		if r.header == nil {
			return nil, io.EOF
		}
		return r.header, nil
	}
	if r.state == stateClosed {
		return nil, ErrReaderClosed
	}
	r.state = stateStreaming
	if err := r.captureHeader(ctx); err != nil {
		return nil, err
	}
	if r.header == nil {
		return nil, io.EOF
	}
	return r.header, nil
}

func (r *Reader) captureHeader(ctx context.Context) error {
	row, err := r.pull(ctx)
	if errors.Is(err, io.EOF) {
		r.headerDone = true
		return io.EOF
	}
	if err != nil {
		return err
	}
	r.header = row
	r.headerDone = true
	return nil
}

func (r *Reader) pull(ctx context.Context) (Row, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, err := r.rows.Next(ctx)
	if err != nil {
		r.err = err
		return nil, err
	}
	return row, nil
}

// All returns an iterator over the remaining rows. Iteration stops at the
// first error, which is yielded once. Breaking out early does not close the
// reader.
func (r *Reader) All(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for {
			row, err := r.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Stats returns the reader's counters.
func (r *Reader) Stats() Stats {
	s := Stats{
		RowsReturned:      r.rowsOut,
		CompressedBytes:   r.dec.BytesIn(),
		DecompressedBytes: r.dec.BytesOut(),
	}
	if r.lines != nil {
		s.Records = r.lines.Records()
	}
	if r.batches != nil {
		s.BatchesFlushed = r.batches.BatchesFlushed()
		s.RowsDropped = r.batches.RowsDropped()
	}
	if r.loader != nil {
		s.Spilled = r.loader.Spilled()
	}
	return s
}

// Close releases codec state and any spill storage, then closes the source
// if it is an io.Closer. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.state == stateClosed {
		return nil
	}
	stats := r.Stats()
	r.state = stateClosed

	var errs *multierror.Error
	if r.loader != nil {
		if err := r.loader.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := r.dec.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close decompressor: %w", err))
	}
	if c, ok := r.src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close source: %w", err))
		}
	}

	r.logger.Debug("Reader closed",
		slog.String("compression", r.opts.Compression.String()),
		slog.String("encoding", r.opts.Encoding.String()),
		slog.Int64("rows", stats.RowsReturned),
		slog.Int64("compressedBytes", stats.CompressedBytes),
		slog.Int64("decompressedBytes", stats.DecompressedBytes),
		slog.Bool("spilled", stats.Spilled))
	return errs.ErrorOrNil()
}

// WithReader builds a Reader over src, passes it to fn and closes it on
// every exit path, including a panic in fn. A close error is joined with the
// error returned by fn. src is closed even when the Reader cannot be built.
func WithReader(ctx context.Context, src ChunkSource, opts Options, fn func(ctx context.Context, r *Reader) error) (err error) {
	if opts.Logger == nil {
		opts.Logger = logctx.FromContext(ctx)
	}
	r, err := NewReader(src, opts)
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	return fn(ctx, r)
}
