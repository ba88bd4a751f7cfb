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
	"encoding/csv"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// DefaultBufferSize is the batch threshold used when none is configured.
const DefaultBufferSize = 16384

// recordSource is what the batch assembler consumes: complete records.
type recordSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// rowSource is the pull contract of both materialization paths.
type rowSource interface {
	Next(ctx context.Context) (Row, error)
}

// BatchAssembler accumulates complete records until their combined size
// reaches the threshold, then tokenizes the whole batch at once so that
// quoted fields spanning several records are seen together. Rows are handed
// out one at a time in input order.
type BatchAssembler struct {
	src       recordSource
	tok       Tokenizer
	threshold int

	// batch is the pending record batch; bounds holds the offsets in batch
	// where a logical row ends, used when re-tokenizing in skip mode.
	batch  []byte
	bounds []int
	quotes quoteTracker

	rows    []Row
	rowPos  int
	flushed int64

	skipInvalid bool
	dropped     int64
	logger      *slog.Logger
	eof         bool
	err         error
}

var _ rowSource = (*BatchAssembler)(nil)

// BatchOptions configures a BatchAssembler.
type BatchOptions struct {
	BufferSize      int
	Dialect         Dialect
	SkipInvalidRows bool
	Logger          *slog.Logger
}

// NewBatchAssembler creates an assembler over src using a tokenizer for the
// configured dialect.
func NewBatchAssembler(src recordSource, opts BatchOptions) (*BatchAssembler, error) {
	tok, err := NewTokenizer(opts.Dialect)
	if err != nil {
		return nil, err
	}
	return newBatchAssemblerWithTokenizer(src, tok, opts), nil
}

func newBatchAssemblerWithTokenizer(src recordSource, tok Tokenizer, opts BatchOptions) *BatchAssembler {
	threshold := opts.BufferSize
	if threshold <= 0 {
		threshold = DefaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchAssembler{
		src:         src,
		tok:         tok,
		threshold:   threshold,
		quotes:      newQuoteTracker(opts.Dialect),
		skipInvalid: opts.SkipInvalidRows,
		logger:      logger,
	}
}

// BatchesFlushed returns the number of batches handed to the tokenizer.
func (a *BatchAssembler) BatchesFlushed() int64 {
	return a.flushed
}

// RowsDropped returns the number of malformed rows skipped in skip mode.
func (a *BatchAssembler) RowsDropped() int64 {
	return a.dropped
}

// Next returns the next parsed row, or io.EOF after the final batch.
func (a *BatchAssembler) Next(ctx context.Context) (Row, error) {
	for {
		if a.rowPos < len(a.rows) {
			row := a.rows[a.rowPos]
			a.rows[a.rowPos] = nil
			a.rowPos++
			return row, nil
		}
		if a.err != nil {
			return nil, a.err
		}
		if a.eof {
			return nil, io.EOF
		}
		a.rows = a.rows[:0]
		a.rowPos = 0
		if err := a.fill(ctx); err != nil {
			a.err = err
		}
	}
}

// fill reads records until a batch is flushed or the input ends.
func (a *BatchAssembler) fill(ctx context.Context) error {
	for {
		rec, err := a.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			a.eof = true
			if len(a.batch) == 0 {
				return nil
			}
			if a.quotes.open() {
				if !a.skipInvalid {
					return &RowParseError{Batch: a.flushed, Row: len(a.bounds), Err: csv.ErrQuote}
				}
				a.drop(ctx, 1, "unterminated_quote")
				if n := lastBound(a.bounds); n < len(a.batch) {
					a.batch = a.batch[:n]
				}
				if len(a.batch) == 0 {
					return nil
				}
			}
			return a.flush(ctx, true)
		}
		if err != nil {
			return err
		}

		a.batch = append(a.batch, rec...)
		a.quotes.feed(rec)
		if !a.quotes.open() {
			a.bounds = append(a.bounds, len(a.batch))
			if len(a.batch) >= a.threshold {
				return a.flush(ctx, false)
			}
		}
	}
}

// flush tokenizes the pending batch, queues its rows and resets the batch.
func (a *BatchAssembler) flush(ctx context.Context, final bool) error {
	batch, bounds := a.batch, a.bounds
	index := a.flushed
	a.flushed++
	batchesFlushedCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.Bool("final", final),
	))

	rows, err := a.tok.Tokenize(batch)
	if err != nil {
		if !a.skipInvalid {
			a.reset()
			return newRowParseError(index, len(rows), err)
		}
		rows = a.tokenizeGroups(ctx, index, batch, bounds)
	}
	a.rows = append(a.rows, rows...)
	rowsInCounter.Add(ctx, int64(len(rows)), otelmetric.WithAttributes(
		attribute.String("reader", "BatchAssembler"),
	))
	a.reset()
	return nil
}

// tokenizeGroups re-tokenizes a failed batch one logical row at a time and
// drops the rows that fail.
func (a *BatchAssembler) tokenizeGroups(ctx context.Context, index int64, batch []byte, bounds []int) []Row {
	var rows []Row
	start := 0
	for i, end := range bounds {
		group, err := a.tok.Tokenize(batch[start:end])
		if err != nil {
			a.logger.Warn("Skipping malformed row",
				slog.Int64("batch", index),
				slog.Int("group", i),
				slog.Any("error", err))
			a.drop(ctx, 1, "parse_error")
		} else {
			rows = append(rows, group...)
		}
		start = end
	}
	return rows
}

func (a *BatchAssembler) drop(ctx context.Context, n int, reason string) {
	a.dropped += int64(n)
	rowsDroppedCounter.Add(ctx, int64(n), otelmetric.WithAttributes(
		attribute.String("reader", "BatchAssembler"),
		attribute.String("reason", reason),
	))
}

func (a *BatchAssembler) reset() {
	a.batch = a.batch[:0]
	a.bounds = a.bounds[:0]
}

func newRowParseError(batch int64, row int, err error) *RowParseError {
	pe := &RowParseError{Batch: batch, Row: row, Err: err}
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		pe.Line = csvErr.Line
	}
	return pe
}

func lastBound(bounds []int) int {
	if len(bounds) == 0 {
		return 0
	}
	return bounds[len(bounds)-1]
}
