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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Table is a fully materialized result of a table decoder.
type Table interface {
	// Columns returns the column names in schema order.
	Columns() []string
	// NumRows returns the row count recorded in the table metadata.
	NumRows() int64
	// NextRow returns the values of the next row in column order, or io.EOF.
	NextRow() ([]any, error)
	// Release frees the table's memory.
	Release() error
}

// TableDecoder decodes a complete buffered input into a Table.
// Decoders must fail rather than silently truncate.
type TableDecoder interface {
	Format() string
	Decode(ctx context.Context, data SizedReaderAt) (Table, error)
}

// TableLoader spools an input into a SpillBuffer and decodes it once the
// input is exhausted. The loader owns both the buffer and the table until
// Close, since some decoders keep reading from the buffer while rows are
// iterated.
type TableLoader struct {
	decoder TableDecoder
	opts    SpillOptions
	logger  *slog.Logger

	buf    *SpillBuffer
	table  Table
	closed bool
}

// NewTableLoader creates a loader for one input.
func NewTableLoader(decoder TableDecoder, opts SpillOptions, logger *slog.Logger) *TableLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableLoader{decoder: decoder, opts: opts, logger: logger}
}

// Load copies every byte from src into the spill buffer and decodes it.
func (l *TableLoader) Load(ctx context.Context, src byteProducer) (Table, error) {
	if l.closed {
		return nil, ErrReaderClosed
	}
	if l.table != nil {
		return l.table, nil
	}

	l.buf = NewSpillBuffer(l.opts, l.logger)
	for {
		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, err := l.buf.Write(chunk); err != nil {
			return nil, err
		}
	}

	data, err := l.buf.Finish()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "streamreader.decodeTable", trace.WithAttributes(
		attribute.String("format", l.decoder.Format()),
		attribute.Int64("bytes", data.Size()),
		attribute.Bool("spilled", l.buf.Spilled()),
	))
	defer span.End()

	table, err := l.decoder.Decode(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		var tde *TableDecodeError
		if errors.As(err, &tde) {
			return nil, err
		}
		return nil, &TableDecodeError{Format: l.decoder.Format(), Err: err}
	}
	l.table = table
	l.logger.Debug("Table loaded",
		slog.String("format", l.decoder.Format()),
		slog.Int64("bytes", data.Size()),
		slog.Int64("rows", table.NumRows()),
		slog.Bool("spilled", l.buf.Spilled()))
	return table, nil
}

// Spilled reports whether the loader's buffer moved to disk.
func (l *TableLoader) Spilled() bool {
	return l.buf != nil && l.buf.Spilled()
}

// Close releases the table and the spill buffer. It is idempotent.
func (l *TableLoader) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var errs *multierror.Error
	if l.table != nil {
		if err := l.table.Release(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("release table: %w", err))
		}
		l.table = nil
	}
	if l.buf != nil {
		if err := l.buf.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close spill buffer: %w", err))
		}
		l.buf = nil
	}
	return errs.ErrorOrNil()
}

// tableRows streams rows out of a table loaded on first use. Unless the
// header is ignored, the first row produced is the column-name row, so the
// reader captures it the way it captures a delimited header line.
type tableRows struct {
	loader       *TableLoader
	src          byteProducer
	binaryAsText bool
	emitHeader   bool

	table      Table
	sentHeader bool
	done       bool
}

var _ rowSource = (*tableRows)(nil)

func newTableRows(loader *TableLoader, src byteProducer, binaryAsText, emitHeader bool) *tableRows {
	return &tableRows{loader: loader, src: src, binaryAsText: binaryAsText, emitHeader: emitHeader}
}

func (t *tableRows) Next(ctx context.Context) (Row, error) {
	if t.done {
		return nil, io.EOF
	}
	if t.table == nil {
		table, err := t.loader.Load(ctx, t.src)
		if err != nil {
			return nil, err
		}
		t.table = table
	}
	if t.emitHeader && !t.sentHeader {
		t.sentHeader = true
		cols := t.table.Columns()
		header := make(Row, len(cols))
		for i, c := range cols {
			header[i] = c
		}
		rowsInCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reader", t.loader.decoder.Format())))
		return header, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values, err := t.table.NextRow()
	if errors.Is(err, io.EOF) {
		t.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, &TableDecodeError{Format: t.loader.decoder.Format(), Err: err}
	}
	row := make(Row, len(values))
	for i, v := range values {
		row[i] = TextValue(v, t.binaryAsText)
	}
	rowsInCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reader", t.loader.decoder.Format())))
	return row, nil
}

// TextValue normalizes a decoded table value into its row form: text for
// scalars, nil for nulls, and bytes only when binaryAsText is false.
func TextValue(v any, binaryAsText bool) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		if !binaryAsText {
			return x
		}
		if utf8.Valid(x) {
			return string(x)
		}
		return strings.ToValidUTF8(string(x), "�")
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case *big.Int:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
