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

	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const parquetGoReadBatch = 256

// ParquetGoDecoder decodes parquet files with the parquet-go engine.
//
// parquet-go cannot decode the v1 data pages some writers produce, Arrow's
// included. When the first batch of rows fails to decode the file is handed
// to the Arrow engine instead; failures after rows have been returned are
// reported as errors.
type ParquetGoDecoder struct{}

var _ TableDecoder = ParquetGoDecoder{}

func (ParquetGoDecoder) Format() string { return "parquet" }

func (ParquetGoDecoder) Decode(ctx context.Context, data SizedReaderAt) (Table, error) {
	pf, err := parquet.OpenFile(data, data.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	fields := pf.Schema().Fields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name()
	}

	readBuf := make([]map[string]any, parquetGoReadBatch)
	for i := range readBuf {
		readBuf[i] = make(map[string]any)
	}

	t := &parquetGoTable{
		pfr:     parquet.NewGenericReader[map[string]any](pf, pf.Schema()),
		cols:    cols,
		numRows: pf.NumRows(),
		readBuf: readBuf,
	}
	if err := t.fill(); err != nil {
		_ = t.Release()
		trace.SpanFromContext(ctx).AddEvent("parquet-go fallback to arrow",
			trace.WithAttributes(attribute.String("error", err.Error())))
		table, aerr := ArrowParquetDecoder{}.Decode(ctx, data)
		if aerr != nil {
			return nil, errors.Join(err, aerr)
		}
		return table, nil
	}
	return t, nil
}

type parquetGoTable struct {
	pfr     *parquet.GenericReader[map[string]any]
	cols    []string
	numRows int64

	readBuf []map[string]any
	n       int
	pos     int
	eof     bool
}

func (t *parquetGoTable) Columns() []string { return t.cols }

func (t *parquetGoTable) NumRows() int64 { return t.numRows }

func (t *parquetGoTable) NextRow() ([]any, error) {
	for t.pos >= t.n {
		if t.eof {
			return nil, io.EOF
		}
		if err := t.fill(); err != nil {
			return nil, err
		}
		if t.n == 0 && t.eof {
			return nil, io.EOF
		}
	}

	m := t.readBuf[t.pos]
	t.pos++
	row := make([]any, len(t.cols))
	for i, name := range t.cols {
		row[i] = parquetGoValue(m[name])
	}
	return row, nil
}

func (t *parquetGoTable) fill() error {
	for i := range t.readBuf {
		clear(t.readBuf[i])
	}
	n, err := t.pfr.Read(t.readBuf)
	t.n, t.pos = n, 0
	if errors.Is(err, io.EOF) {
		t.eof = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("parquet read: %w", err)
	}
	if n == 0 {
		t.eof = true
	}
	return nil
}

func (t *parquetGoTable) Release() error {
	if t.pfr == nil {
		return nil
	}
	err := t.pfr.Close()
	t.pfr = nil
	t.readBuf = nil
	return err
}

// parquetGoValue copies byte slices out of reader buffers and makes nested
// groups JSON friendly.
func parquetGoValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return cloneBytes(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonable(parquetGoValue(e))
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonable(parquetGoValue(e))
		}
		return out
	default:
		return v
	}
}
