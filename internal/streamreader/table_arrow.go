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
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

const arrowBatchSize = 1024

// ArrowParquetDecoder decodes parquet files with the Arrow engine. It handles
// NULL-typed columns, which the parquet-go engine rejects.
type ArrowParquetDecoder struct{}

var _ TableDecoder = ArrowParquetDecoder{}

func (ArrowParquetDecoder) Format() string { return "parquet" }

func (ArrowParquetDecoder) Decode(ctx context.Context, data SizedReaderAt) (Table, error) {
	pf, err := file.NewParquetReader(data)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	props := pqarrow.ArrowReadProperties{BatchSize: arrowBatchSize}
	fr, err := pqarrow.NewFileReader(pf, props, memory.DefaultAllocator)
	if err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("create arrow file reader: %w", err)
	}

	schema, err := fr.Schema()
	if err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("read arrow schema: %w", err)
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		_ = pf.Close()
		return nil, fmt.Errorf("create record reader: %w", err)
	}

	cols := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = f.Name
	}
	return &arrowTable{pf: pf, rr: rr, cols: cols, numRows: pf.NumRows()}, nil
}

type arrowTable struct {
	pf      *file.Reader
	rr      pqarrow.RecordReader
	cols    []string
	numRows int64

	rec arrow.Record
	pos int
	eof bool
}

func (t *arrowTable) Columns() []string { return t.cols }

func (t *arrowTable) NumRows() int64 { return t.numRows }

func (t *arrowTable) NextRow() ([]any, error) {
	for t.rec == nil || t.pos >= int(t.rec.NumRows()) {
		if t.eof {
			return nil, io.EOF
		}
		if t.rec != nil {
			t.rec.Release()
			t.rec = nil
		}
		rec, err := t.rr.Read()
		if errors.Is(err, io.EOF) || (err == nil && rec == nil) {
			t.eof = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("arrow read: %w", err)
		}
		rec.Retain()
		t.rec = rec
		t.pos = 0
	}

	row := make([]any, t.rec.NumCols())
	for j := range row {
		col := t.rec.Column(j)
		if col.IsNull(t.pos) {
			continue
		}
		row[j] = arrowValue(col, t.pos)
	}
	t.pos++
	return row, nil
}

func (t *arrowTable) Release() error {
	if t.rec != nil {
		t.rec.Release()
		t.rec = nil
	}
	if t.rr != nil {
		t.rr.Release()
		t.rr = nil
	}
	if t.pf != nil {
		err := t.pf.Close()
		t.pf = nil
		return err
	}
	return nil
}

// arrowValue converts the value at index i into a plain Go value that
// TextValue understands. Strings and bytes are copied out of Arrow buffers.
func arrowValue(col arrow.Array, i int) any {
	switch c := col.(type) {
	case *array.Null:
		return nil
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Uint8:
		return uint64(c.Value(i))
	case *array.Uint16:
		return uint64(c.Value(i))
	case *array.Uint32:
		return uint64(c.Value(i))
	case *array.Uint64:
		return c.Value(i)
	case *array.Float32:
		return c.Value(i)
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return strings.Clone(c.Value(i))
	case *array.LargeString:
		return strings.Clone(c.Value(i))
	case *array.Binary:
		return cloneBytes(c.Value(i))
	case *array.LargeBinary:
		return cloneBytes(c.Value(i))
	case *array.FixedSizeBinary:
		return cloneBytes(c.Value(i))
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(i).ToTime(unit)
	case *array.Date32:
		return c.Value(i).ToTime().Format("2006-01-02")
	case *array.Date64:
		return c.Value(i).ToTime().Format("2006-01-02")
	case *array.List:
		return arrowList(c, i)
	case *array.Struct:
		return arrowStruct(c, i)
	case *array.Map:
		return arrowMap(c, i)
	default:
		return c.ValueStr(i)
	}
}

func arrowList(arr *array.List, i int) any {
	start, end := arr.ValueOffsets(i)
	values := arr.ListValues()

	out := make([]any, 0, end-start)
	for j := start; j < end; j++ {
		if values.IsNull(int(j)) {
			out = append(out, nil)
			continue
		}
		out = append(out, jsonable(arrowValue(values, int(j))))
	}
	return out
}

func arrowStruct(arr *array.Struct, i int) any {
	fields := arr.DataType().(*arrow.StructType).Fields()
	out := make(map[string]any, len(fields))
	for j, f := range fields {
		col := arr.Field(j)
		if col.IsNull(i) {
			out[f.Name] = nil
			continue
		}
		out[f.Name] = jsonable(arrowValue(col, i))
	}
	return out
}

func arrowMap(arr *array.Map, i int) any {
	start, end := arr.ValueOffsets(i)
	keys := arr.Keys()
	items := arr.Items()

	out := make(map[string]any, end-start)
	for j := start; j < end; j++ {
		key := fmt.Sprint(TextValue(arrowValue(keys, int(j)), true))
		if items.IsNull(int(j)) {
			out[key] = nil
			continue
		}
		out[key] = jsonable(arrowValue(items, int(j)))
	}
	return out
}

// jsonable keeps nested values in a form encoding/json renders the same way
// TextValue renders scalars.
func jsonable(v any) any {
	switch v.(type) {
	case []any, map[string]any, bool, string,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	default:
		return TextValue(v, true)
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
