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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	arrowparquet "github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/parquet-go/parquet-go"
	"github.com/scritchley/orc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tableFixtureRow struct {
	id    int64
	name  string
	score *float64
}

func fixtureRows(n int) []tableFixtureRow {
	rows := make([]tableFixtureRow, n)
	for i := range rows {
		rows[i] = tableFixtureRow{id: int64(i), name: fmt.Sprintf("name-%d", i)}
		if i%3 != 0 {
			s := float64(i) + 0.5
			rows[i].score = &s
		}
	}
	return rows
}

// parquetGoFile writes rows with parquet-go. Group fields are ordered by
// name, so the columns are id, name, score.
func parquetGoFile(t *testing.T, rows []tableFixtureRow) []byte {
	t.Helper()
	schema := parquet.NewSchema("test", parquet.Group{
		"id":    parquet.Int(64),
		"name":  parquet.String(),
		"score": parquet.Optional(parquet.Leaf(parquet.DoubleType)),
	})
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, schema)
	for _, r := range rows {
		m := map[string]any{"id": r.id, "name": r.name}
		if r.score != nil {
			m["score"] = *r.score
		}
		_, err := w.Write([]map[string]any{m})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// arrowFile writes rows with the Arrow parquet writer in small row groups.
func arrowFile(t *testing.T, rows []tableFixtureRow) []byte {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)

	var buf bytes.Buffer
	props := arrowparquet.NewWriterProperties(
		arrowparquet.WithDictionaryDefault(false),
		arrowparquet.WithMaxRowGroupLength(7),
	)
	w, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	require.NoError(t, err)

	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for _, r := range rows {
		b.Field(0).(*array.Int64Builder).Append(r.id)
		b.Field(1).(*array.StringBuilder).Append(r.name)
		if r.score != nil {
			b.Field(2).(*array.Float64Builder).Append(*r.score)
		} else {
			b.Field(2).(*array.Float64Builder).AppendNull()
		}
	}
	rec := b.NewRecord()
	defer rec.Release()
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func orcFile(t *testing.T, rows []tableFixtureRow) []byte {
	t.Helper()
	schema, err := orc.ParseSchema("struct<id:bigint,name:string>")
	require.NoError(t, err)
	var buf bytes.Buffer
	w, err := orc.NewWriter(&buf, orc.SetSchema(schema))
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Write(r.id, r.name))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func expectedTableRows(rows []tableFixtureRow, withScore bool) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		row := Row{fmt.Sprint(r.id), r.name}
		if withScore {
			if r.score == nil {
				row = append(row, nil)
			} else {
				row = append(row, fmt.Sprintf("%g", *r.score))
			}
		}
		out[i] = row
	}
	return out
}

func tableOptions(enc Encoding, engine ParquetEngine) Options {
	opts := DefaultOptions()
	opts.Encoding = enc
	opts.IgnoreHeader = false
	opts.Table.ParquetEngine = engine
	return opts
}

func TestReader_Parquet(t *testing.T) {
	rows := fixtureRows(25)
	files := map[string][]byte{
		"written by parquet-go": parquetGoFile(t, rows),
		"written by arrow":      arrowFile(t, rows),
	}
	for fileName, data := range files {
		for _, engine := range []ParquetEngine{ParquetEngineArrow, ParquetEngineParquetGo} {
			for _, codec := range []Compression{CompressionNone, CompressionZstd} {
				t.Run(fmt.Sprintf("%s/%s/%s", fileName, engine, codec), func(t *testing.T) {
					opts := tableOptions(EncodingParquet, engine)
					opts.Compression = codec
					input := compress(t, codec, data)
					r, err := NewReader(NewSliceSource(SplitChunks(input, 100)...), opts)
					require.NoError(t, err)
					defer func() { _ = r.Close() }()

					header, err := r.Header(context.Background())
					require.NoError(t, err)
					assert.Equal(t, Row{"id", "name", "score"}, header)
					assert.Equal(t, expectedTableRows(rows, true), readAll(t, r))
					assert.False(t, r.Stats().Spilled)
				})
			}
		}
	}
}

func TestReader_ORC(t *testing.T) {
	rows := fixtureRows(40)
	data := orcFile(t, rows)

	r, err := NewReader(NewSliceSource(SplitChunks(data, 64)...), tableOptions(EncodingORC, ""))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	header, err := r.Header(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Row{"id", "name"}, header)
	assert.Equal(t, expectedTableRows(rows, false), readAll(t, r))
}

func TestReader_TableIgnoreHeaderStartsWithData(t *testing.T) {
	rows := fixtureRows(2)
	for _, enc := range []Encoding{EncodingParquet, EncodingORC} {
		t.Run(enc.String(), func(t *testing.T) {
			data, withScore := arrowFile(t, rows), true
			if enc == EncodingORC {
				data, withScore = orcFile(t, rows), false
			}
			opts := tableOptions(enc, ParquetEngineArrow)
			opts.IgnoreHeader = true
			r, err := NewReader(NewSliceSource(data), opts)
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			assert.Equal(t, expectedTableRows(rows, withScore), readAll(t, r))
			_, err = r.Header(context.Background())
			assert.ErrorIs(t, err, ErrHeaderUnavailable)
		})
	}
}

func TestReader_TableSpill(t *testing.T) {
	dir := t.TempDir()
	rows := fixtureRows(200)
	opts := tableOptions(EncodingParquet, ParquetEngineParquetGo)
	opts.Table.MaxMemoryBytes = 256
	opts.Table.SpillDir = dir

	r, err := NewReader(NewSliceSource(SplitChunks(parquetGoFile(t, rows), 100)...), opts)
	require.NoError(t, err)

	assert.Equal(t, expectedTableRows(rows, true), readAll(t, r))
	assert.True(t, r.Stats().Spilled)
	assert.Len(t, spillFiles(t, dir), 1)

	require.NoError(t, r.Close())
	assert.Empty(t, spillFiles(t, dir))
}

func TestReader_TableOverflowWithoutSpill(t *testing.T) {
	opts := tableOptions(EncodingParquet, ParquetEngineArrow)
	opts.Table.MaxMemoryBytes = 128
	opts.Table.DisableSpill = true

	r, err := NewReader(NewSliceSource(arrowFile(t, fixtureRows(100))), opts)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.Next(context.Background())
	var bo *BufferOverflowError
	assert.ErrorAs(t, err, &bo)
}

func TestReader_CorruptTable(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoding
	}{
		{"parquet", EncodingParquet},
		{"orc", EncodingORC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(NewSliceSource([]byte("definitely not a table file")), tableOptions(tt.enc, ""))
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			_, err = r.Next(context.Background())
			var tde *TableDecodeError
			require.ErrorAs(t, err, &tde)
			assert.Equal(t, tt.name, tde.Format)
		})
	}
}

func TestORCDecoder_RejectsMalformedInput(t *testing.T) {
	garbledFooter := append([]byte("ORC"), bytes.Repeat([]byte{0xff}, 61)...)
	tests := []struct {
		name  string
		input []byte
	}{
		{"too short", []byte("ORC")},
		{"wrong magic", []byte("definitely not a table file")},
		{"garbled footer", garbledFooter},
		{"truncated file", orcFile(t, fixtureRows(20))[:40]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(NewSliceSource(tt.input), tableOptions(EncodingORC, ""))
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			require.NotPanics(t, func() {
				_, err = r.Next(context.Background())
			})
			var tde *TableDecodeError
			require.ErrorAs(t, err, &tde)
			assert.Equal(t, "orc", tde.Format)
		})
	}
}

func TestRecoverORC(t *testing.T) {
	read := func() (err error) {
		defer recoverORC("orc read", &err)
		var idx []int
		_ = idx[3]
		return nil
	}
	err := read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orc read: orc reader panic")
}

func TestTableLoader_EmptyInputFails(t *testing.T) {
	d, err := NewDecompressor(NewSliceSource(), CompressionNone)
	require.NoError(t, err)
	l := NewTableLoader(ArrowParquetDecoder{}, SpillOptions{}, nil)
	defer func() { _ = l.Close() }()

	_, err = l.Load(context.Background(), d)
	var tde *TableDecodeError
	assert.ErrorAs(t, err, &tde)
}

func TestParquetGoDecoder_FallsBackToArrow(t *testing.T) {
	rows := fixtureRows(25)
	d, err := NewDecompressor(NewSliceSource(arrowFile(t, rows)), CompressionNone)
	require.NoError(t, err)
	l := NewTableLoader(ParquetGoDecoder{}, SpillOptions{}, nil)
	defer func() { assert.NoError(t, l.Close()) }()

	table, err := l.Load(context.Background(), d)
	require.NoError(t, err)
	assert.IsType(t, &arrowTable{}, table, "arrow-written v1 pages are read by the arrow engine")

	var got []Row
	for {
		values, err := table.NextRow()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		row := make(Row, len(values))
		for i, v := range values {
			row[i] = TextValue(v, true)
		}
		got = append(got, row)
	}
	assert.Equal(t, expectedTableRows(rows, true), got)
}

func TestParquetGoDecoder_KeepsOwnEngineWhenReadable(t *testing.T) {
	d, err := NewDecompressor(NewSliceSource(parquetGoFile(t, fixtureRows(5))), CompressionNone)
	require.NoError(t, err)
	l := NewTableLoader(ParquetGoDecoder{}, SpillOptions{}, nil)
	defer func() { assert.NoError(t, l.Close()) }()

	table, err := l.Load(context.Background(), d)
	require.NoError(t, err)
	assert.IsType(t, &parquetGoTable{}, table)
}

func TestTableLoader_CloseIsIdempotent(t *testing.T) {
	d, err := NewDecompressor(NewSliceSource(parquetGoFile(t, fixtureRows(3))), CompressionNone)
	require.NoError(t, err)
	l := NewTableLoader(ParquetGoDecoder{}, SpillOptions{}, nil)

	table, err := l.Load(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, int64(3), table.NumRows())
	assert.Equal(t, []string{"id", "name", "score"}, table.Columns())

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	_, err = l.Load(context.Background(), d)
	assert.ErrorIs(t, err, ErrReaderClosed)
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestTextValue(t *testing.T) {
	ts := time.Date(2024, 3, 5, 6, 7, 8, 9000, time.FixedZone("X", 3600))
	tests := []struct {
		name         string
		in           any
		binaryAsText bool
		want         any
	}{
		{"nil", nil, true, nil},
		{"string", "s", true, "s"},
		{"bytes as text", []byte("abc"), true, "abc"},
		{"invalid utf8", []byte{'a', 0xff, 'b'}, true, "a�b"},
		{"bytes kept", []byte{1, 2}, false, []byte{1, 2}},
		{"bool", true, true, "true"},
		{"int8", int8(-3), true, "-3"},
		{"int", 42, true, "42"},
		{"uint64", uint64(math.MaxUint64), true, "18446744073709551615"},
		{"float32", float32(1.5), true, "1.5"},
		{"float64", 0.1, true, "0.1"},
		{"nan", math.NaN(), true, "nan"},
		{"inf", math.Inf(1), true, "inf"},
		{"neg inf", math.Inf(-1), true, "-inf"},
		{"time", ts, true, "2024-03-05T05:07:08.000009Z"},
		{"duration", 90 * time.Second, true, "1m30s"},
		{"big int", big.NewInt(12345), true, "12345"},
		{"stringer", stringer{}, true, "stringer"},
		{"list", []any{"a", int64(1), nil}, true, `["a",1,null]`},
		{"map", map[string]any{"k": "v"}, true, `{"k":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextValue(tt.in, tt.binaryAsText))
		})
	}
}

func TestArrowValue_Nested(t *testing.T) {
	pool := memory.NewGoAllocator()
	lb := array.NewListBuilder(pool, arrow.PrimitiveTypes.Int64)
	defer lb.Release()
	vb := lb.ValueBuilder().(*array.Int64Builder)
	lb.Append(true)
	vb.AppendValues([]int64{1, 2, 3}, nil)
	lb.Append(true)
	list := lb.NewListArray()
	defer list.Release()

	assert.Equal(t, `[1,2,3]`, TextValue(arrowValue(list, 0), true))
	assert.Equal(t, `[]`, TextValue(arrowValue(list, 1), true))
}

func TestReaderSurfacesTableErrorOnce(t *testing.T) {
	r, err := NewReader(NewSliceSource([]byte("PAR1 truncated")), tableOptions(EncodingParquet, ParquetEngineParquetGo))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, first := r.Next(context.Background())
	require.Error(t, first)
	_, second := r.Next(context.Background())
	assert.Equal(t, first, second)
	assert.False(t, errors.Is(second, io.EOF))
}
