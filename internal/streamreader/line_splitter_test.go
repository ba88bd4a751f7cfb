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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitAll(t *testing.T, chunks [][]byte, maxRecord int) []string {
	t.Helper()
	d, err := NewDecompressor(NewSliceSource(chunks...), CompressionNone)
	require.NoError(t, err)
	s := NewLineSplitter(d, maxRecord)
	var out []string
	for {
		rec, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(rec))
	}
}

func TestLineSplitter_ChunkingInvariance(t *testing.T) {
	input := []byte("alpha\nbeta\r\ngamma\n\ndelta")
	want := []string{"alpha\n", "beta\r\n", "gamma\n", "\n", "delta"}

	for size := 1; size <= len(input)+1; size++ {
		assert.Equal(t, want, splitAll(t, SplitChunks(input, size), 0), "chunk size %d", size)
	}
}

func TestLineSplitter_Cases(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"empty input", nil, nil},
		{"only empty chunks", []string{"", ""}, nil},
		{"single newline", []string{"\n"}, []string{"\n"}},
		{"no trailing newline", []string{"a,b"}, []string{"a,b"}},
		{"newline at chunk boundary", []string{"a\n", "b\n"}, []string{"a\n", "b\n"}},
		{"record spans chunks", []string{"ab", "c", "d\ne"}, []string{"abcd\n", "e"}},
		{"many records in one chunk", []string{"1\n2\n3\n"}, []string{"1\n", "2\n", "3\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := make([][]byte, len(tt.chunks))
			for i, c := range tt.chunks {
				chunks[i] = []byte(c)
			}
			assert.Equal(t, tt.want, splitAll(t, chunks, 0))
		})
	}
}

func TestLineSplitter_RecordsAreOwned(t *testing.T) {
	chunk := []byte("one\ntwo\n")
	d, err := NewDecompressor(NewSliceSource(chunk), CompressionNone)
	require.NoError(t, err)
	s := NewLineSplitter(d, 0)

	first, err := s.Next(context.Background())
	require.NoError(t, err)
	copy(chunk, "XXX")
	assert.Equal(t, "one\n", string(first))
	assert.Equal(t, int64(1), s.Records())
}

func TestLineSplitter_MaxRecordBytes(t *testing.T) {
	d, err := NewDecompressor(NewSliceSource([]byte("short\n"), []byte("this record is far too long"), []byte("\n")), CompressionNone)
	require.NoError(t, err)
	s := NewLineSplitter(d, 10)

	rec, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "short\n", string(rec))

	_, err = s.Next(context.Background())
	var tooLarge *RecordTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 10, tooLarge.Limit)
}

func TestLineSplitter_GzipSplitAtChunkBoundary(t *testing.T) {
	plain := []byte("a,b\n1,2\n3,4\n")
	compressed := compress(t, CompressionGzip, plain)

	for cut := 1; cut < len(compressed); cut++ {
		chunks := [][]byte{compressed[:cut], compressed[cut:]}
		d, err := NewDecompressor(NewSliceSource(chunks...), CompressionGzip)
		require.NoError(t, err)
		s := NewLineSplitter(d, 0)

		var got []string
		for {
			rec, err := s.Next(context.Background())
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err, "cut %d", cut)
			got = append(got, string(rec))
		}
		assert.Equal(t, []string{"a,b\n", "1,2\n", "3,4\n"}, got, "cut %d", cut)
		require.NoError(t, d.Close())
	}
}
